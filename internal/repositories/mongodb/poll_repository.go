package mongodb

import (
	"context"
	"regexp"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure PollRepository implements the interface
var _ repositories.PollRepository = (*PollRepository)(nil)

var pollSortFields = map[string]bool{
	"createdAt":         true,
	"endTime":           true,
	"totalStakeAmount":  true,
	"totalParticipants": true,
	"title":             true,
}

// PollRepository handles MongoDB operations for Poll
type PollRepository struct {
	collection *mongo.Collection
}

// NewPollRepository creates a new PollRepository
func NewPollRepository(db *mongo.Database) *PollRepository {
	return &PollRepository{
		collection: db.Collection(collectionPolls),
	}
}

// Create inserts a new poll
func (r *PollRepository) Create(ctx context.Context, poll *models.Poll) error {
	if poll.ID.IsZero() {
		poll.ID = primitive.NewObjectID()
	}
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now()
	}
	poll.UpdatedAt = poll.CreatedAt
	_, err := r.collection.InsertOne(ctx, poll)
	return translateError(err)
}

// FindByID finds a poll by ID
func (r *PollRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Poll, error) {
	var poll models.Poll
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&poll); err != nil {
		return nil, translateError(err)
	}
	return &poll, nil
}

// Find lists polls matching the filter with pagination
func (r *PollRepository) Find(ctx context.Context, filter models.PollFilter, q models.PageQuery) ([]*models.Poll, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}

	sortField := "createdAt"
	if pollSortFields[q.SortBy] {
		sortField = q.SortBy
	}
	return findPage[models.Poll](ctx, r.collection, query, q, sortField)
}

// FindExpired returns active polls whose end time has passed
func (r *PollRepository) FindExpired(ctx context.Context, now time.Time) ([]*models.Poll, error) {
	filter := bson.M{
		"status":  models.PollStatusActive,
		"endTime": bson.M{"$ne": nil, "$lte": now},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var polls []*models.Poll
	if err := cursor.All(ctx, &polls); err != nil {
		return nil, err
	}
	return polls, nil
}

// IncrementPool adds a stake to an option's pool while the poll is still open
func (r *PollRepository) IncrementPool(ctx context.Context, pollID, optionID primitive.ObjectID, amount int64, now time.Time) error {
	filter := bson.M{
		"_id":        pollID,
		"status":     models.PollStatusActive,
		"options.id": optionID,
		"$or": bson.A{
			bson.M{"endTime": nil},
			bson.M{"endTime": bson.M{"$gt": now}},
		},
	}
	update := bson.M{
		"$inc": bson.M{
			"options.$.totalAmount": amount,
			"options.$.stakeCount":  1,
			"totalStakeAmount":      amount,
			"totalParticipants":     1,
		},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

// UpdateState applies a lifecycle change to a poll in one of the expected statuses
func (r *PollRepository) UpdateState(ctx context.Context, pollID primitive.ObjectID, from []models.PollStatus, change models.PollStateChange) (*models.Poll, error) {
	set := bson.M{"status": change.Status, "updatedAt": time.Now()}
	unset := bson.M{}
	if change.WinningOptionID != nil {
		set["winningOptionId"] = *change.WinningOptionID
	}
	if change.SetSettlement {
		if change.Settlement != nil {
			set["settlement"] = change.Settlement
		} else {
			unset["settlement"] = ""
		}
	}
	if change.ClosedAt != nil {
		set["closedAt"] = *change.ClosedAt
	}
	if change.ResolvedAt != nil {
		set["resolvedAt"] = *change.ResolvedAt
	}
	if change.CancelledAt != nil {
		set["cancelledAt"] = *change.CancelledAt
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	filter := bson.M{"_id": pollID, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var poll models.Poll
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&poll)
	if err == mongo.ErrNoDocuments {
		return nil, repositories.ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

// Delete deletes a poll by ID
func (r *PollRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// CountByStatus counts polls per lifecycle status
func (r *PollRepository) CountByStatus(ctx context.Context) (map[models.PollStatus]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.PollStatus `bson:"_id"`
		Count  int64             `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[models.PollStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
