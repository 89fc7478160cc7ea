package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure StakeRepository implements the interface
var _ repositories.StakeRepository = (*StakeRepository)(nil)

// StakeRepository handles MongoDB operations for Stake
type StakeRepository struct {
	collection *mongo.Collection
}

// NewStakeRepository creates a new StakeRepository
func NewStakeRepository(db *mongo.Database) *StakeRepository {
	return &StakeRepository{
		collection: db.Collection(collectionStakes),
	}
}

// Create inserts a new stake. The unique (userId, pollId) index rejects a second stake.
func (r *StakeRepository) Create(ctx context.Context, stake *models.Stake) error {
	if stake.ID.IsZero() {
		stake.ID = primitive.NewObjectID()
	}
	if stake.CreatedAt.IsZero() {
		stake.CreatedAt = time.Now()
	}
	stake.UpdatedAt = stake.CreatedAt
	_, err := r.collection.InsertOne(ctx, stake)
	return translateError(err)
}

// FindByID finds a stake by ID
func (r *StakeRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Stake, error) {
	var stake models.Stake
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&stake); err != nil {
		return nil, translateError(err)
	}
	return &stake, nil
}

// FindByUserAndPoll finds the stake a user placed on a poll
func (r *StakeRepository) FindByUserAndPoll(ctx context.Context, userID string, pollID primitive.ObjectID) (*models.Stake, error) {
	var stake models.Stake
	if err := r.collection.FindOne(ctx, bson.M{"userId": userID, "pollId": pollID}).Decode(&stake); err != nil {
		return nil, translateError(err)
	}
	return &stake, nil
}

// FindByPoll returns every stake of a poll in placement order
func (r *StakeRepository) FindByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*models.Stake, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"pollId": pollID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stakes []*models.Stake
	if err := cursor.All(ctx, &stakes); err != nil {
		return nil, err
	}
	return stakes, nil
}

// FindByUser lists a user's stakes with pagination
func (r *StakeRepository) FindByUser(ctx context.Context, userID string, status models.StakeStatus, q models.PageQuery) ([]*models.Stake, int64, error) {
	filter := bson.M{"userId": userID}
	if status != "" {
		filter["status"] = status
	}
	sortField := "createdAt"
	if q.SortBy == "amount" {
		sortField = q.SortBy
	}
	return findPage[models.Stake](ctx, r.collection, filter, q, sortField)
}

// UpdateSettlement records the settlement outcome on a stake still in status from
func (r *StakeRepository) UpdateSettlement(ctx context.Context, id primitive.ObjectID, from models.StakeStatus, s models.StakeSettlement) error {
	update := bson.M{
		"$set": bson.M{
			"status":        s.Status,
			"grossWinnings": s.GrossWinnings,
			"platformFee":   s.PlatformFee,
			"netWinnings":   s.NetWinnings,
			"settledAt":     s.SettledAt,
			"updatedAt":     time.Now(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repositories.ErrConditionFailed
	}
	return nil
}

// DeleteByPoll removes every stake of a poll
func (r *StakeRepository) DeleteByPoll(ctx context.Context, pollID primitive.ObjectID) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"pollId": pollID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
