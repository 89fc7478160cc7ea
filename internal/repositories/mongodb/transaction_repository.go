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

// Compile-time check to ensure TransactionRepository implements the interface
var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// TransactionRepository handles MongoDB operations for ledger transactions
type TransactionRepository struct {
	collection *mongo.Collection
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *mongo.Database) *TransactionRepository {
	return &TransactionRepository{
		collection: db.Collection(collectionTransactions),
	}
}

// Create inserts a new transaction. The unique reference index rejects replays.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	tx.UpdatedAt = tx.CreatedAt
	_, err := r.collection.InsertOne(ctx, tx)
	return translateError(err)
}

// FindByID finds a transaction by ID
func (r *TransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByReference finds a transaction by its idempotency reference
func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.findOne(ctx, bson.M{"reference": reference})
}

func (r *TransactionRepository) findOne(ctx context.Context, filter bson.M) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.collection.FindOne(ctx, filter).Decode(&tx); err != nil {
		return nil, translateError(err)
	}
	return &tx, nil
}

// UpdateStatus moves a transaction out of one of the expected statuses
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from []models.TransactionStatus, u models.TransactionUpdate) (*models.Transaction, error) {
	set := bson.M{"status": u.Status, "updatedAt": time.Now()}
	if u.BalanceBefore != nil {
		set["balanceBefore"] = *u.BalanceBefore
	}
	if u.BalanceAfter != nil {
		set["balanceAfter"] = *u.BalanceAfter
	}
	if u.GatewayReference != "" {
		set["gatewayReference"] = u.GatewayReference
	}
	if u.AuthorizationURL != "" {
		set["authorizationUrl"] = u.AuthorizationURL
	}
	if u.FailureReason != "" {
		set["failureReason"] = u.FailureReason
	}
	if u.ReviewedBy != "" {
		set["reviewedBy"] = u.ReviewedBy
	}
	if u.CompletedAt != nil {
		set["completedAt"] = *u.CompletedAt
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var tx models.Transaction
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&tx)
	if err == mongo.ErrNoDocuments {
		return nil, repositories.ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Find lists transactions matching the filter with pagination
func (r *TransactionRepository) Find(ctx context.Context, filter models.TransactionFilter, q models.PageQuery) ([]*models.Transaction, int64, error) {
	sortField := "createdAt"
	if q.SortBy == "amount" {
		sortField = q.SortBy
	}
	return findPage[models.Transaction](ctx, r.collection, transactionQuery(filter), q, sortField)
}

// Summarize aggregates the matching transactions per type
func (r *TransactionRepository) Summarize(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: transactionQuery(filter)}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$type",
			"count":  bson.M{"$sum": 1},
			"amount": bson.M{"$sum": "$amount"},
			"fees":   bson.M{"$sum": bson.M{"$ifNull": bson.A{"$fee", 0}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var summaries []models.TransactionSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func transactionQuery(filter models.TransactionFilter) bson.M {
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	switch {
	case filter.Status != "":
		query["status"] = filter.Status
	case len(filter.Statuses) > 0:
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.CreatedBefore != nil {
		query["createdAt"] = bson.M{"$lte": *filter.CreatedBefore}
	}
	return query
}
