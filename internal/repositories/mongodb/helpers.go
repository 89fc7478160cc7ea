package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	collectionPolls            = "polls"
	collectionStakes           = "stakes"
	collectionWallets          = "wallets"
	collectionTransactions     = "transactions"
	collectionPlatformSettings = "platform_settings"
)

// translateError maps driver errors onto the repository sentinels
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repositories.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repositories.ErrDuplicateKey, err)
	}
	return err
}

// findPage runs a paginated query and the matching count
func findPage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, q models.PageQuery, sortField string) ([]*T, int64, error) {
	order := -1
	if q.SortOrder == "asc" {
		order = 1
	}
	opts := options.Find().
		SetSkip(int64(q.Skip())).
		SetLimit(int64(q.Limit)).
		SetSort(bson.D{{Key: sortField, Value: order}, {Key: "_id", Value: order}})

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []*T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// EnsureIndexes creates the indexes the repositories rely on for uniqueness and lookups
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		collectionStakes: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "pollId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "pollId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		collectionWallets: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collectionTransactions: {
			{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}}},
		},
		collectionPolls: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "endTime", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
