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

// Compile-time check to ensure WalletRepository implements the interface
var _ repositories.WalletRepository = (*WalletRepository)(nil)

// WalletRepository handles MongoDB operations for Wallet
type WalletRepository struct {
	collection *mongo.Collection
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(db *mongo.Database) *WalletRepository {
	return &WalletRepository{
		collection: db.Collection(collectionWallets),
	}
}

// FindByUserID finds the wallet of a user
func (r *WalletRepository) FindByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&wallet)
	if err != nil {
		return nil, translateError(err)
	}
	return &wallet, nil
}

// EnsureWallet upserts an empty wallet for the user and returns the stored document
func (r *WalletRepository) EnsureWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	now := time.Now()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":              primitive.NewObjectID(),
			"userId":           userID,
			"availableBalance": int64(0),
			"bonusBalance":     int64(0),
			"isLocked":         false,
			"createdAt":        now,
			"updatedAt":        now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var wallet models.Wallet
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"userId": userID}, update, opts).Decode(&wallet)
	if err != nil {
		// Two concurrent upserts can race on the unique index; the loser reads the winner's document.
		if mongo.IsDuplicateKeyError(err) {
			return r.FindByUserID(ctx, userID)
		}
		return nil, translateError(err)
	}
	return &wallet, nil
}

// ApplyDelta atomically adjusts the available balance of an unlocked wallet
func (r *WalletRepository) ApplyDelta(ctx context.Context, userID string, delta int64) (*models.Wallet, error) {
	filter := bson.M{"userId": userID, "isLocked": false}
	if delta < 0 {
		filter["availableBalance"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"availableBalance": delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var wallet models.Wallet
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&wallet)
	if err == mongo.ErrNoDocuments {
		return nil, repositories.ErrConditionFailed
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// SetLocked locks or unlocks a wallet
func (r *WalletRepository) SetLocked(ctx context.Context, userID string, locked bool, reason string) (*models.Wallet, error) {
	set := bson.M{"isLocked": locked, "updatedAt": time.Now()}
	update := bson.M{"$set": set}
	if locked {
		set["lockedReason"] = reason
	} else {
		update["$unset"] = bson.M{"lockedReason": ""}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var wallet models.Wallet
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"userId": userID}, update, opts).Decode(&wallet)
	if err != nil {
		return nil, translateError(err)
	}
	return &wallet, nil
}

// FindAll lists wallets with pagination
func (r *WalletRepository) FindAll(ctx context.Context, filter models.WalletFilter, q models.PageQuery) ([]*models.Wallet, int64, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.IsLocked != nil {
		query["isLocked"] = *filter.IsLocked
	}

	sortField := "createdAt"
	if q.SortBy == "availableBalance" {
		sortField = q.SortBy
	}
	return findPage[models.Wallet](ctx, r.collection, query, q, sortField)
}

// Count counts all wallets
func (r *WalletRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
