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

// Compile-time check to ensure PlatformSettingsRepository implements the interface
var _ repositories.PlatformSettingsRepository = (*PlatformSettingsRepository)(nil)

// PlatformSettingsRepository implements repositories.PlatformSettingsRepository
type PlatformSettingsRepository struct {
	collection *mongo.Collection
}

// NewPlatformSettingsRepository creates a new PlatformSettingsRepository
func NewPlatformSettingsRepository(db *mongo.Database) *PlatformSettingsRepository {
	return &PlatformSettingsRepository{
		collection: db.Collection(collectionPlatformSettings),
	}
}

// Get retrieves the current platform settings
func (r *PlatformSettingsRepository) Get(ctx context.Context, defaults models.PlatformSettings) (*models.PlatformSettings, error) {
	var settings models.PlatformSettings
	err := r.collection.FindOne(ctx, bson.M{}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		// If no settings exist, store the defaults
		settings = defaults
		settings.ID = primitive.NewObjectID()
		settings.CreatedAt = time.Now()
		settings.UpdatedAt = settings.CreatedAt
		if _, err := r.collection.InsertOne(ctx, settings); err != nil {
			return nil, err
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update replaces the stored settings
func (r *PlatformSettingsRepository) Update(ctx context.Context, settings *models.PlatformSettings) error {
	settings.UpdatedAt = time.Now()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = settings.UpdatedAt
	}

	var current models.PlatformSettings
	err := r.collection.FindOne(ctx, bson.M{}).Decode(&current)
	switch {
	case err == mongo.ErrNoDocuments:
		if settings.ID.IsZero() {
			settings.ID = primitive.NewObjectID()
		}
	case err != nil:
		return err
	default:
		settings.ID = current.ID
		settings.CreatedAt = current.CreatedAt
	}

	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": settings.ID}, settings, options.Replace().SetUpsert(true))
	return err
}
