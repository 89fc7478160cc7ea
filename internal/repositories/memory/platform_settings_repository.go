package memory

import (
	"context"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.PlatformSettingsRepository = (*PlatformSettingsRepository)(nil)

// PlatformSettingsRepository is the in-memory platform settings singleton
type PlatformSettingsRepository struct {
	s *Store
}

// NewPlatformSettingsRepository creates a PlatformSettingsRepository backed by s
func NewPlatformSettingsRepository(s *Store) *PlatformSettingsRepository {
	return &PlatformSettingsRepository{s: s}
}

func (r *PlatformSettingsRepository) Get(ctx context.Context, defaults models.PlatformSettings) (*models.PlatformSettings, error) {
	var out models.PlatformSettings
	err := r.s.write(ctx, func(j *journal) error {
		if r.s.settings == nil {
			stored := defaults
			stored.ID = primitive.NewObjectID()
			stored.CreatedAt = time.Now()
			stored.UpdatedAt = stored.CreatedAt
			r.s.settings = &stored
			j.record(func() { r.s.settings = nil })
		}
		out = *r.s.settings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PlatformSettingsRepository) Update(ctx context.Context, settings *models.PlatformSettings) error {
	return r.s.write(ctx, func(j *journal) error {
		prev := r.s.settings
		settings.UpdatedAt = time.Now()
		if prev != nil {
			settings.ID = prev.ID
			settings.CreatedAt = prev.CreatedAt
		} else {
			if settings.ID.IsZero() {
				settings.ID = primitive.NewObjectID()
			}
			settings.CreatedAt = settings.UpdatedAt
		}
		stored := *settings
		r.s.settings = &stored
		j.record(func() { r.s.settings = prev })
		return nil
	})
}
