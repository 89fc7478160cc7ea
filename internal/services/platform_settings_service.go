package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/go-playground/validator/v10"
)

// PlatformSettingsServiceImpl implements PlatformSettingsService with an in-process cache
type PlatformSettingsServiceImpl struct {
	settingsRepo repositories.PlatformSettingsRepository
	defaults     models.PlatformSettings
	ttl          time.Duration
	validate     *validator.Validate
	nowFn        func() time.Time

	mu        sync.RWMutex
	cached    *models.PlatformSettings
	fetchedAt time.Time
}

// NewPlatformSettingsService creates a new PlatformSettingsService. defaults are stored
// the first time the settings document is read.
func NewPlatformSettingsService(settingsRepo repositories.PlatformSettingsRepository, defaults models.PlatformSettings, ttl time.Duration) *PlatformSettingsServiceImpl {
	v := validator.New()
	v.SetTagName("binding")
	return &PlatformSettingsServiceImpl{
		settingsRepo: settingsRepo,
		defaults:     defaults,
		ttl:          ttl,
		validate:     v,
		nowFn:        time.Now,
	}
}

// Current returns the cached settings, reloading them once the cache has expired.
// A copy is returned so callers cannot mutate the cache.
func (s *PlatformSettingsServiceImpl) Current(ctx context.Context) (*models.PlatformSettings, error) {
	s.mu.RLock()
	cached, fetchedAt := s.cached, s.fetchedAt
	s.mu.RUnlock()

	if cached != nil && (s.ttl <= 0 || s.nowFn().Sub(fetchedAt) < s.ttl) {
		c := *cached
		return &c, nil
	}
	return s.refresh(ctx)
}

// Limits returns the public subset of the settings
func (s *PlatformSettingsServiceImpl) Limits(ctx context.Context) (*models.PlatformLimits, error) {
	settings, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	limits := settings.Limits()
	return &limits, nil
}

// Update replaces the stored settings and refreshes the cache immediately
func (s *PlatformSettingsServiceImpl) Update(ctx context.Context, actor models.Principal, settings models.PlatformSettings) (*models.PlatformSettings, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if settings.NoWinnerPolicy == "" {
		settings.NoWinnerPolicy = models.NoWinnerRetain
	}
	if err := s.validate.Struct(settings); err != nil {
		return nil, ErrValidation.WithMessage("%v", err)
	}

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	settings.ID = current.ID
	settings.CreatedAt = current.CreatedAt
	settings.UpdatedBy = actor.UserID
	settings.UpdatedAt = s.nowFn().UTC()

	if err := s.settingsRepo.Update(ctx, &settings); err != nil {
		return nil, internal(err, "failed to update platform settings")
	}
	slog.Info("Platform settings updated", "updatedBy", actor.UserID,
		"platformFeePercentage", settings.PlatformFeePercentage,
		"stakingEnabled", settings.StakingEnabled,
		"withdrawalsEnabled", settings.WithdrawalsEnabled)

	return s.refresh(ctx)
}

// Watch reloads the settings every interval so changes made by other instances are picked up
func (s *PlatformSettingsServiceImpl) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.refresh(ctx); err != nil {
				slog.Warn("Failed to refresh platform settings", "error", err)
			}
		}
	}
}

func (s *PlatformSettingsServiceImpl) refresh(ctx context.Context) (*models.PlatformSettings, error) {
	settings, err := s.settingsRepo.Get(ctx, s.defaults)
	if err != nil {
		return nil, internal(err, "failed to load platform settings")
	}
	if settings.NoWinnerPolicy == "" {
		settings.NoWinnerPolicy = models.NoWinnerRetain
	}

	s.mu.Lock()
	s.cached = settings
	s.fetchedAt = s.nowFn()
	s.mu.Unlock()

	c := *settings
	return &c, nil
}
