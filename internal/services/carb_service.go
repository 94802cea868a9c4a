package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vladimiradmaev/dosekit/internal/cache"
	"github.com/vladimiradmaev/dosekit/internal/carbstatus"
	"github.com/vladimiradmaev/dosekit/internal/config"
	"github.com/vladimiradmaev/dosekit/internal/database"
	"github.com/vladimiradmaev/dosekit/internal/domain"
	apperrors "github.com/vladimiradmaev/dosekit/internal/errors"
	"github.com/vladimiradmaev/dosekit/internal/logger"
)

var _ domain.CarbService = (*CarbService)(nil)

// CarbService stores carbohydrate entries and serves derived absorption
// state.
type CarbService struct {
	db     *gorm.DB
	cache  cache.Store
	cfg    config.AlgorithmConfig
	engine *carbstatus.Engine
}

// NewCarbService creates a new carb service.
func NewCarbService(db *gorm.DB, store cache.Store, cfg config.AlgorithmConfig) *CarbService {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	engineCfg := carbstatus.DefaultConfig()
	if cfg.DefaultAbsorptionTime > 0 {
		engineCfg.DefaultAbsorptionTime = cfg.DefaultAbsorptionTime
	}
	if cfg.AbsorptionOverrun > 0 {
		engineCfg.AbsorptionOverrun = cfg.AbsorptionOverrun
	}
	if cfg.AbsorptionDelay > 0 {
		engineCfg.Delay = cfg.AbsorptionDelay
	}
	if cfg.Delta > 0 {
		engineCfg.Delta = cfg.Delta
	}
	engineCfg.AdaptiveRateEnabled = cfg.AdaptiveRateEnabled
	if cfg.AdaptiveRateStandbyFraction > 0 {
		engineCfg.AdaptiveRateStandbyFraction = cfg.AdaptiveRateStandbyFraction
	}
	return &CarbService{
		db:     db,
		cache:  store,
		cfg:    cfg,
		engine: carbstatus.NewEngine(engineCfg),
	}
}

// AddEntry validates and stores a new carb entry, assigning a sync identifier
// when the caller did not provide one.
func (s *CarbService) AddEntry(ctx context.Context, userID uint, entry domain.CarbEntry) (domain.CarbEntry, error) {
	if err := validateCarbEntry(entry); err != nil {
		return domain.CarbEntry{}, err
	}
	if entry.SyncIdentifier == "" {
		entry.SyncIdentifier = uuid.NewString()
	}
	entry.CreatedByCurrentApp = true

	cached := database.NewCachedCarbEntry(userID, entry)
	cached.SyncVersion = 1
	if err := s.db.WithContext(ctx).Create(&cached).Error; err != nil {
		return domain.CarbEntry{}, apperrors.NewDatabaseError(fmt.Errorf("failed to store carb entry: %w", err))
	}

	s.cache.InvalidateUser(ctx, userID)
	logger.Debug("carb entry stored", "user_id", userID, "sync_identifier", entry.SyncIdentifier, "grams", entry.Quantity)
	return cached.ToDomain(), nil
}

// ReplaceEntry supersedes the stored entry with the given sync identifier: the
// old row is soft-deleted and a new row with a bumped sync version takes its
// place.
func (s *CarbService) ReplaceEntry(ctx context.Context, userID uint, syncIdentifier string, entry domain.CarbEntry) (domain.CarbEntry, error) {
	if err := validateCarbEntry(entry); err != nil {
		return domain.CarbEntry{}, err
	}

	var replaced database.CachedCarbEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current database.CachedCarbEntry
		if err := tx.Where("user_id = ? AND sync_identifier = ?", userID, syncIdentifier).
			Order("sync_version DESC").
			First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrEntryNotFound
			}
			return fmt.Errorf("failed to find carb entry: %w", err)
		}

		if err := tx.Delete(&current).Error; err != nil {
			return fmt.Errorf("failed to supersede carb entry: %w", err)
		}

		entry.SyncIdentifier = syncIdentifier
		entry.CreatedByCurrentApp = current.CreatedByCurrentApp
		if entry.ExternalID == "" {
			entry.ExternalID = current.ExternalID
		}
		replaced = database.NewCachedCarbEntry(userID, entry)
		replaced.SyncVersion = current.SyncVersion + 1
		if err := tx.Create(&replaced).Error; err != nil {
			return fmt.Errorf("failed to store replacement carb entry: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrEntryNotFound) {
			return domain.CarbEntry{}, err
		}
		return domain.CarbEntry{}, apperrors.NewDatabaseError(err)
	}

	s.cache.InvalidateUser(ctx, userID)
	return replaced.ToDomain(), nil
}

// DeleteEntry soft-deletes the stored entry, leaving a tombstone for later
// reconciliation with the external record source.
func (s *CarbService) DeleteEntry(ctx context.Context, userID uint, syncIdentifier string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND sync_identifier = ?", userID, syncIdentifier).
		Delete(&database.CachedCarbEntry{})
	if result.Error != nil {
		return apperrors.NewDatabaseError(fmt.Errorf("failed to delete carb entry: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrEntryNotFound
	}

	s.cache.InvalidateUser(ctx, userID)
	return nil
}

// GetEntries returns stored entries starting within [start, end) in
// chronological order. Entries without an absorption time get the configured
// default.
func (s *CarbService) GetEntries(ctx context.Context, userID uint, start, end time.Time) ([]domain.CarbEntry, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND start_time >= ?", userID, start)
	if !end.IsZero() {
		query = query.Where("start_time < ?", end)
	}

	var cached []database.CachedCarbEntry
	if err := query.Order("start_time ASC").Find(&cached).Error; err != nil {
		return nil, apperrors.NewDatabaseError(fmt.Errorf("failed to get carb entries: %w", err))
	}

	entries := make([]domain.CarbEntry, len(cached))
	for i, row := range cached {
		entries[i] = row.ToDomain()
		if entries[i].AbsorptionTime == nil {
			fallback := s.cfg.DefaultAbsorptionTime
			entries[i].AbsorptionTime = &fallback
		}
	}
	return entries, nil
}

// CarbStatuses computes per-entry absorption state against a chronological
// glucose-effect-velocity stream. The carb ratio and sensitivity schedules
// are required.
func (s *CarbService) CarbStatuses(ctx context.Context, userID uint, velocities []domain.GlucoseEffectVelocity, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule, start, end time.Time) ([]domain.CarbStatus, error) {
	if carbRatios == nil {
		return nil, apperrors.ErrMissingCarbRatios
	}
	if sensitivities == nil {
		return nil, apperrors.ErrMissingSensitivity
	}
	entries, err := s.GetEntries(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return s.engine.Statuses(entries, velocities, carbRatios, sensitivities), nil
}

// CarbsOnBoardSeries samples modeled carbs-on-board for stored entries.
func (s *CarbService) CarbsOnBoardSeries(ctx context.Context, userID uint, start, end time.Time) ([]domain.CarbValue, error) {
	// Entries started up to the longest possible absorption before start may
	// still be absorbing.
	entries, err := s.GetEntries(ctx, userID, start.Add(-s.lookback()), end)
	if err != nil {
		return nil, err
	}
	return s.engine.CarbsOnBoardSeries(entries, start, end), nil
}

// CarbsOnBoardAt returns total modeled carbs-on-board at a single date.
func (s *CarbService) CarbsOnBoardAt(ctx context.Context, userID uint, at time.Time) (float64, error) {
	values, err := s.CarbsOnBoardSeries(ctx, userID, at, at)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return values[0].Value, nil
}

// CurrentCarbsOnBoard returns the cached carbs-on-board timeline for the
// user, recomputing it over the active absorption window on a cache miss.
func (s *CarbService) CurrentCarbsOnBoard(ctx context.Context, userID uint) ([]domain.CarbValue, error) {
	if values, ok := s.cache.GetCarbsOnBoard(ctx, userID); ok {
		return values, nil
	}
	now := time.Now()
	values, err := s.CarbsOnBoardSeries(ctx, userID, now.Truncate(s.cfg.Delta), now.Add(s.lookback()))
	if err != nil {
		return nil, err
	}
	s.cache.SetCarbsOnBoard(ctx, userID, values)
	return values, nil
}

// DynamicCarbsOnBoardSeries samples carbs-on-board corrected by observed
// absorption.
func (s *CarbService) DynamicCarbsOnBoardSeries(ctx context.Context, userID uint, velocities []domain.GlucoseEffectVelocity, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule, start, end time.Time) ([]domain.CarbValue, error) {
	statuses, err := s.CarbStatuses(ctx, userID, velocities, carbRatios, sensitivities, start.Add(-s.lookback()), end)
	if err != nil {
		return nil, err
	}
	return s.engine.DynamicCarbsOnBoardSeries(statuses, start, end), nil
}

// GlucoseEffectSeries samples the modeled glucose effect of stored entries.
func (s *CarbService) GlucoseEffectSeries(ctx context.Context, userID uint, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule, start, end time.Time) ([]domain.GlucoseEffect, error) {
	if carbRatios == nil {
		return nil, apperrors.ErrMissingCarbRatios
	}
	if sensitivities == nil {
		return nil, apperrors.ErrMissingSensitivity
	}
	entries, err := s.GetEntries(ctx, userID, start.Add(-s.lookback()), end)
	if err != nil {
		return nil, err
	}
	return s.engine.GlucoseEffectSeries(entries, carbRatios, sensitivities, start, end), nil
}

func (s *CarbService) lookback() time.Duration {
	return time.Duration(float64(s.cfg.DefaultAbsorptionTime)*s.cfg.AbsorptionOverrun) + s.cfg.AbsorptionDelay
}

func validateCarbEntry(entry domain.CarbEntry) error {
	if entry.Quantity <= 0 {
		return apperrors.NewValidationError("carb quantity must be positive")
	}
	if entry.StartDate.IsZero() {
		return apperrors.NewValidationError("carb entry requires a start date")
	}
	if entry.AbsorptionTime != nil && *entry.AbsorptionTime <= 0 {
		return apperrors.NewValidationError("absorption time must be positive")
	}
	return nil
}
