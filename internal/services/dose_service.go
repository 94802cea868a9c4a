package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vladimiradmaev/dosekit/internal/cache"
	"github.com/vladimiradmaev/dosekit/internal/config"
	"github.com/vladimiradmaev/dosekit/internal/database"
	"github.com/vladimiradmaev/dosekit/internal/domain"
	"github.com/vladimiradmaev/dosekit/internal/dosing"
	apperrors "github.com/vladimiradmaev/dosekit/internal/errors"
	"github.com/vladimiradmaev/dosekit/internal/insulinmath"
	"github.com/vladimiradmaev/dosekit/internal/logger"
)

var _ domain.DoseService = (*DoseService)(nil)

// DoseService ingests pump history and serves normalized delivery and derived
// insulin timelines.
type DoseService struct {
	db    *gorm.DB
	cache cache.Store
	cfg   config.AlgorithmConfig
	model insulinmath.ActivityModel
}

// NewDoseService creates a new dose service. A nil model falls back to the
// exponential model parameterized by the algorithm config.
func NewDoseService(db *gorm.DB, store cache.Store, cfg config.AlgorithmConfig, model insulinmath.ActivityModel) *DoseService {
	if model == nil {
		model = insulinmath.NewExponentialModel(cfg.InsulinActionDuration, cfg.InsulinPeakActivity, cfg.InsulinDelay)
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &DoseService{
		db:    db,
		cache: store,
		cfg:   cfg,
		model: model,
	}
}

// AddPumpEvents ingests raw pump history: events are sorted, reconciled into a
// non-overlapping timeline, resolved, annotated against the basal schedule,
// and persisted. Basal-kind delivery cannot be annotated without a schedule,
// so ingesting it with a nil schedule returns ErrMissingBasalRates. Previously
// stored mutable entries are replaced wholesale; finalized entries are
// de-duplicated by sync identifier.
func (s *DoseService) AddPumpEvents(ctx context.Context, userID uint, events []domain.PumpEvent, basal *domain.BasalRateSchedule) error {
	doses := make([]domain.DoseEntry, 0, len(events))
	dosing.SortPumpEvents(events)
	for _, event := range events {
		if event.Dose == nil {
			continue
		}
		dose := *event.Dose
		if dose.SyncIdentifier == "" {
			dose.SyncIdentifier = uuid.NewString()
		}
		doses = append(doses, dose)
	}

	doses = dosing.Reconcile(doses)
	doses = dosing.ResolveDeliveredUnits(doses, s.cfg.DeliveryIncrement)
	if basal == nil {
		for _, dose := range doses {
			if dose.Kind.IsBasalKind() {
				return apperrors.ErrMissingBasalRates
			}
		}
	} else {
		doses = dosing.AnnotateAll(doses, basal)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// In-progress entries are superseded by this ingestion.
		if err := tx.Where("user_id = ? AND is_mutable = ?", userID, true).
			Delete(&database.CachedDoseEntry{}).Error; err != nil {
			return fmt.Errorf("failed to clear mutable dose entries: %w", err)
		}

		var existing []string
		if err := tx.Model(&database.CachedDoseEntry{}).
			Where("user_id = ?", userID).
			Pluck("sync_identifier", &existing).Error; err != nil {
			return fmt.Errorf("failed to load stored sync identifiers: %w", err)
		}
		known := make(map[string]bool, len(existing))
		for _, id := range existing {
			known[id] = true
		}

		for _, dose := range doses {
			if known[dose.SyncIdentifier] {
				continue
			}
			cached := database.NewCachedDoseEntry(userID, dose)
			if err := tx.Create(&cached).Error; err != nil {
				return fmt.Errorf("failed to store dose entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}

	s.cache.InvalidateUser(ctx, userID)
	logger.Debug("pump events ingested", "user_id", userID, "events", len(events), "doses", len(doses))
	return nil
}

// GetNormalizedDoses returns the stored delivery timeline clipped to
// [start, end], chronological. A zero end leaves the upper bound open.
func (s *DoseService) GetNormalizedDoses(ctx context.Context, userID uint, start, end time.Time) ([]domain.DoseEntry, error) {
	doses, err := s.fetchDoses(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return dosing.Trim(doses, start, end), nil
}

// InsulinOnBoardSeries samples insulin-on-board from start through end. Doses
// started up to the model's effect duration before start still contribute.
func (s *DoseService) InsulinOnBoardSeries(ctx context.Context, userID uint, start, end time.Time) ([]domain.InsulinValue, error) {
	doses, err := s.fetchDoses(ctx, userID, start.Add(-s.model.EffectDuration()), end)
	if err != nil {
		return nil, err
	}
	return dosing.InsulinOnBoardSeries(doses, s.model, start, end, s.cfg.Delta), nil
}

// InsulinOnBoardAt returns total insulin-on-board at a single date.
func (s *DoseService) InsulinOnBoardAt(ctx context.Context, userID uint, at time.Time) (float64, error) {
	doses, err := s.fetchDoses(ctx, userID, at.Add(-s.model.EffectDuration()), at)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, dose := range doses {
		total += dosing.InsulinOnBoard(dose, s.model, at, s.cfg.Delta)
	}
	return total, nil
}

// CurrentInsulinOnBoard returns the cached insulin-on-board timeline for the
// user, recomputing it over the trailing effect duration on a cache miss.
func (s *DoseService) CurrentInsulinOnBoard(ctx context.Context, userID uint) ([]domain.InsulinValue, error) {
	if values, ok := s.cache.GetInsulinOnBoard(ctx, userID); ok {
		return values, nil
	}
	now := time.Now()
	values, err := s.InsulinOnBoardSeries(ctx, userID, now.Truncate(s.cfg.Delta), now.Add(s.model.EffectDuration()))
	if err != nil {
		return nil, err
	}
	s.cache.SetInsulinOnBoard(ctx, userID, values)
	return values, nil
}

// GlucoseEffects samples the cumulative glucose effect of stored delivery.
// The sensitivity schedule is required.
func (s *DoseService) GlucoseEffects(ctx context.Context, userID uint, sensitivity *domain.InsulinSensitivitySchedule, start, end time.Time) ([]domain.GlucoseEffect, error) {
	if sensitivity == nil {
		return nil, apperrors.ErrMissingSensitivity
	}
	doses, err := s.fetchDoses(ctx, userID, start.Add(-s.model.EffectDuration()), end)
	if err != nil {
		return nil, err
	}
	return dosing.GlucoseEffectSeries(doses, s.model, sensitivity, start, end, s.cfg.Delta), nil
}

// TotalDelivery sums delivered units over [start, end], trimming boundary
// doses to their in-interval fraction.
func (s *DoseService) TotalDelivery(ctx context.Context, userID uint, start, end time.Time) (float64, error) {
	doses, err := s.GetNormalizedDoses(ctx, userID, start, end)
	if err != nil {
		return 0, err
	}
	return dosing.TotalDelivery(doses), nil
}

// fetchDoses loads stored entries overlapping [start, end] in chronological
// order. A zero end leaves the upper bound open.
func (s *DoseService) fetchDoses(ctx context.Context, userID uint, start, end time.Time) ([]domain.DoseEntry, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND end_time >= ?", userID, start)
	if !end.IsZero() {
		query = query.Where("start_time < ?", end)
	}

	var cached []database.CachedDoseEntry
	if err := query.Order("start_time ASC").Find(&cached).Error; err != nil {
		return nil, apperrors.NewDatabaseError(fmt.Errorf("failed to get dose entries: %w", err))
	}

	doses := make([]domain.DoseEntry, len(cached))
	for i, row := range cached {
		doses[i] = row.ToDomain()
	}
	return doses, nil
}
