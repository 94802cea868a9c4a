package carbstatus

import (
	"math"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/carbmath"
	"github.com/vladimiradmaev/dosekit/internal/domain"
	"github.com/vladimiradmaev/dosekit/internal/logger"
)

// Config holds the absorption model settings shared by all entries.
type Config struct {
	AbsorptionModel carbmath.AbsorptionCurve

	// DefaultAbsorptionTime is substituted when an entry carries none.
	DefaultAbsorptionTime time.Duration

	// AbsorptionOverrun scales the entered absorption time into the maximum
	// allowed absorption time.
	AbsorptionOverrun float64

	// InitialAbsorptionOverrun scales the entered absorption time into the
	// initial modeled absorption time.
	InitialAbsorptionOverrun float64

	// Delay is the time between intake and the start of observable effect.
	Delay time.Duration

	// Delta is the sampling interval of computed timelines.
	Delta time.Duration

	AdaptiveRateEnabled         bool
	AdaptiveRateStandbyFraction float64
}

// DefaultConfig returns the standard model settings: piecewise-linear
// absorption, 3 hour default entry, 1.5x maximum overrun, 10 minute effect
// delay, 5 minute sampling.
func DefaultConfig() Config {
	return Config{
		AbsorptionModel:             carbmath.NewPiecewiseLinearAbsorption(),
		DefaultAbsorptionTime:       3 * time.Hour,
		AbsorptionOverrun:           1.5,
		InitialAbsorptionOverrun:    1.0,
		Delay:                       10 * time.Minute,
		Delta:                       5 * time.Minute,
		AdaptiveRateEnabled:         false,
		AdaptiveRateStandbyFraction: 0.2,
	}
}

// Engine orchestrates per-entry absorption estimators against a
// chronological glucose-effect-velocity stream.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine, correcting unusable settings to defaults.
func NewEngine(cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.AbsorptionModel == nil {
		cfg.AbsorptionModel = defaults.AbsorptionModel
	}
	if cfg.DefaultAbsorptionTime <= 0 {
		cfg.DefaultAbsorptionTime = defaults.DefaultAbsorptionTime
	}
	if cfg.AbsorptionOverrun <= 0 {
		cfg.AbsorptionOverrun = defaults.AbsorptionOverrun
	}
	if cfg.InitialAbsorptionOverrun <= 0 {
		cfg.InitialAbsorptionOverrun = defaults.InitialAbsorptionOverrun
	}
	if cfg.Delta <= 0 {
		cfg.Delta = defaults.Delta
	}
	return &Engine{cfg: cfg}
}

// Statuses computes a CarbStatus per entry, order-preserving, by apportioning
// each velocity sample among all entries actively absorbing at the sample's
// start. Velocities must be chronological and non-overlapping; negative
// velocities indicate insulin-driven effect and are floored to zero.
//
// When either schedule is missing, absorption cannot be computed and every
// status carries a nil absorption.
func (e *Engine) Statuses(entries []domain.CarbEntry, velocities []domain.GlucoseEffectVelocity, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule) []domain.CarbStatus {
	statuses := make([]domain.CarbStatus, len(entries))
	if carbRatios == nil || sensitivities == nil {
		for i, entry := range entries {
			statuses[i] = domain.CarbStatus{Entry: entry, Timeline: domain.ModeledOnlyAbsorption()}
		}
		return statuses
	}

	estimators := make([]Estimator, len(entries))
	for i, entry := range entries {
		estimators[i] = NewEstimator(entry, e.estimatorConfig(entry, carbRatios, sensitivities))
	}

	for _, velocity := range velocities {
		if !velocity.EndDate.After(velocity.StartDate) {
			// Well-formed upstream data never produces this; skip defensively.
			logger.Error("glucose effect velocity has non-positive duration",
				"start", velocity.StartDate, "end", velocity.EndDate)
			continue
		}

		effectValue := math.Max(0, velocity.Value) * velocity.EndDate.Sub(velocity.StartDate).Minutes()

		// Entries whose absorption window contains the sample start share it.
		active := make([]int, 0, len(estimators))
		var totalRate float64
		for i := range estimators {
			entryStart := estimators[i].Entry().StartDate
			if velocity.StartDate.Before(estimators[i].MaxEndDate()) && !velocity.StartDate.Before(entryStart) {
				active = append(active, i)
				totalRate += estimators[i].AbsorptionRateAt(velocity.StartDate.Sub(entryStart))
			}
		}

		// Greedy split in stable entry order: each entry takes its
		// rate-proportional share, capped by its remaining effect; later
		// entries divide only what is left. A sample can land where every
		// active entry's modeled rate is zero (the entry's own start, or past
		// its dynamic absorption time); the effect still belongs to those
		// windows, so fall back to a plain greedy allocation instead of
		// dropping it.
		for _, i := range active {
			rate := estimators[i].AbsorptionRateAt(velocity.StartDate.Sub(estimators[i].Entry().StartDate))
			var partial float64
			if totalRate > 0 {
				partial = math.Min(estimators[i].RemainingEffect(), rate/totalRate*effectValue)
				totalRate -= rate
			} else {
				partial = math.Min(estimators[i].RemainingEffect(), effectValue)
			}
			effectValue -= partial
			estimators[i] = estimators[i].Advance(partial, velocity.StartDate, velocity.EndDate)
		}
		// TODO: residual effect with no active entry at all is dropped;
		// credit it to the most recent entry once that behavior is settled.
	}

	for i := range estimators {
		statuses[i] = estimators[i].Result()
	}
	return statuses
}

func (e *Engine) estimatorConfig(entry domain.CarbEntry, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule) EstimatorConfig {
	csf := 0.0
	if ratio := carbRatios.ValueAt(entry.StartDate); ratio > 0 {
		csf = sensitivities.ValueAt(entry.StartDate) / ratio
	}
	absorptionTime := entry.AbsorptionTimeOrDefault(e.cfg.DefaultAbsorptionTime)
	return EstimatorConfig{
		Curve:                       e.cfg.AbsorptionModel,
		InitialAbsorptionTime:       time.Duration(float64(absorptionTime) * e.cfg.InitialAbsorptionOverrun),
		MaxAbsorptionTime:           time.Duration(float64(absorptionTime) * e.cfg.AbsorptionOverrun),
		Delay:                       e.cfg.Delay,
		CarbSensitivityFactor:       csf,
		AdaptiveRateEnabled:         e.cfg.AdaptiveRateEnabled,
		AdaptiveRateStandbyFraction: e.cfg.AdaptiveRateStandbyFraction,
	}
}
