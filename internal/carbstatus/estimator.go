// Package carbstatus estimates carbohydrate absorption per entry by blending
// the user-reported quantity with the observed glucose-effect-velocity
// signal, and apportions that signal across concurrent entries.
package carbstatus

import (
	"math"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/carbmath"
	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// completionEpsilon pads the completion comparison so that an effect stream
// integrating to exactly 100% is detected as complete.
const completionEpsilon = 1.1920929e-7

// EstimatorConfig holds the per-entry model parameters.
type EstimatorConfig struct {
	Curve carbmath.AbsorptionCurve

	// InitialAbsorptionTime is the entered (or default) absorption duration,
	// scaled by the initial overrun factor.
	InitialAbsorptionTime time.Duration

	// MaxAbsorptionTime caps how long absorption may take; it determines the
	// minimum physiologically-required absorption at any observation time.
	MaxAbsorptionTime time.Duration

	// Delay is the time between intake and the start of observable effect.
	Delay time.Duration

	// CarbSensitivityFactor converts grams to glucose effect (mg/dL per
	// gram): insulin sensitivity divided by carb ratio.
	CarbSensitivityFactor float64

	AdaptiveRateEnabled         bool
	AdaptiveRateStandbyFraction float64
}

// Estimator is the absorption state of a single carb entry. It is an
// immutable value: Advance returns the successor state, leaving the receiver
// untouched, so repeated runs over the same input are reproducible.
type Estimator struct {
	entry domain.CarbEntry
	cfg   EstimatorConfig

	observedEffect     float64
	observedTimeline   []domain.CarbValue
	observedCompletion *time.Time
	lastEffectDate     time.Time
}

// NewEstimator builds the initial state for an entry. Observation begins at
// the entry's start date.
func NewEstimator(entry domain.CarbEntry, cfg EstimatorConfig) Estimator {
	return Estimator{
		entry:          entry,
		cfg:            cfg,
		lastEffectDate: entry.StartDate,
	}
}

// Entry returns the originating carb entry.
func (e Estimator) Entry() domain.CarbEntry {
	return e.entry
}

// MaxEndDate is the latest instant at which this entry can still absorb.
func (e Estimator) MaxEndDate() time.Time {
	return e.entry.StartDate.Add(e.cfg.MaxAbsorptionTime + e.cfg.Delay)
}

// entryEffect is the total expected glucose effect of the entry.
func (e Estimator) entryEffect() float64 {
	return e.entry.Quantity * e.cfg.CarbSensitivityFactor
}

// RemainingEffect is the portion of the expected effect not yet observed.
func (e Estimator) RemainingEffect() float64 {
	return math.Max(e.entryEffect()-e.observedEffect, 0)
}

// ObservedGrams converts the accumulated observed effect back to grams.
func (e Estimator) ObservedGrams() float64 {
	if e.cfg.CarbSensitivityFactor <= 0 {
		return 0
	}
	return e.observedEffect / e.cfg.CarbSensitivityFactor
}

// observationTime is the elapsed absorption time at the last observation,
// net of the effect delay.
func (e Estimator) observationTime() time.Duration {
	return e.lastEffectDate.Sub(e.entry.StartDate) - e.cfg.Delay
}

// MinPredictedGrams is the floor on credited absorption: the model-predicted
// grams at the last observation time against the maximum absorption time. We
// never credit less than physiologically guaranteed absorption.
func (e Estimator) MinPredictedGrams() float64 {
	return carbmath.AbsorbedCarbs(e.cfg.Curve, e.entry.Quantity, e.observationTime(), e.cfg.MaxAbsorptionTime)
}

// ClampedGrams bounds the observation below by the model minimum and above
// by the entered total.
func (e Estimator) ClampedGrams() float64 {
	return math.Min(e.entry.Quantity, math.Max(e.MinPredictedGrams(), e.ObservedGrams()))
}

func (e Estimator) adaptiveRateStandby() time.Duration {
	return time.Duration(float64(e.cfg.InitialAbsorptionTime) * e.cfg.AdaptiveRateStandbyFraction)
}

func (e Estimator) adaptiveRateActive(observation time.Duration) bool {
	return e.cfg.AdaptiveRateEnabled && observation > e.adaptiveRateStandby()
}

// TimeToAbsorbObserved returns how long absorbing the observed grams took.
// In adaptive mode this is simply the observation time; otherwise it is read
// off the initial absorption model. Never exceeds the maximum absorption
// time.
func (e Estimator) TimeToAbsorbObserved() time.Duration {
	observation := e.observationTime()
	if observation <= 0 {
		return 0
	}
	var timeToAbsorb time.Duration
	if e.adaptiveRateActive(observation) {
		timeToAbsorb = observation
	} else {
		percent := 1.0
		if e.entry.Quantity > 0 {
			percent = math.Min(e.ObservedGrams()/e.entry.Quantity, 1)
		}
		timeToAbsorb = carbmath.TimeToAbsorb(e.cfg.Curve, percent, e.cfg.InitialAbsorptionTime)
	}
	return minDuration(timeToAbsorb, e.cfg.MaxAbsorptionTime)
}

// EstimatedTimeRemaining returns how long the remaining grams will take to
// absorb. In adaptive mode the observed relative rate is extrapolated
// forward; otherwise the initial model is used. Total absorption time never
// exceeds the maximum absorption time.
func (e Estimator) EstimatedTimeRemaining() time.Duration {
	observation := e.observationTime()
	if observation <= 0 {
		return e.cfg.InitialAbsorptionTime
	}
	notToExceed := e.cfg.MaxAbsorptionTime - observation
	if notToExceed < 0 {
		notToExceed = 0
	}

	var remaining time.Duration
	if e.adaptiveRateActive(observation) {
		percentAbsorbed := 0.0
		if e.entry.Quantity > 0 {
			percentAbsorbed = e.ClampedGrams() / e.entry.Quantity
		}
		dynamicTotal := carbmath.AbsorptionTime(e.cfg.Curve, percentAbsorbed, observation)
		remaining = dynamicTotal - observation
	} else {
		remaining = e.cfg.InitialAbsorptionTime - e.TimeToAbsorbObserved()
	}
	if remaining < 0 {
		remaining = 0
	}
	return minDuration(remaining, notToExceed)
}

// DynamicAbsorptionTime is the current best estimate of the entry's total
// absorption time.
func (e Estimator) DynamicAbsorptionTime() time.Duration {
	return minDuration(e.TimeToAbsorbObserved()+e.EstimatedTimeRemaining(), e.cfg.MaxAbsorptionTime)
}

// AbsorptionRateAt returns the instantaneous modeled absorption rate (grams
// per second) at the given offset from the entry start. This is the
// apportionment weight used when splitting a velocity sample across entries.
func (e Estimator) AbsorptionRateAt(t time.Duration) float64 {
	dynamic := e.DynamicAbsorptionTime()
	if dynamic <= 0 {
		return 0
	}
	percentTime := float64(t) / float64(dynamic)
	averageRate := e.entry.Quantity / dynamic.Seconds()
	return averageRate * e.cfg.Curve.PercentRateAtPercentTime(percentTime)
}

// Advance accumulates one glucose-effect observation (mg/dL over
// [start, end]) and returns the successor state. Effects dated before the
// entry started are ignored. The observed timeline is recorded only until
// 100% of the entry has been observed.
func (e Estimator) Advance(effect float64, start, end time.Time) Estimator {
	if start.Before(e.entry.StartDate) {
		return e
	}
	next := e
	next.observedEffect += effect

	if e.observedCompletion == nil {
		grams := 0.0
		if e.cfg.CarbSensitivityFactor > 0 {
			grams = effect / e.cfg.CarbSensitivityFactor
		}
		timeline := make([]domain.CarbValue, len(e.observedTimeline), len(e.observedTimeline)+1)
		copy(timeline, e.observedTimeline)
		next.observedTimeline = append(timeline, domain.CarbValue{
			StartDate: start,
			EndDate:   end,
			Value:     grams,
		})
		if next.observedEffect+completionEpsilon >= next.entryEffect() {
			completion := end
			next.observedCompletion = &completion
		}
	}

	next.lastEffectDate = minTime(end, e.MaxEndDate())
	return next
}

// Result snapshots the estimator into a CarbStatus. The observed timeline is
// reported only when observation has kept pace with the minimum
// physiologically-required absorption; otherwise callers fall back to
// modeled absorption.
func (e Estimator) Result() domain.CarbStatus {
	observed := e.ObservedGrams()
	clamped := e.ClampedGrams()

	observationEnd := e.lastEffectDate
	if e.observedCompletion != nil {
		observationEnd = *e.observedCompletion
	}

	absorption := &domain.AbsorbedCarbValue{
		Observed:  observed,
		Clamped:   clamped,
		Total:     e.entry.Quantity,
		Remaining: e.entry.Quantity - clamped,
		ObservedInterval: domain.DateInterval{
			Start: e.entry.StartDate,
			End:   observationEnd,
		},
		EstimatedTimeRemaining: e.EstimatedTimeRemaining(),
		TimeToAbsorbObserved:   e.TimeToAbsorbObserved(),
	}

	timeline := domain.ModeledOnlyAbsorption()
	if observed >= e.MinPredictedGrams() {
		timeline = domain.ObservedAbsorption(e.observedTimeline)
	}

	return domain.CarbStatus{
		Entry:      e.entry,
		Absorption: absorption,
		Timeline:   timeline,
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
