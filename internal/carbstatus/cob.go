package carbstatus

import (
	"math"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/carbmath"
	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// CarbsOnBoardSeries samples modeled carbs-on-board every delta from start
// through end inclusive, using each entry's absorption time (or the default)
// without observation correction. Zero bounds are derived from the entry
// windows extended by the maximum absorption time.
func (e *Engine) CarbsOnBoardSeries(entries []domain.CarbEntry, start, end time.Time) []domain.CarbValue {
	simStart, simEnd, ok := e.simulationDateRange(entries, start, end)
	if !ok {
		return nil
	}
	var values []domain.CarbValue
	for date := simStart; !date.After(simEnd); date = date.Add(e.cfg.Delta) {
		var cob float64
		for _, entry := range entries {
			cob += e.modeledUnabsorbed(entry, date)
		}
		values = append(values, domain.CarbValue{StartDate: date, EndDate: date, Value: cob})
	}
	return values
}

// GlucoseEffectSeries samples the modeled cumulative glucose effect of the
// entries (mg/dL, positive) every delta from start through end inclusive.
// Returns nil when either schedule is missing.
func (e *Engine) GlucoseEffectSeries(entries []domain.CarbEntry, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule, start, end time.Time) []domain.GlucoseEffect {
	if carbRatios == nil || sensitivities == nil {
		return nil
	}
	simStart, simEnd, ok := e.simulationDateRange(entries, start, end)
	if !ok {
		return nil
	}
	var effects []domain.GlucoseEffect
	for date := simStart; !date.After(simEnd); date = date.Add(e.cfg.Delta) {
		var value float64
		for _, entry := range entries {
			csf := carbSensitivityFactor(entry, carbRatios, sensitivities)
			absorbed := entry.Quantity - e.modeledUnabsorbed(entry, date)
			value += csf * absorbed
		}
		effects = append(effects, domain.GlucoseEffect{Date: date, Value: value})
	}
	return effects
}

// DynamicCarbsOnBoardSeries samples carbs-on-board corrected by observed
// absorption: while signal was observed, the attributed timeline is
// subtracted; past the last observation the remaining grams decay linearly
// over the estimated time remaining.
func (e *Engine) DynamicCarbsOnBoardSeries(statuses []domain.CarbStatus, start, end time.Time) []domain.CarbValue {
	entries := make([]domain.CarbEntry, len(statuses))
	for i, status := range statuses {
		entries[i] = status.Entry
	}
	simStart, simEnd, ok := e.simulationDateRange(entries, start, end)
	if !ok {
		return nil
	}
	var values []domain.CarbValue
	for date := simStart; !date.After(simEnd); date = date.Add(e.cfg.Delta) {
		var cob float64
		for _, status := range statuses {
			cob += e.dynamicUnabsorbed(status, date)
		}
		values = append(values, domain.CarbValue{StartDate: date, EndDate: date, Value: cob})
	}
	return values
}

// DynamicGlucoseEffectSeries samples the cumulative glucose effect implied
// by dynamic absorption. Returns nil when either schedule is missing.
func (e *Engine) DynamicGlucoseEffectSeries(statuses []domain.CarbStatus, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule, start, end time.Time) []domain.GlucoseEffect {
	if carbRatios == nil || sensitivities == nil {
		return nil
	}
	entries := make([]domain.CarbEntry, len(statuses))
	for i, status := range statuses {
		entries[i] = status.Entry
	}
	simStart, simEnd, ok := e.simulationDateRange(entries, start, end)
	if !ok {
		return nil
	}
	var effects []domain.GlucoseEffect
	for date := simStart; !date.After(simEnd); date = date.Add(e.cfg.Delta) {
		var value float64
		for _, status := range statuses {
			csf := carbSensitivityFactor(status.Entry, carbRatios, sensitivities)
			absorbed := status.Entry.Quantity - e.dynamicUnabsorbed(status, date)
			value += csf * absorbed
		}
		effects = append(effects, domain.GlucoseEffect{Date: date, Value: value})
	}
	return effects
}

// modeledUnabsorbed is the entry's remaining grams at date under the fixed
// absorption model.
func (e *Engine) modeledUnabsorbed(entry domain.CarbEntry, date time.Time) float64 {
	if date.Before(entry.StartDate) {
		return 0
	}
	absorptionTime := entry.AbsorptionTimeOrDefault(e.cfg.DefaultAbsorptionTime)
	elapsed := date.Sub(entry.StartDate) - e.cfg.Delay
	return carbmath.UnabsorbedCarbs(e.cfg.AbsorptionModel, entry.Quantity, elapsed, absorptionTime)
}

// dynamicUnabsorbed is the entry's remaining grams at date, using observed
// absorption where available.
func (e *Engine) dynamicUnabsorbed(status domain.CarbStatus, date time.Time) float64 {
	if date.Before(status.Entry.StartDate) {
		return 0
	}
	if status.Absorption == nil {
		return e.modeledUnabsorbed(status.Entry, date)
	}
	timeline, ok := status.Timeline.Observed()
	if !ok {
		// Below the minimum physiologically-required absorption; only the
		// model is trustworthy.
		return e.modeledUnabsorbed(status.Entry, date)
	}

	var absorbed float64
	for _, bucket := range timeline {
		switch {
		case !date.Before(bucket.EndDate):
			absorbed += bucket.Value
		case date.After(bucket.StartDate):
			span := bucket.EndDate.Sub(bucket.StartDate)
			absorbed += bucket.Value * float64(date.Sub(bucket.StartDate)) / float64(span)
		}
	}

	observationEnd := status.Absorption.ObservedInterval.End
	if date.After(observationEnd) {
		// Absorb the clamped remainder linearly over the estimated time
		// remaining.
		absorbed = math.Max(absorbed, status.Absorption.Clamped)
		remaining := status.Absorption.Remaining
		if estimated := status.Absorption.EstimatedTimeRemaining; estimated > 0 {
			fraction := math.Min(float64(date.Sub(observationEnd))/float64(estimated), 1)
			absorbed += remaining * fraction
		} else {
			absorbed += remaining
		}
	}

	return math.Max(status.Entry.Quantity-math.Min(absorbed, status.Entry.Quantity), 0)
}

func (e *Engine) simulationDateRange(entries []domain.CarbEntry, start, end time.Time) (time.Time, time.Time, bool) {
	if len(entries) == 0 {
		return time.Time{}, time.Time{}, false
	}
	minDate := entries[0].StartDate
	maxDate := minDate
	for _, entry := range entries {
		if entry.StartDate.Before(minDate) {
			minDate = entry.StartDate
		}
		absorptionTime := entry.AbsorptionTimeOrDefault(e.cfg.DefaultAbsorptionTime)
		maxAbsorption := time.Duration(float64(absorptionTime) * e.cfg.AbsorptionOverrun)
		if entryEnd := entry.StartDate.Add(maxAbsorption + e.cfg.Delay); entryEnd.After(maxDate) {
			maxDate = entryEnd
		}
	}
	if start.IsZero() {
		start = minDate.Truncate(e.cfg.Delta)
	}
	if end.IsZero() {
		end = maxDate.Truncate(e.cfg.Delta)
		if end.Before(maxDate) {
			end = end.Add(e.cfg.Delta)
		}
	}
	return start, end, true
}

func carbSensitivityFactor(entry domain.CarbEntry, carbRatios *domain.CarbRatioSchedule, sensitivities *domain.InsulinSensitivitySchedule) float64 {
	ratio := carbRatios.ValueAt(entry.StartDate)
	if ratio <= 0 {
		return 0
	}
	return sensitivities.ValueAt(entry.StartDate) / ratio
}
