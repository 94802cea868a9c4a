package dosing

import (
	"math"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/domain"
	"github.com/vladimiradmaev/dosekit/internal/insulinmath"
)

// DefaultDelta is the sampling interval of computed timelines.
const DefaultDelta = 5 * time.Minute

// instantaneousFactor separates bolus-like doses from continuous delivery: a
// dose no longer than 1.05 sampling intervals is treated as instantaneous.
const instantaneousFactor = 1.05

// InsulinOnBoardSeries integrates doses against the activity model, sampling
// insulin-on-board every delta from start through end inclusive. Zero start
// and end times derive the range from the dose windows extended by the
// model's effect duration.
func InsulinOnBoardSeries(doses []domain.DoseEntry, model insulinmath.ActivityModel, start, end time.Time, delta time.Duration) []domain.InsulinValue {
	if delta <= 0 {
		delta = DefaultDelta
	}
	simStart, simEnd, ok := simulationDateRange(doses, model.EffectDuration(), delta, start, end)
	if !ok {
		return nil
	}
	var values []domain.InsulinValue
	for date := simStart; !date.After(simEnd); date = date.Add(delta) {
		var value float64
		for _, dose := range doses {
			value += InsulinOnBoard(dose, model, date, delta)
		}
		values = append(values, domain.InsulinValue{Date: date, Value: value})
	}
	return values
}

// InsulinOnBoard returns the dose's remaining insulin at the given date.
func InsulinOnBoard(dose domain.DoseEntry, model insulinmath.ActivityModel, at time.Time, delta time.Duration) float64 {
	t := at.Sub(dose.StartDate)
	if t < 0 {
		return 0
	}
	if isInstantaneous(dose, delta) {
		return dose.NetBasalUnits() * model.PercentEffectRemaining(t)
	}
	return dose.NetBasalUnits() * continuousDeliveryPercentRemaining(dose, model, at, delta)
}

// GlucoseEffectSeries integrates doses against the activity model and an
// insulin sensitivity schedule, sampling the cumulative glucose effect
// (mg/dL, negative for delivered insulin) every delta from start through end
// inclusive. Sensitivity is looked up at each dose's start.
func GlucoseEffectSeries(doses []domain.DoseEntry, model insulinmath.ActivityModel, sensitivity *domain.InsulinSensitivitySchedule, start, end time.Time, delta time.Duration) []domain.GlucoseEffect {
	if delta <= 0 {
		delta = DefaultDelta
	}
	simStart, simEnd, ok := simulationDateRange(doses, model.EffectDuration(), delta, start, end)
	if !ok {
		return nil
	}
	var effects []domain.GlucoseEffect
	for date := simStart; !date.After(simEnd); date = date.Add(delta) {
		var value float64
		for _, dose := range doses {
			isf := sensitivity.ValueAt(dose.StartDate)
			value += GlucoseEffect(dose, model, isf, date, delta)
		}
		effects = append(effects, domain.GlucoseEffect{Date: date, Value: value})
	}
	return effects
}

// GlucoseEffectSeriesTimeVarying is GlucoseEffectSeries for sensitivity that
// changes during a dose: each dose is integrated piecewise across every
// sensitivity segment overlapping it.
func GlucoseEffectSeriesTimeVarying(doses []domain.DoseEntry, model insulinmath.ActivityModel, sensitivity *domain.InsulinSensitivitySchedule, start, end time.Time, delta time.Duration) []domain.GlucoseEffect {
	if delta <= 0 {
		delta = DefaultDelta
	}
	type fragment struct {
		dose domain.DoseEntry
		isf  float64
	}
	var fragments []fragment
	for _, dose := range doses {
		if dose.Duration() <= 0 {
			fragments = append(fragments, fragment{dose, sensitivity.ValueAt(dose.StartDate)})
			continue
		}
		for _, segment := range sensitivity.Between(dose.StartDate, dose.EndDate) {
			fragments = append(fragments, fragment{dose.Trimmed(segment.StartDate, segment.EndDate), segment.Value})
		}
	}

	simStart, simEnd, ok := simulationDateRange(doses, model.EffectDuration(), delta, start, end)
	if !ok {
		return nil
	}
	var effects []domain.GlucoseEffect
	for date := simStart; !date.After(simEnd); date = date.Add(delta) {
		var value float64
		for _, f := range fragments {
			value += GlucoseEffect(f.dose, model, f.isf, date, delta)
		}
		effects = append(effects, domain.GlucoseEffect{Date: date, Value: value})
	}
	return effects
}

// GlucoseEffect returns the dose's cumulative glucose effect at the given
// date for a fixed insulin sensitivity (mg/dL per unit).
func GlucoseEffect(dose domain.DoseEntry, model insulinmath.ActivityModel, insulinSensitivity float64, at time.Time, delta time.Duration) float64 {
	t := at.Sub(dose.StartDate)
	if t < 0 {
		return 0
	}
	if isInstantaneous(dose, delta) {
		return dose.NetBasalUnits() * -insulinSensitivity * (1 - model.PercentEffectRemaining(t))
	}
	return dose.NetBasalUnits() * -insulinSensitivity * continuousDeliveryGlucoseEffect(dose, model, at, delta)
}

func isInstantaneous(dose domain.DoseEntry, delta time.Duration) bool {
	return float64(dose.Duration()) <= instantaneousFactor*float64(delta)
}

// continuousDeliveryPercentRemaining numerically integrates a continuous
// dose in delta-sized sub-segments, weighting each segment by the fraction
// of total dose duration it covers.
func continuousDeliveryPercentRemaining(dose domain.DoseEntry, model insulinmath.ActivityModel, at time.Time, delta time.Duration) float64 {
	doseDuration := dose.Duration().Seconds()
	t := at.Sub(dose.StartDate).Seconds()
	step := delta.Seconds()

	var percent float64
	var doseDate float64
	limit := math.Min(math.Floor((t+model.Delay().Seconds())/step)*step, doseDuration)
	for {
		var segment float64
		if doseDuration > 0 {
			segment = math.Max(0, math.Min(doseDate+step, doseDuration)-doseDate) / doseDuration
		} else {
			segment = 1
		}
		percent += segment * model.PercentEffectRemaining(secondsToDuration(t-doseDate))
		doseDate += step
		if doseDate > limit {
			break
		}
	}
	return percent
}

func continuousDeliveryGlucoseEffect(dose domain.DoseEntry, model insulinmath.ActivityModel, at time.Time, delta time.Duration) float64 {
	doseDuration := dose.Duration().Seconds()
	t := at.Sub(dose.StartDate).Seconds()
	step := delta.Seconds()

	var effect float64
	var doseDate float64
	limit := math.Min(math.Floor((t+model.Delay().Seconds())/step)*step, doseDuration)
	for {
		var segment float64
		if doseDuration > 0 {
			segment = math.Max(0, math.Min(doseDate+step, doseDuration)-doseDate) / doseDuration
		} else {
			segment = 1
		}
		effect += segment * (1 - model.PercentEffectRemaining(secondsToDuration(t-doseDate)))
		doseDate += step
		if doseDate > limit {
			break
		}
	}
	return effect
}

// simulationDateRange bounds a timeline by the union of dose windows extended
// by the model's effect duration, aligned to delta. Explicit non-zero bounds
// override the derived ones.
func simulationDateRange(doses []domain.DoseEntry, duration, delta time.Duration, start, end time.Time) (time.Time, time.Time, bool) {
	if len(doses) == 0 {
		return time.Time{}, time.Time{}, false
	}
	minDate := doses[0].StartDate
	maxDate := doses[0].EndDate
	for _, dose := range doses {
		if dose.StartDate.Before(minDate) {
			minDate = dose.StartDate
		}
		if dose.EndDate.After(maxDate) {
			maxDate = dose.EndDate
		}
	}
	if start.IsZero() {
		start = dateFloored(minDate, delta)
	}
	if end.IsZero() {
		end = dateCeiled(maxDate.Add(duration), delta)
	}
	return start, end, true
}

func dateFloored(date time.Time, delta time.Duration) time.Time {
	if delta <= 0 {
		return date
	}
	return date.Truncate(delta)
}

func dateCeiled(date time.Time, delta time.Duration) time.Time {
	if delta <= 0 {
		return date
	}
	floored := date.Truncate(delta)
	if floored.Equal(date) {
		return date
	}
	return floored.Add(delta)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
