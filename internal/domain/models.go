package domain

import (
	"math"
	"time"
)

// ulpOfOne is the smallest meaningful difference between basal rates. Rate
// differences below this are treated as exactly zero net delivery.
const ulpOfOne = 2.220446049250313e-16

// DoseKind identifies the delivery shape of a dose entry.
type DoseKind string

const (
	DoseBolus     DoseKind = "bolus"
	DoseBasal     DoseKind = "basal"
	DoseTempBasal DoseKind = "tempBasal"
	DoseSuspend   DoseKind = "suspend"
	DoseResume    DoseKind = "resume"
)

// IsBasalKind reports whether the kind occupies the basal channel, meaning at
// most one such dose may be active at any instant.
func (k DoseKind) IsBasalKind() bool {
	switch k {
	case DoseBasal, DoseTempBasal, DoseSuspend, DoseResume:
		return true
	default:
		return false
	}
}

// DoseUnit is the unit of a dose entry's programmed value.
type DoseUnit string

const (
	UnitUnits        DoseUnit = "U"
	UnitUnitsPerHour DoseUnit = "U/hr"
)

// DoseEntry represents a single interval of insulin delivery.
type DoseEntry struct {
	Kind      DoseKind
	StartDate time.Time
	EndDate   time.Time

	// Value is the programmed value in Unit: total units for UnitUnits,
	// a rate for UnitUnitsPerHour. Suspend and resume entries carry zero.
	Value float64
	Unit  DoseUnit

	// DeliveredUnits is the pump-confirmed delivery, when known.
	DeliveredUnits *float64

	// ScheduledBasalRate is the scheduled rate (U/hr) in effect during the
	// dose, filled in by annotation.
	ScheduledBasalRate *float64

	InsulinType string

	// IsMutable marks an in-progress entry which may still change; mutable
	// entries are replaced wholesale on each update, never edited in place.
	IsMutable bool

	// Automatic distinguishes loop-commanded delivery from manual entry.
	Automatic bool

	// SyncIdentifier is a stable identifier used for de-duplication and
	// update-in-place against remote stores.
	SyncIdentifier string
}

// Duration returns the length of the delivery interval.
func (d DoseEntry) Duration() time.Duration {
	return d.EndDate.Sub(d.StartDate)
}

// Hours returns the delivery interval length in hours.
func (d DoseEntry) Hours() float64 {
	return d.Duration().Hours()
}

// UnitsPerHour returns the delivery rate of the dose.
func (d DoseEntry) UnitsPerHour() float64 {
	if d.Unit == UnitUnitsPerHour {
		return d.Value
	}
	hours := d.Hours()
	if hours <= 0 {
		return 0
	}
	return d.Value / hours
}

// ProgrammedUnits returns the total programmed units of the dose.
func (d DoseEntry) ProgrammedUnits() float64 {
	if d.Unit == UnitUnits {
		return d.Value
	}
	return d.Value * d.Hours()
}

// UnitsInDeliverableIncrements rounds the programmed units down to the
// pump's smallest deliverable increment.
func (d DoseEntry) UnitsInDeliverableIncrements(increment float64) float64 {
	units := d.ProgrammedUnits()
	if increment <= 0 {
		return units
	}
	return math.Floor(units/increment) * increment
}

// NetBasalUnitsPerHour returns the delivery rate relative to the scheduled
// basal rate. Bolus entries have no basal channel and return zero.
func (d DoseEntry) NetBasalUnitsPerHour() float64 {
	if d.Kind == DoseBolus {
		return 0
	}
	if d.ScheduledBasalRate == nil {
		return d.UnitsPerHour()
	}
	rate := d.UnitsPerHour() - *d.ScheduledBasalRate
	if math.Abs(rate) <= ulpOfOne {
		return 0
	}
	return rate
}

// NetBasalUnits returns the insulin delivered above or below the scheduled
// basal rate over the dose interval. For boluses this is the delivered (or
// programmed) amount.
func (d DoseEntry) NetBasalUnits() float64 {
	switch d.Kind {
	case DoseBolus:
		if d.DeliveredUnits != nil {
			return *d.DeliveredUnits
		}
		return d.ProgrammedUnits()
	case DoseBasal:
		if d.ScheduledBasalRate == nil {
			return 0
		}
	}
	hours := d.Hours()
	if hours <= 0 {
		return 0
	}
	return d.NetBasalUnitsPerHour() * hours
}

// Trimmed returns a copy of the dose clipped to [start, end]. A zero time
// leaves the corresponding boundary unchanged. Unit-quantity values are
// scaled by the retained fraction of the interval.
func (d DoseEntry) Trimmed(start, end time.Time) DoseEntry {
	trimmed := d
	if !start.IsZero() && d.StartDate.Before(start) {
		trimmed.StartDate = start
	}
	if !end.IsZero() && d.EndDate.After(end) {
		trimmed.EndDate = end
	}
	if trimmed.EndDate.Before(trimmed.StartDate) {
		trimmed.EndDate = trimmed.StartDate
	}
	if d.Unit == UnitUnits && d.Duration() > 0 {
		trimmed.Value = d.Value * trimmed.Duration().Seconds() / d.Duration().Seconds()
		if d.DeliveredUnits != nil {
			delivered := *d.DeliveredUnits * trimmed.Duration().Seconds() / d.Duration().Seconds()
			trimmed.DeliveredUnits = &delivered
		}
	}
	return trimmed
}

// PumpEventKind identifies a raw pump history event. Only some kinds carry a
// dose; the rest participate in fetch-layer ordering.
type PumpEventKind string

const (
	PumpEventBolus      PumpEventKind = "bolus"
	PumpEventAlarm      PumpEventKind = "alarm"
	PumpEventAlarmClear PumpEventKind = "alarmClear"
	PumpEventRewind     PumpEventKind = "rewind"
	PumpEventPrime      PumpEventKind = "prime"
	PumpEventSuspend    PumpEventKind = "suspend"
	PumpEventResume     PumpEventKind = "resume"
	PumpEventTempBasal  PumpEventKind = "tempBasal"
	PumpEventBasal      PumpEventKind = "basal"
)

// SortOrder ranks same-timestamp pump events for fetch-layer sorting.
func (k PumpEventKind) SortOrder() int {
	switch k {
	case PumpEventBolus:
		return 1
	case PumpEventAlarm:
		return 2
	case PumpEventAlarmClear:
		return 3
	case PumpEventRewind:
		return 4
	case PumpEventPrime:
		return 5
	case PumpEventSuspend:
		return 6
	case PumpEventResume:
		return 7
	case PumpEventTempBasal:
		return 8
	case PumpEventBasal:
		return 9
	default:
		return 10
	}
}

// PumpEvent is a raw event from pump history.
type PumpEvent struct {
	Kind PumpEventKind
	Date time.Time
	Dose *DoseEntry
}

// CarbEntry represents user-reported carbohydrate intake.
type CarbEntry struct {
	// Quantity is grams of carbohydrate. Never negative.
	Quantity  float64
	StartDate time.Time
	FoodType  string

	// AbsorptionTime is the user-specified absorption duration. When nil, a
	// per-store default is substituted at read time.
	AbsorptionTime *time.Duration

	// CreatedByCurrentApp records provenance: true when entered here rather
	// than ingested from the external record source.
	CreatedByCurrentApp bool

	SyncIdentifier string
	ExternalID     string
}

// AbsorptionTimeOrDefault returns the entered absorption time, or fallback.
func (e CarbEntry) AbsorptionTimeOrDefault(fallback time.Duration) time.Duration {
	if e.AbsorptionTime != nil {
		return *e.AbsorptionTime
	}
	return fallback
}

// DateInterval is a closed interval of wall-clock time.
type DateInterval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the interval length.
func (i DateInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// AbsorbedCarbValue describes the absorption state of a single carb entry.
type AbsorbedCarbValue struct {
	// Observed is grams absorbed per the counteraction signal.
	Observed float64
	// Clamped is Observed bounded below by the model minimum and above by
	// the entry total.
	Clamped float64
	// Total is the entered grams.
	Total float64
	// Remaining is Total minus Clamped.
	Remaining float64

	// ObservedInterval spans from entry start through the last observation
	// (or the completion date once 100% has been observed).
	ObservedInterval DateInterval

	EstimatedTimeRemaining time.Duration
	TimeToAbsorbObserved   time.Duration
}

// IsActive reports whether absorption is still underway.
func (v AbsorbedCarbValue) IsActive() bool {
	return v.EstimatedTimeRemaining > 0
}

// AbsorptionTimeline is the per-interval observed absorption attribution for
// a carb entry. It is a two-state result: either enough signal was observed
// to trust the attribution, or callers must fall back to modeled absorption.
type AbsorptionTimeline struct {
	values   []CarbValue
	observed bool
}

// ObservedAbsorption wraps a timeline backed by sufficient observed signal.
func ObservedAbsorption(values []CarbValue) AbsorptionTimeline {
	return AbsorptionTimeline{values: values, observed: true}
}

// ModeledOnlyAbsorption signals that observation fell below the modeled
// minimum and absorption must be projected from the model alone.
func ModeledOnlyAbsorption() AbsorptionTimeline {
	return AbsorptionTimeline{}
}

// Observed returns the observed timeline and whether it is usable.
func (t AbsorptionTimeline) Observed() ([]CarbValue, bool) {
	return t.values, t.observed
}

// CarbStatus couples a carb entry with its derived absorption state.
// Absorption is nil when the configuration required to compute it (carb
// ratio, insulin sensitivity) was missing.
type CarbStatus struct {
	Entry      CarbEntry
	Absorption *AbsorbedCarbValue
	Timeline   AbsorptionTimeline
}

// InsulinValue is an insulin quantity at a point in time.
type InsulinValue struct {
	Date  time.Time
	Value float64
}

// CarbValue is a carbohydrate quantity over a time bucket. Timeline samples
// use equal start and end dates.
type CarbValue struct {
	StartDate time.Time
	EndDate   time.Time
	Value     float64
}

// GlucoseEffect is a cumulative glucose change (mg/dL) at a point in time.
type GlucoseEffect struct {
	Date  time.Time
	Value float64
}

// GlucoseEffectVelocity is a glucose rate of change (mg/dL per minute)
// observed over an interval.
type GlucoseEffectVelocity struct {
	StartDate time.Time
	EndDate   time.Time
	Value     float64
}

// Effect integrates the velocity over its interval, in mg/dL.
func (v GlucoseEffectVelocity) Effect() float64 {
	return v.Value * v.EndDate.Sub(v.StartDate).Minutes()
}
