// Package dosing converts raw pump delivery events into a canonical,
// non-overlapping insulin delivery timeline and derives insulin-on-board and
// glucose-effect timelines from it.
package dosing

import (
	"sort"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// SortPumpEvents orders raw pump events chronologically, breaking timestamp
// ties by event kind so that boluses sort ahead of basal records.
func SortPumpEvents(events []domain.PumpEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].Kind.SortOrder() < events[j].Kind.SortOrder()
	})
}

// Reconcile transforms a chronological, possibly-overlapping sequence of dose
// entries into a sequence where at most one basal-kind interval is active at
// any instant. Dangling suspends are repaired against the next temp basal or
// emitted open-ended and mutable when never resumed.
//
// The pass is O(n) and deterministic: reconciling an already-reconciled
// sequence returns it unchanged.
func Reconcile(doses []domain.DoseEntry) []domain.DoseEntry {
	reconciled := make([]domain.DoseEntry, 0, len(doses))
	var lastSuspend *domain.DoseEntry
	var lastBasal *domain.DoseEntry

	for _, dose := range doses {
		switch dose.Kind {
		case domain.DoseBolus:
			reconciled = append(reconciled, dose)

		case domain.DoseBasal, domain.DoseTempBasal:
			if lastSuspend == nil && lastBasal != nil {
				trimmed := *lastBasal
				trimmed.EndDate = minTime(lastBasal.EndDate, dose.StartDate)
				// Ignore zero-duration doses
				if trimmed.EndDate.After(trimmed.StartDate) {
					reconciled = append(reconciled, trimmed)
				}
			} else if lastSuspend != nil && dose.Kind == domain.DoseTempBasal {
				// The resume event was never recorded; close the suspend at
				// the start of the next temp basal.
				suspend := *lastSuspend
				suspend.EndDate = dose.StartDate
				reconciled = append(reconciled, suspend)
				lastSuspend = nil
			}
			next := dose
			lastBasal = &next

		case domain.DoseResume:
			if lastSuspend != nil {
				suspend := *lastSuspend
				suspend.EndDate = dose.StartDate
				reconciled = append(reconciled, suspend)
				lastSuspend = nil

				if lastBasal != nil {
					if lastBasal.EndDate.After(dose.EndDate) {
						// Continue a basal interrupted by the suspend. The
						// original record was already emitted, so the
						// reopened portion carries the resume's identifier.
						reopened := *lastBasal
						reopened.StartDate = dose.EndDate
						reopened.SyncIdentifier = dose.SyncIdentifier
						lastBasal = &reopened
					} else {
						lastBasal = nil
					}
				}
			}

		case domain.DoseSuspend:
			if lastBasal != nil {
				trimmed := *lastBasal
				trimmed.EndDate = minTime(lastBasal.EndDate, dose.StartDate)
				reconciled = append(reconciled, trimmed)

				if !lastBasal.EndDate.After(dose.StartDate) {
					lastBasal = nil
				}
			}
			next := dose
			lastSuspend = &next
		}
	}

	if lastSuspend != nil {
		// Suspended with no resume observed yet: the suspend is still in
		// progress and will be replaced when its end becomes known.
		open := *lastSuspend
		open.IsMutable = true
		reconciled = append(reconciled, open)
	} else if lastBasal != nil && lastBasal.EndDate.After(lastBasal.StartDate) {
		reconciled = append(reconciled, *lastBasal)
	}

	return reconciled
}

// ResolveDeliveredUnits fills in the delivered-units value of finalized doses
// that lack one: temp basals deliver in pump increments, scheduled basals
// deliver the programmed amount. Mutable doses are left unresolved since
// delivery is still in progress.
func ResolveDeliveredUnits(doses []domain.DoseEntry, increment float64) []domain.DoseEntry {
	resolved := make([]domain.DoseEntry, len(doses))
	for i, dose := range doses {
		if dose.DeliveredUnits == nil && !dose.IsMutable {
			switch dose.Kind {
			case domain.DoseTempBasal:
				units := dose.UnitsInDeliverableIncrements(increment)
				dose.DeliveredUnits = &units
			case domain.DoseBasal:
				units := dose.ProgrammedUnits()
				dose.DeliveredUnits = &units
			}
		}
		resolved[i] = dose
	}
	return resolved
}

// Trim clips doses to the query interval [start, end], dropping doses
// entirely outside it. A zero end leaves the upper bound open.
func Trim(doses []domain.DoseEntry, start, end time.Time) []domain.DoseEntry {
	var trimmed []domain.DoseEntry
	for _, dose := range doses {
		if !dose.EndDate.After(start) && (dose.Duration() > 0 || dose.EndDate.Before(start)) {
			continue
		}
		if !end.IsZero() && !dose.StartDate.Before(end) {
			continue
		}
		trimmed = append(trimmed, dose.Trimmed(start, end))
	}
	return trimmed
}

// TotalDelivery sums the delivered (or programmed) units across doses.
func TotalDelivery(doses []domain.DoseEntry) float64 {
	var total float64
	for _, dose := range doses {
		if dose.DeliveredUnits != nil {
			total += *dose.DeliveredUnits
		} else {
			total += dose.ProgrammedUnits()
		}
	}
	return total
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
