package dosing

import (
	"fmt"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

// Annotated splits a reconciled dose at every basal schedule boundary it
// crosses, tagging each fragment with the scheduled rate in effect, so that
// net delivery relative to schedule can be computed per fragment.
//
// Boluses, and doses that already carry a scheduled rate, pass through
// unchanged.
func Annotated(dose domain.DoseEntry, schedule *domain.BasalRateSchedule) []domain.DoseEntry {
	if !needsAnnotation(dose) {
		return []domain.DoseEntry{dose}
	}
	if dose.Duration() <= 0 {
		rate := schedule.ValueAt(dose.StartDate)
		dose.ScheduledBasalRate = &rate
		return []domain.DoseEntry{dose}
	}
	return annotated(dose, schedule.Between(dose.StartDate, dose.EndDate))
}

// AnnotatedWithHistory is Annotated against an explicit history of absolute
// basal-rate-change points instead of a repeating daily schedule.
func AnnotatedWithHistory(dose domain.DoseEntry, history domain.BasalRateHistory) []domain.DoseEntry {
	if !needsAnnotation(dose) {
		return []domain.DoseEntry{dose}
	}
	if dose.Duration() <= 0 {
		for _, segment := range history {
			if !dose.StartDate.Before(segment.StartDate) && dose.StartDate.Before(segment.EndDate) {
				rate := segment.Value
				dose.ScheduledBasalRate = &rate
				break
			}
		}
		return []domain.DoseEntry{dose}
	}
	return annotated(dose, history.Between(dose.StartDate, dose.EndDate))
}

// AnnotateAll annotates a reconciled sequence against a daily schedule.
func AnnotateAll(doses []domain.DoseEntry, schedule *domain.BasalRateSchedule) []domain.DoseEntry {
	annotated := make([]domain.DoseEntry, 0, len(doses))
	for _, dose := range doses {
		annotated = append(annotated, Annotated(dose, schedule)...)
	}
	return annotated
}

func needsAnnotation(dose domain.DoseEntry) bool {
	return dose.Kind.IsBasalKind() && dose.ScheduledBasalRate == nil
}

func annotated(dose domain.DoseEntry, segments []domain.AbsoluteScheduleValue) []domain.DoseEntry {
	if len(segments) == 0 {
		return []domain.DoseEntry{dose}
	}
	fragments := make([]domain.DoseEntry, 0, len(segments))
	for i, segment := range segments {
		fragment := dose.Trimmed(segment.StartDate, segment.EndDate)
		rate := segment.Value
		fragment.ScheduledBasalRate = &rate
		if len(segments) > 1 && dose.SyncIdentifier != "" {
			// Keep split identifiers unique across fragments.
			fragment.SyncIdentifier = fmt.Sprintf("%s %d/%d", dose.SyncIdentifier, i+1, len(segments))
		}
		fragments = append(fragments, fragment)
	}
	return fragments
}
