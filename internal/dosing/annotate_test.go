package dosing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

func mustBasalSchedule(t *testing.T, items []domain.ScheduleItem) *domain.BasalRateSchedule {
	t.Helper()
	schedule, err := domain.NewBasalRateSchedule(items)
	require.NoError(t, err)
	return schedule
}

func TestAnnotatedSplitsAtScheduleBoundary(t *testing.T) {
	schedule := mustBasalSchedule(t, []domain.ScheduleItem{
		{StartTime: "00:00", Value: 1.0},
		{StartTime: "12:00", Value: 0.5},
	})

	start := time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)
	dose := tempBasal(start, start.Add(2*time.Hour), 0.8, "temp")

	fragments := Annotated(dose, schedule)

	require.Len(t, fragments, 2)

	require.NotNil(t, fragments[0].ScheduledBasalRate)
	assert.Equal(t, 1.0, *fragments[0].ScheduledBasalRate)
	assert.Equal(t, start, fragments[0].StartDate)
	assert.Equal(t, start.Add(time.Hour), fragments[0].EndDate)
	assert.Equal(t, "temp 1/2", fragments[0].SyncIdentifier)

	require.NotNil(t, fragments[1].ScheduledBasalRate)
	assert.Equal(t, 0.5, *fragments[1].ScheduledBasalRate)
	assert.Equal(t, start.Add(time.Hour), fragments[1].StartDate)
	assert.Equal(t, start.Add(2*time.Hour), fragments[1].EndDate)
	assert.Equal(t, "temp 2/2", fragments[1].SyncIdentifier)

	// Net delivery relative to schedule per fragment.
	assert.InDelta(t, -0.2, fragments[0].NetBasalUnits(), 1e-9)
	assert.InDelta(t, 0.3, fragments[1].NetBasalUnits(), 1e-9)
}

func TestAnnotatedSingleSegmentKeepsIdentifier(t *testing.T) {
	schedule := mustBasalSchedule(t, []domain.ScheduleItem{
		{StartTime: "00:00", Value: 1.0},
	})

	start := time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)
	dose := tempBasal(start, start.Add(time.Hour), 0.8, "temp")

	fragments := Annotated(dose, schedule)

	require.Len(t, fragments, 1)
	assert.Equal(t, "temp", fragments[0].SyncIdentifier)
	require.NotNil(t, fragments[0].ScheduledBasalRate)
	assert.Equal(t, 1.0, *fragments[0].ScheduledBasalRate)
}

func TestAnnotatedZeroDurationDose(t *testing.T) {
	schedule := mustBasalSchedule(t, []domain.ScheduleItem{
		{StartTime: "00:00", Value: 1.0},
		{StartTime: "12:00", Value: 0.5},
	})

	at := time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)
	dose := suspend(at, "pause")

	fragments := Annotated(dose, schedule)

	require.Len(t, fragments, 1)
	require.NotNil(t, fragments[0].ScheduledBasalRate)
	assert.Equal(t, 0.5, *fragments[0].ScheduledBasalRate)
}

func TestAnnotatedSkipsBolusesAndAnnotated(t *testing.T) {
	schedule := mustBasalSchedule(t, []domain.ScheduleItem{
		{StartTime: "00:00", Value: 1.0},
	})

	start := time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)
	bolus := domain.DoseEntry{
		Kind:      domain.DoseBolus,
		StartDate: start,
		EndDate:   start,
		Value:     3.0,
		Unit:      domain.UnitUnits,
	}
	fragments := Annotated(bolus, schedule)
	require.Len(t, fragments, 1)
	assert.Nil(t, fragments[0].ScheduledBasalRate)

	rate := 0.7
	already := tempBasal(start, start.Add(time.Hour), 0.8, "temp")
	already.ScheduledBasalRate = &rate
	fragments = Annotated(already, schedule)
	require.Len(t, fragments, 1)
	assert.Equal(t, &rate, fragments[0].ScheduledBasalRate)
}

func TestAnnotateAllConservesNetDelivery(t *testing.T) {
	schedule := mustBasalSchedule(t, []domain.ScheduleItem{
		{StartTime: "00:00", Value: 1.0},
		{StartTime: "06:00", Value: 1.2},
		{StartTime: "12:00", Value: 0.5},
		{StartTime: "18:00", Value: 0.9},
	})

	start := time.Date(2024, 3, 12, 5, 0, 0, 0, time.UTC)
	doses := []domain.DoseEntry{
		tempBasal(start, start.Add(14*time.Hour), 0.8, "long"),
	}

	fragments := AnnotateAll(doses, schedule)
	require.Len(t, fragments, 4)

	// Splitting must not change how much insulin was delivered.
	var total float64
	for _, fragment := range fragments {
		total += fragment.ProgrammedUnits()
	}
	assert.InDelta(t, doses[0].ProgrammedUnits(), total, 1e-9)

	// 0.8 U/hr against 1.0 for 1h, 1.2 for 6h, 0.5 for 6h, 0.9 for 1h.
	var net float64
	for _, fragment := range fragments {
		net += fragment.NetBasalUnits()
	}
	want := (0.8-1.0)*1 + (0.8-1.2)*6 + (0.8-0.5)*6 + (0.8-0.9)*1
	assert.InDelta(t, want, net, 1e-9)
}

func TestAnnotatedWithHistory(t *testing.T) {
	start := time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)
	history := domain.BasalRateHistory{
		{StartDate: start.Add(-time.Hour), EndDate: start.Add(30 * time.Minute), Value: 1.0},
		{StartDate: start.Add(30 * time.Minute), EndDate: start.Add(4 * time.Hour), Value: 0.6},
	}

	dose := tempBasal(start, start.Add(time.Hour), 0.8, "temp")
	fragments := AnnotatedWithHistory(dose, history)

	require.Len(t, fragments, 2)
	assert.Equal(t, 1.0, *fragments[0].ScheduledBasalRate)
	assert.Equal(t, start.Add(30*time.Minute), fragments[0].EndDate)
	assert.Equal(t, 0.6, *fragments[1].ScheduledBasalRate)
}

func TestNetBasalRateEpsilonZero(t *testing.T) {
	start := time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)
	rate := 0.1 + 0.2 // accumulates float error against 0.3
	dose := tempBasal(start, start.Add(time.Hour), 0.3, "temp")
	dose.ScheduledBasalRate = &rate

	assert.Zero(t, dose.NetBasalUnits())
	assert.Zero(t, dose.NetBasalUnitsPerHour())
}
