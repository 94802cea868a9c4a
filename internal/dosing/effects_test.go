package dosing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimiradmaev/dosekit/internal/domain"
	"github.com/vladimiradmaev/dosekit/internal/insulinmath"
)

func bolus(at time.Time, units float64) domain.DoseEntry {
	return domain.DoseEntry{
		Kind:      domain.DoseBolus,
		StartDate: at,
		EndDate:   at,
		Value:     units,
		Unit:      domain.UnitUnits,
	}
}

func TestInsulinOnBoardSeriesBolus(t *testing.T) {
	// Zero delay pins the curve endpoints to the action duration exactly.
	model := insulinmath.NewExponentialModel(6*time.Hour, 75*time.Minute, 0)
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

	values := InsulinOnBoardSeries([]domain.DoseEntry{bolus(start, 1)}, model, time.Time{}, time.Time{}, DefaultDelta)

	require.NotEmpty(t, values)
	assert.Equal(t, start, values[0].Date)
	assert.InDelta(t, 1.0, values[0].Value, 1e-9)

	// The series is a closed interval: the final sample lands exactly at the
	// end of insulin action and reads zero.
	last := values[len(values)-1]
	assert.Equal(t, start.Add(6*time.Hour), last.Date)
	assert.InDelta(t, 0.0, last.Value, 1e-9)

	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(t, values[i].Value, values[i-1].Value+1e-12,
			"insulin on board must not increase after a single bolus")
	}
}

func TestInsulinOnBoardSeriesEmptyDoses(t *testing.T) {
	model := insulinmath.RapidActingAdult()
	assert.Nil(t, InsulinOnBoardSeries(nil, model, time.Time{}, time.Time{}, DefaultDelta))
}

func TestInsulinOnBoardBeforeDoseStart(t *testing.T) {
	model := insulinmath.RapidActingAdult()
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

	got := InsulinOnBoard(bolus(start, 1), model, start.Add(-time.Minute), DefaultDelta)
	assert.Zero(t, got)
}

func TestInsulinOnBoardTempBasalDecaysToZero(t *testing.T) {
	model := insulinmath.NewExponentialModel(6*time.Hour, 75*time.Minute, 0)
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	temp := tempBasal(start, start.Add(time.Hour), 1.0, "temp")

	atEnd := InsulinOnBoard(temp, model, start.Add(time.Hour), DefaultDelta)
	assert.Greater(t, atEnd, 0.5, "most of an hour-long delivery should remain at its end")
	assert.LessOrEqual(t, atEnd, 1.0)

	afterAction := InsulinOnBoard(temp, model, start.Add(time.Hour).Add(6*time.Hour), DefaultDelta)
	assert.InDelta(t, 0.0, afterAction, 1e-9)
}

func TestInsulinOnBoardSeriesExplicitRange(t *testing.T) {
	model := insulinmath.NewExponentialModel(6*time.Hour, 75*time.Minute, 0)
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

	values := InsulinOnBoardSeries([]domain.DoseEntry{bolus(start, 1)}, model,
		start.Add(time.Hour), start.Add(2*time.Hour), DefaultDelta)

	require.Len(t, values, 13)
	assert.Equal(t, start.Add(time.Hour), values[0].Date)
	assert.Equal(t, start.Add(2*time.Hour), values[12].Date)
}

func TestGlucoseEffectSeriesBolus(t *testing.T) {
	model := insulinmath.NewExponentialModel(6*time.Hour, 75*time.Minute, 0)
	start := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	sensitivity, err := domain.NewInsulinSensitivitySchedule([]domain.ScheduleItem{
		{StartTime: "00:00", Value: 50},
	})
	require.NoError(t, err)

	effects := GlucoseEffectSeries([]domain.DoseEntry{bolus(start, 1)}, model, sensitivity,
		time.Time{}, time.Time{}, DefaultDelta)

	require.NotEmpty(t, effects)
	assert.InDelta(t, 0.0, effects[0].Value, 1e-9)

	// 1 U at 50 mg/dL per U lowers glucose 50 mg/dL once fully absorbed.
	last := effects[len(effects)-1]
	assert.InDelta(t, -50.0, last.Value, 1e-9)

	for i := 1; i < len(effects); i++ {
		assert.LessOrEqual(t, effects[i].Value, effects[i-1].Value+1e-12,
			"cumulative insulin effect must be non-increasing")
	}
}

func TestGlucoseEffectSeriesTimeVarying(t *testing.T) {
	model := insulinmath.NewExponentialModel(6*time.Hour, 75*time.Minute, 0)
	// Dose spans the 12:00 sensitivity boundary.
	start := time.Date(2024, 3, 12, 11, 0, 0, 0, time.UTC)
	sensitivity, err := domain.NewInsulinSensitivitySchedule([]domain.ScheduleItem{
		{StartTime: "00:00", Value: 50},
		{StartTime: "12:00", Value: 100},
	})
	require.NoError(t, err)

	temp := tempBasal(start, start.Add(2*time.Hour), 1.0, "temp")

	effects := GlucoseEffectSeriesTimeVarying([]domain.DoseEntry{temp}, model, sensitivity,
		time.Time{}, time.Time{}, DefaultDelta)
	require.NotEmpty(t, effects)

	// One hour at ISF 50 plus one hour at ISF 100.
	last := effects[len(effects)-1]
	assert.InDelta(t, -(1*50 + 1*100), last.Value, 1e-6)

	flat := GlucoseEffectSeries([]domain.DoseEntry{temp}, model, sensitivity,
		time.Time{}, time.Time{}, DefaultDelta)
	flatLast := flat[len(flat)-1]
	assert.InDelta(t, -100.0, flatLast.Value, 1e-6,
		"non-varying integration uses the sensitivity at dose start")
}

func TestSimulationDateRangeAlignment(t *testing.T) {
	model := insulinmath.NewExponentialModel(6*time.Hour, 75*time.Minute, 0)
	// An unaligned start floors to the delta grid.
	start := time.Date(2024, 3, 12, 10, 2, 0, 0, time.UTC)

	values := InsulinOnBoardSeries([]domain.DoseEntry{bolus(start, 1)}, model, time.Time{}, time.Time{}, DefaultDelta)

	require.NotEmpty(t, values)
	assert.Equal(t, start.Truncate(DefaultDelta), values[0].Date)
	last := values[len(values)-1]
	assert.Zero(t, last.Date.Sub(start.Truncate(DefaultDelta))%DefaultDelta)
	assert.False(t, last.Date.Before(start.Add(6*time.Hour)))
}
