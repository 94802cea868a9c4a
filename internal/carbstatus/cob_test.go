package carbstatus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimiradmaev/dosekit/internal/domain"
)

func TestCarbsOnBoardSeriesModeled(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	start := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	entries := []domain.CarbEntry{testEntry(start, 30)}

	values := engine.CarbsOnBoardSeries(entries, time.Time{}, time.Time{})

	require.NotEmpty(t, values)
	assert.Equal(t, start, values[0].StartDate)
	assert.InDelta(t, 30.0, values[0].Value, 1e-9, "nothing absorbs during the effect delay")

	last := values[len(values)-1]
	assert.InDelta(t, 0.0, last.Value, 1e-9)

	for i := 1; i < len(values); i++ {
		assert.LessOrEqual(t, values[i].Value, values[i-1].Value+1e-12,
			"modeled carbs on board must not increase")
	}
}

func TestCarbsOnBoardSeriesEmptyEntries(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	assert.Nil(t, engine.CarbsOnBoardSeries(nil, time.Time{}, time.Time{}))
}

func TestGlucoseEffectSeriesModeled(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	start := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	entries := []domain.CarbEntry{testEntry(start, 30)}

	effects := engine.GlucoseEffectSeries(entries, mustCarbRatios(t, 18), mustSensitivities(t, 54), time.Time{}, time.Time{})

	require.NotEmpty(t, effects)
	assert.InDelta(t, 0.0, effects[0].Value, 1e-9)

	// 30 g at CSF 3 mg/dL per gram raises glucose 90 mg/dL once absorbed.
	last := effects[len(effects)-1]
	assert.InDelta(t, 90.0, last.Value, 1e-9)

	for i := 1; i < len(effects); i++ {
		assert.GreaterOrEqual(t, effects[i].Value, effects[i-1].Value-1e-12,
			"cumulative carb effect must be non-decreasing")
	}
}

func TestGlucoseEffectSeriesMissingSchedules(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	start := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	entries := []domain.CarbEntry{testEntry(start, 30)}

	assert.Nil(t, engine.GlucoseEffectSeries(entries, nil, mustSensitivities(t, 54), time.Time{}, time.Time{}))
	assert.Nil(t, engine.GlucoseEffectSeries(entries, mustCarbRatios(t, 18), nil, time.Time{}, time.Time{}))
}

func TestDynamicCarbsOnBoardSeriesFullyObserved(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	start := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	entries := []domain.CarbEntry{testEntry(start, 30)}
	velocities := constantVelocities(start, 48, 0.5)

	statuses := engine.Statuses(entries, velocities, mustCarbRatios(t, 18), mustSensitivities(t, 54))
	values := engine.DynamicCarbsOnBoardSeries(statuses, time.Time{}, time.Time{})

	require.NotEmpty(t, values)
	assert.InDelta(t, 30.0, values[0].Value, 1e-6)

	last := values[len(values)-1]
	assert.InDelta(t, 0.0, last.Value, 1e-6)

	for _, value := range values {
		assert.GreaterOrEqual(t, value.Value, -1e-9)
		assert.LessOrEqual(t, value.Value, 30.0+1e-9)
	}
}

func TestDynamicCarbsOnBoardFallsBackToModel(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	start := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	entries := []domain.CarbEntry{testEntry(start, 30)}

	// Quiet signal keeps the observed timeline untrustworthy, so dynamic and
	// modeled series agree.
	velocities := constantVelocities(start, 12, 0)
	statuses := engine.Statuses(entries, velocities, mustCarbRatios(t, 18), mustSensitivities(t, 54))

	dynamic := engine.DynamicCarbsOnBoardSeries(statuses, time.Time{}, time.Time{})
	modeled := engine.CarbsOnBoardSeries(entries, time.Time{}, time.Time{})

	require.Equal(t, len(modeled), len(dynamic))
	for i := range modeled {
		assert.InDelta(t, modeled[i].Value, dynamic[i].Value, 1e-9)
	}
}

func TestDynamicGlucoseEffectSeriesFullyObserved(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	start := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	entries := []domain.CarbEntry{testEntry(start, 30)}
	velocities := constantVelocities(start, 48, 0.5)

	statuses := engine.Statuses(entries, velocities, mustCarbRatios(t, 18), mustSensitivities(t, 54))
	effects := engine.DynamicGlucoseEffectSeries(statuses, mustCarbRatios(t, 18), mustSensitivities(t, 54), time.Time{}, time.Time{})

	require.NotEmpty(t, effects)
	last := effects[len(effects)-1]
	assert.InDelta(t, 90.0, last.Value, 1e-6)
}
