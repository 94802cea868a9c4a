package carbmath

import (
	"math"
	"testing"
	"time"
)

func TestParabolicAbsorptionShape(t *testing.T) {
	curve := ParabolicAbsorption{}

	tests := []struct {
		percentTime float64
		want        float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.25, 0.125},
		{0.5, 0.5},
		{0.75, 0.875},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := curve.PercentAbsorptionAtPercentTime(tt.percentTime)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PercentAbsorptionAtPercentTime(%v) = %v, want %v", tt.percentTime, got, tt.want)
		}
	}
}

func TestCurveRoundTrip(t *testing.T) {
	curves := map[string]AbsorptionCurve{
		"parabolic":       ParabolicAbsorption{},
		"linear":          LinearAbsorption{},
		"piecewiseLinear": NewPiecewiseLinearAbsorption(),
	}

	for name, curve := range curves {
		t.Run(name, func(t *testing.T) {
			for percentTime := 0.0; percentTime <= 1.0; percentTime += 0.01 {
				absorption := curve.PercentAbsorptionAtPercentTime(percentTime)
				back := curve.PercentTimeAtPercentAbsorption(absorption)
				if math.Abs(back-percentTime) > 1e-6 {
					t.Fatalf("round trip at t=%v: absorption=%v, inverted back to %v", percentTime, absorption, back)
				}
			}
		})
	}
}

func TestCurveMonotonicAndSaturating(t *testing.T) {
	curves := map[string]AbsorptionCurve{
		"parabolic":       ParabolicAbsorption{},
		"linear":          LinearAbsorption{},
		"piecewiseLinear": NewPiecewiseLinearAbsorption(),
	}

	for name, curve := range curves {
		t.Run(name, func(t *testing.T) {
			prev := 0.0
			for percentTime := -0.2; percentTime <= 1.2; percentTime += 0.005 {
				got := curve.PercentAbsorptionAtPercentTime(percentTime)
				if got < prev-1e-12 {
					t.Fatalf("absorption decreased at t=%v: %v < %v", percentTime, got, prev)
				}
				if got < 0 || got > 1 {
					t.Fatalf("absorption out of [0,1] at t=%v: %v", percentTime, got)
				}
				prev = got
			}
			if curve.PercentAbsorptionAtPercentTime(0) != 0 {
				t.Errorf("absorption at 0 should be 0")
			}
			if curve.PercentAbsorptionAtPercentTime(1) != 1 {
				t.Errorf("absorption at 1 should be 1")
			}
		})
	}
}

func TestRateIntegratesToOne(t *testing.T) {
	curves := map[string]AbsorptionCurve{
		"parabolic":       ParabolicAbsorption{},
		"linear":          LinearAbsorption{},
		"piecewiseLinear": NewPiecewiseLinearAbsorption(),
	}

	const steps = 100000
	for name, curve := range curves {
		t.Run(name, func(t *testing.T) {
			var integral float64
			dt := 1.0 / steps
			for i := 0; i < steps; i++ {
				integral += curve.PercentRateAtPercentTime((float64(i)+0.5)*dt) * dt
			}
			if math.Abs(integral-1) > 1e-4 {
				t.Errorf("rate integral = %v, want 1", integral)
			}
		})
	}
}

func TestRateMatchesAbsorptionDerivative(t *testing.T) {
	curve := NewPiecewiseLinearAbsorption()
	const h = 1e-6
	for _, percentTime := range []float64{0.05, 0.1, 0.3, 0.45, 0.6, 0.8, 0.95} {
		numeric := (curve.PercentAbsorptionAtPercentTime(percentTime+h) -
			curve.PercentAbsorptionAtPercentTime(percentTime-h)) / (2 * h)
		analytic := curve.PercentRateAtPercentTime(percentTime)
		if math.Abs(numeric-analytic) > 1e-4 {
			t.Errorf("rate at t=%v: analytic %v, numeric %v", percentTime, analytic, numeric)
		}
	}
}

func TestAbsorbedCarbs(t *testing.T) {
	curve := ParabolicAbsorption{}

	if got := AbsorbedCarbs(curve, 30, 90*time.Minute, 3*time.Hour); math.Abs(got-15) > 1e-9 {
		t.Errorf("half-way absorption = %v, want 15", got)
	}
	if got := AbsorbedCarbs(curve, 30, 4*time.Hour, 3*time.Hour); got != 30 {
		t.Errorf("past end absorption = %v, want 30", got)
	}
	if got := AbsorbedCarbs(curve, 30, -10*time.Minute, 3*time.Hour); got != 0 {
		t.Errorf("before start absorption = %v, want 0", got)
	}
	if got := UnabsorbedCarbs(curve, 30, 90*time.Minute, 3*time.Hour); math.Abs(got-15) > 1e-9 {
		t.Errorf("half-way unabsorbed = %v, want 15", got)
	}
}

func TestAbsorbedCarbsZeroAbsorptionTime(t *testing.T) {
	curve := LinearAbsorption{}
	if got := AbsorbedCarbs(curve, 30, time.Minute, 0); got != 30 {
		t.Errorf("zero absorption time after start = %v, want 30", got)
	}
	if got := AbsorbedCarbs(curve, 30, 0, 0); got != 0 {
		t.Errorf("zero absorption time at start = %v, want 0", got)
	}
}

func TestAbsorptionTimeExtrapolation(t *testing.T) {
	curve := LinearAbsorption{}

	// 25% absorbed after 30 minutes implies 2 hours total.
	got := AbsorptionTime(curve, 0.25, 30*time.Minute)
	if got != 2*time.Hour {
		t.Errorf("AbsorptionTime = %v, want 2h", got)
	}

	// Zero observed absorption must not divide by zero.
	got = AbsorptionTime(curve, 0, 30*time.Minute)
	if got <= 0 {
		t.Errorf("AbsorptionTime with zero absorption = %v, want positive", got)
	}
}

func TestTimeToAbsorb(t *testing.T) {
	curve := ParabolicAbsorption{}

	if got := TimeToAbsorb(curve, 0.5, 3*time.Hour); got != 90*time.Minute {
		t.Errorf("TimeToAbsorb(0.5) = %v, want 90m", got)
	}
	if got := TimeToAbsorb(curve, 1, 3*time.Hour); got != 3*time.Hour {
		t.Errorf("TimeToAbsorb(1) = %v, want 3h", got)
	}
	if got := TimeToAbsorb(curve, 0, 3*time.Hour); got != 0 {
		t.Errorf("TimeToAbsorb(0) = %v, want 0", got)
	}
}
