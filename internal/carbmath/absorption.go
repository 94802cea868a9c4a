// Package carbmath provides carbohydrate absorption curve models and the
// closed-form helpers shared by carbs-on-board and absorption-time math.
package carbmath

import (
	"math"
	"time"
)

// ulpOfOne guards divide-by-zero when inverting near-zero absorption.
const ulpOfOne = 2.220446049250313e-16

// AbsorptionCurve maps normalized absorption time to fraction absorbed and
// back. All inputs and outputs are fractions in [0, 1]; implementations
// saturate outside that range.
type AbsorptionCurve interface {
	// PercentAbsorptionAtPercentTime returns the fraction of carbohydrate
	// absorbed after the given fraction of total absorption time.
	PercentAbsorptionAtPercentTime(percentTime float64) float64

	// PercentTimeAtPercentAbsorption inverts the curve: the fraction of
	// absorption time needed to absorb the given fraction of carbohydrate.
	PercentTimeAtPercentAbsorption(percentAbsorption float64) float64

	// PercentRateAtPercentTime returns the normalized absorption rate at the
	// given fraction of absorption time. The definite integral of the rate
	// over [0, 1] is 1.
	PercentRateAtPercentTime(percentTime float64) float64
}

// ParabolicAbsorption is the integral of a triangular rate curve: absorption
// accelerates linearly to a midpoint peak, then decelerates symmetrically.
type ParabolicAbsorption struct{}

func (ParabolicAbsorption) PercentAbsorptionAtPercentTime(percentTime float64) float64 {
	switch {
	case percentTime <= 0:
		return 0
	case percentTime <= 0.5:
		return 2 * percentTime * percentTime
	case percentTime < 1:
		return -1 + 2*percentTime*(2-percentTime)
	default:
		return 1
	}
}

func (ParabolicAbsorption) PercentTimeAtPercentAbsorption(percentAbsorption float64) float64 {
	switch {
	case percentAbsorption <= 0:
		return 0
	case percentAbsorption <= 0.5:
		return math.Sqrt(percentAbsorption / 2)
	case percentAbsorption < 1:
		return 1 - math.Sqrt((1-percentAbsorption)/2)
	default:
		return 1
	}
}

func (ParabolicAbsorption) PercentRateAtPercentTime(percentTime float64) float64 {
	switch {
	case percentTime <= 0:
		return 0
	case percentTime <= 0.5:
		return 4 * percentTime
	case percentTime < 1:
		return 4 * (1 - percentTime)
	default:
		return 0
	}
}

// LinearAbsorption absorbs at a constant rate over the absorption time.
type LinearAbsorption struct{}

func (LinearAbsorption) PercentAbsorptionAtPercentTime(percentTime float64) float64 {
	switch {
	case percentTime <= 0:
		return 0
	case percentTime < 1:
		return percentTime
	default:
		return 1
	}
}

func (LinearAbsorption) PercentTimeAtPercentAbsorption(percentAbsorption float64) float64 {
	switch {
	case percentAbsorption <= 0:
		return 0
	case percentAbsorption < 1:
		return percentAbsorption
	default:
		return 1
	}
}

func (LinearAbsorption) PercentRateAtPercentTime(percentTime float64) float64 {
	if percentTime > 0 && percentTime < 1 {
		return 1
	}
	return 0
}

// PiecewiseLinearAbsorption ramps the absorption rate linearly up to a
// plateau over the first PercentEndOfRise of the duration, holds the plateau
// until PercentStartOfFall, then ramps linearly back to zero at 100%.
type PiecewiseLinearAbsorption struct {
	PercentEndOfRise   float64
	PercentStartOfFall float64
}

// NewPiecewiseLinearAbsorption returns the standard rise/plateau/fall shape:
// rise over the first 15% of duration, fall starting at 50%.
func NewPiecewiseLinearAbsorption() PiecewiseLinearAbsorption {
	return PiecewiseLinearAbsorption{
		PercentEndOfRise:   0.15,
		PercentStartOfFall: 0.5,
	}
}

// scale normalizes the total area under the rate curve to 1.
func (p PiecewiseLinearAbsorption) scale() float64 {
	return 2 / (1 + p.PercentStartOfFall - p.PercentEndOfRise)
}

func (p PiecewiseLinearAbsorption) PercentAbsorptionAtPercentTime(percentTime float64) float64 {
	rise, fall, scale := p.PercentEndOfRise, p.PercentStartOfFall, p.scale()
	switch {
	case percentTime <= 0:
		return 0
	case percentTime < rise:
		return 0.5 * scale * percentTime * percentTime / rise
	case percentTime < fall:
		return scale * (percentTime - 0.5*rise)
	case percentTime < 1:
		return scale * (fall - 0.5*rise +
			(percentTime-fall)*(1-0.5*(percentTime-fall)/(1-fall)))
	default:
		return 1
	}
}

func (p PiecewiseLinearAbsorption) PercentTimeAtPercentAbsorption(percentAbsorption float64) float64 {
	rise, fall, scale := p.PercentEndOfRise, p.PercentStartOfFall, p.scale()
	endOfRiseAbsorption := 0.5 * scale * rise
	startOfFallAbsorption := scale * (fall - 0.5*rise)
	switch {
	case percentAbsorption <= 0:
		return 0
	case percentAbsorption <= endOfRiseAbsorption:
		return math.Sqrt(2 * rise * percentAbsorption / scale)
	case percentAbsorption < startOfFallAbsorption:
		return 0.5*rise + percentAbsorption/scale
	case percentAbsorption < 1:
		return 1 - (1-fall)*math.Sqrt(1-(percentAbsorption/scale-(fall-0.5*rise))/(0.5*(1-fall)))
	default:
		return 1
	}
}

func (p PiecewiseLinearAbsorption) PercentRateAtPercentTime(percentTime float64) float64 {
	rise, fall, scale := p.PercentEndOfRise, p.PercentStartOfFall, p.scale()
	switch {
	case percentTime <= 0:
		return 0
	case percentTime < rise:
		return scale * percentTime / rise
	case percentTime <= fall:
		return scale
	case percentTime < 1:
		return scale * (1 - percentTime) / (1 - fall)
	default:
		return 0
	}
}

// AbsorbedCarbs returns the grams of total absorbed after atTime, for the
// given total absorption time.
func AbsorbedCarbs(curve AbsorptionCurve, total float64, atTime, absorptionTime time.Duration) float64 {
	if absorptionTime <= 0 {
		if atTime > 0 {
			return total
		}
		return 0
	}
	percentTime := atTime.Seconds() / absorptionTime.Seconds()
	return total * curve.PercentAbsorptionAtPercentTime(percentTime)
}

// UnabsorbedCarbs returns the grams of total not yet absorbed after atTime.
func UnabsorbedCarbs(curve AbsorptionCurve, total float64, atTime, absorptionTime time.Duration) float64 {
	return total - AbsorbedCarbs(curve, total, atTime, absorptionTime)
}

// AbsorptionTime extrapolates the total absorption time implied by reaching
// percentAbsorption at atTime.
func AbsorptionTime(curve AbsorptionCurve, percentAbsorption float64, atTime time.Duration) time.Duration {
	percentTime := math.Max(curve.PercentTimeAtPercentAbsorption(percentAbsorption), ulpOfOne)
	return time.Duration(atTime.Seconds() / percentTime * float64(time.Second))
}

// TimeToAbsorb returns how long absorbing percentAbsorption takes under the
// given total absorption time.
func TimeToAbsorb(curve AbsorptionCurve, percentAbsorption float64, absorptionTime time.Duration) time.Duration {
	percentTime := curve.PercentTimeAtPercentAbsorption(percentAbsorption)
	return time.Duration(percentTime * float64(absorptionTime))
}
