// Package insulinmath provides insulin activity models mapping elapsed time
// since delivery to the fraction of insulin effect remaining.
package insulinmath

import (
	"math"
	"time"
)

// ActivityModel describes an insulin action curve. PercentEffectRemaining is
// monotonically non-increasing from 1 before the onset delay to 0 at the end
// of the action duration.
type ActivityModel interface {
	PercentEffectRemaining(at time.Duration) float64
	EffectDuration() time.Duration
	Delay() time.Duration
}

// ExponentialModel is the exponential insulin activity curve, parameterized
// by total action duration, peak activity time, and pre-effect delay.
type ExponentialModel struct {
	ActionDuration time.Duration
	PeakActivity   time.Duration
	DelayInterval  time.Duration

	tau float64
	a   float64
	s   float64
}

// NewExponentialModel precomputes the curve constants.
func NewExponentialModel(actionDuration, peakActivity, delay time.Duration) *ExponentialModel {
	duration := actionDuration.Seconds()
	peak := peakActivity.Seconds()

	tau := peak * (1 - peak/duration) / (1 - 2*peak/duration)
	a := 2 * tau / duration
	s := 1 / (1 - a + (1+a)*math.Exp(-duration/tau))

	return &ExponentialModel{
		ActionDuration: actionDuration,
		PeakActivity:   peakActivity,
		DelayInterval:  delay,
		tau:            tau,
		a:              a,
		s:              s,
	}
}

// RapidActingAdult models rapid-acting insulin in adults: 6 hour duration
// with peak activity at 75 minutes.
func RapidActingAdult() *ExponentialModel {
	return NewExponentialModel(6*time.Hour, 75*time.Minute, 10*time.Minute)
}

// RapidActingChild models rapid-acting insulin in children: 6 hour duration
// with peak activity at 65 minutes.
func RapidActingChild() *ExponentialModel {
	return NewExponentialModel(6*time.Hour, 65*time.Minute, 10*time.Minute)
}

// Fiasp models faster-acting insulin aspart: 6 hour duration with peak
// activity at 55 minutes.
func Fiasp() *ExponentialModel {
	return NewExponentialModel(6*time.Hour, 55*time.Minute, 10*time.Minute)
}

func (m *ExponentialModel) PercentEffectRemaining(at time.Duration) float64 {
	t := (at - m.DelayInterval).Seconds()
	duration := m.ActionDuration.Seconds()
	switch {
	case t <= 0:
		return 1
	case t >= duration:
		return 0
	default:
		return 1 - m.s*(1-m.a)*
			((t*t/(m.tau*duration*(1-m.a))-t/m.tau-1)*math.Exp(-t/m.tau)+1)
	}
}

func (m *ExponentialModel) EffectDuration() time.Duration {
	return m.ActionDuration + m.DelayInterval
}

func (m *ExponentialModel) Delay() time.Duration {
	return m.DelayInterval
}

// WalshModel is the legacy polynomial insulin activity curve. Curves were
// empirically fit at 3, 4, 5 and 6 hour action durations; other durations are
// scaled to the nearest modeled one.
type WalshModel struct {
	ActionDuration time.Duration
	DelayInterval  time.Duration
}

// NewWalshModel builds a Walsh curve for the given action duration.
func NewWalshModel(actionDuration, delay time.Duration) *WalshModel {
	return &WalshModel{ActionDuration: actionDuration, DelayInterval: delay}
}

func (m *WalshModel) PercentEffectRemaining(at time.Duration) float64 {
	timeAfterDelay := at - m.DelayInterval
	switch {
	case timeAfterDelay <= 0:
		return 1
	case timeAfterDelay >= m.ActionDuration:
		return 0
	}

	var nearestModeledDuration time.Duration
	switch {
	case m.ActionDuration < 3*time.Hour:
		nearestModeledDuration = 3 * time.Hour
	case m.ActionDuration > 6*time.Hour:
		nearestModeledDuration = 6 * time.Hour
	default:
		nearestModeledDuration = time.Duration(math.Round(m.ActionDuration.Hours())) * time.Hour
	}

	minutes := timeAfterDelay.Minutes() * nearestModeledDuration.Seconds() / m.ActionDuration.Seconds()

	// Empirical fits; coefficients are not derivable and must not be altered.
	switch nearestModeledDuration {
	case 3 * time.Hour:
		return -3.2030e-9*math.Pow(minutes, 4) + 1.354e-6*math.Pow(minutes, 3) -
			1.759e-4*math.Pow(minutes, 2) + 9.255e-4*minutes + 0.99951
	case 4 * time.Hour:
		return -3.310e-10*math.Pow(minutes, 4) + 2.530e-7*math.Pow(minutes, 3) -
			5.510e-5*math.Pow(minutes, 2) - 9.086e-4*minutes + 0.99950
	case 5 * time.Hour:
		return -2.950e-10*math.Pow(minutes, 4) + 2.320e-7*math.Pow(minutes, 3) -
			5.550e-5*math.Pow(minutes, 2) + 4.490e-4*minutes + 0.99300
	default:
		return -1.493e-10*math.Pow(minutes, 4) + 1.413e-7*math.Pow(minutes, 3) -
			4.095e-5*math.Pow(minutes, 2) + 6.365e-4*minutes + 0.99700
	}
}

func (m *WalshModel) EffectDuration() time.Duration {
	return m.ActionDuration + m.DelayInterval
}

func (m *WalshModel) Delay() time.Duration {
	return m.DelayInterval
}
