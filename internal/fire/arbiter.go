// Package fire decides when to fire from range evidence and aim error.
//
// A shot is requested only after RequiredSamples consecutive cycles in which
// the turret is idle, out of cooldown, on target and has a valid range.
// Any failing cycle discards the collected samples.
package fire

import (
	"math"
	"time"

	"turret-ctrl/internal/ballistics"
	"turret-ctrl/internal/state"
)

// PowerFunc converts the mean range of a qualifying run into a 0..100
// launch power.
type PowerFunc func(meanRange float64) int

// Config holds the arbiter tunables.
type Config struct {
	RequiredSamples int
	Cooldown        time.Duration
	AimTolerancePx  int32
	// CompletionTimeout ends a shot that was never reported complete.
	// Zero waits forever.
	CompletionTimeout time.Duration
	Power             PowerFunc
}

// Decision is the outcome of one observation.
type Decision struct {
	Requested bool
	Power     int
	MeanRange float64
}

// Arbiter is the debounce and cooldown state machine. It is not safe for
// concurrent use.
type Arbiter struct {
	cfg Config

	samples        []float64
	lastFire       time.Time
	fireInProgress bool
	requestedAt    time.Time
}

func NewArbiter(cfg Config) *Arbiter {
	if cfg.RequiredSamples < 1 {
		cfg.RequiredSamples = 1
	}
	if cfg.Power == nil {
		cfg.Power = LinearPower(0, 100)
	}
	return &Arbiter{
		cfg:     cfg,
		samples: make([]float64, 0, cfg.RequiredSamples),
	}
}

// InProgress reports whether a requested shot has not completed yet.
func (a *Arbiter) InProgress() bool {
	return a.fireInProgress
}

// Collected returns the number of samples in the current run.
func (a *Arbiter) Collected() int {
	return len(a.samples)
}

// Observe feeds one control cycle.
func (a *Arbiter) Observe(rng state.Reading[float64], yawError state.Reading[int32], now time.Time) Decision {
	if a.fireInProgress && a.cfg.CompletionTimeout > 0 && now.Sub(a.requestedAt) >= a.cfg.CompletionTimeout {
		a.Complete(a.requestedAt.Add(a.cfg.CompletionTimeout))
	}

	r, ok := a.gate(rng, yawError, now)
	if !ok {
		a.samples = a.samples[:0]
		return Decision{}
	}

	a.samples = append(a.samples, r)
	if len(a.samples) < a.cfg.RequiredSamples {
		return Decision{}
	}

	mean := 0.0
	for _, s := range a.samples {
		mean += s
	}
	mean /= float64(len(a.samples))
	a.samples = a.samples[:0]
	a.fireInProgress = true
	a.requestedAt = now

	return Decision{Requested: true, Power: a.cfg.Power(mean), MeanRange: mean}
}

func (a *Arbiter) gate(rng state.Reading[float64], yawError state.Reading[int32], now time.Time) (float64, bool) {
	if a.fireInProgress {
		return 0, false
	}
	if !now.After(a.lastFire.Add(a.cfg.Cooldown)) {
		return 0, false
	}
	e, ok := yawError.Get()
	if !ok || abs32(e) >= int64(a.cfg.AimTolerancePx) {
		return 0, false
	}
	return rng.Get()
}

// Complete records that the hardware finished the shot at now and starts
// the cooldown.
func (a *Arbiter) Complete(now time.Time) {
	a.fireInProgress = false
	a.lastFire = now
}

func abs32(v int32) int64 {
	x := int64(v)
	if x < 0 {
		return -x
	}
	return x
}

// LinearPower maps range linearly so that 0 m gives min and fullScale
// meters or more gives 100.
func LinearPower(min int, fullScale float64) PowerFunc {
	return func(r float64) int {
		if fullScale <= 0 {
			return 100
		}
		p := float64(min) + (100-float64(min))*r/fullScale
		return clampPower(p)
	}
}

// BallisticPower converts range into the launch speed the flight model
// needs, as a percentage of the simulator's MaxSpeed.
func BallisticPower(sim ballistics.Simulator, angle float64) PowerFunc {
	return func(r float64) int {
		v, ok := sim.SpeedFor(r, angle)
		if !ok || sim.MaxSpeed <= 0 {
			return 100
		}
		return clampPower(100 * v / sim.MaxSpeed)
	}
}

func clampPower(p float64) int {
	return int(math.Max(0, math.Min(100, math.Round(p))))
}
