// Package actuator closes the yaw loop and arbitrates firing against the
// motor controller at a fixed cadence, and composes the turret's loops.
package actuator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/fire"
	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/state"
	"turret-ctrl/internal/timeutil"
	"turret-ctrl/internal/turret"
	"turret-ctrl/internal/yaw"
)

// Actuator owns the yaw controller and fire arbiter. Their state survives
// motor link restarts.
type Actuator struct {
	ctrl         *yaw.Controller
	arb          *fire.Arbiter
	st           *state.Control
	clock        timeutil.Clock
	period       time.Duration
	resetTimeout time.Duration
	log          zerolog.Logger

	homing       bool
	homeMark     uint64
	homeDeadline time.Time
}

func New(ctrl *yaw.Controller, arb *fire.Arbiter, st *state.Control, clock timeutil.Clock, period, resetTimeout time.Duration, log zerolog.Logger) *Actuator {
	return &Actuator{
		ctrl:         ctrl,
		arb:          arb,
		st:           st,
		clock:        clock,
		period:       period,
		resetTimeout: resetTimeout,
		log:          log,
	}
}

// Home sends the yaw reset and holds neutral until the motor link reports
// the first encoder count after it, or the reset timeout passes. A shot
// still outstanding is abandoned, since its completion may never arrive.
func (a *Actuator) Home(t turret.Controller, now time.Time) error {
	if a.arb.InProgress() {
		a.arb.Complete(now)
		a.st.SetFireRequested(false, 0)
		a.log.Warn().Msg("abandoning outstanding shot")
	}
	a.homeMark = a.st.YawHomings()
	if err := t.ResetYaw(); err != nil {
		return err
	}
	a.ctrl.Reset()
	a.homing = true
	a.homeDeadline = now.Add(a.resetTimeout)
	a.log.Info().Dur("timeout", a.resetTimeout).Msg("homing yaw")
	return nil
}

// Step runs one control cycle at now.
func (a *Actuator) Step(t turret.Controller, now time.Time) error {
	if a.st.TakeYawReset() {
		if err := a.Home(t, now); err != nil {
			return err
		}
	}
	if a.st.TakeFireComplete() {
		a.arb.Complete(now)
		a.st.SetFireRequested(false, 0)
	}

	if a.homing {
		switch {
		case a.st.YawHomings() != a.homeMark:
			a.homing = false
			a.log.Info().Msg("yaw homed")
		case !now.Before(a.homeDeadline):
			a.homing = false
			a.log.Warn().Msg("yaw reset timed out")
		}
	}

	// unaimed: no control law and no range evidence for the arbiter
	enc, encOK := a.st.Encoder().Get()
	aimed := encOK && !a.homing
	yawErr := a.st.YawError()
	rng := a.st.Range()
	duty := a.ctrl.Neutral()
	if aimed {
		duty = a.ctrl.Update(yawErr, enc)
	} else {
		rng = state.Invalid[float64]()
	}
	if err := t.SetYawDuty(duty); err != nil {
		return err
	}
	a.st.SetDuty(duty)
	observability.SetYawDuty(duty)

	wasFiring := a.arb.InProgress()
	d := a.arb.Observe(rng, yawErr, now)
	if wasFiring && !a.arb.InProgress() {
		a.log.Warn().Msg("fire completion timed out")
		a.st.SetFireRequested(false, 0)
	}
	if d.Requested {
		a.log.Info().Float64("range_m", d.MeanRange).Int("power", d.Power).Msg("fire requested")
		if err := t.Fire(d.Power); err != nil {
			return err
		}
		a.st.SetFireRequested(true, d.Power)
		observability.RecordFire()
	}
	return nil
}

// Run homes the axis and steps at the configured cadence until shutdown,
// then parks the motor at neutral.
func (a *Actuator) Run(ctx context.Context, t turret.Controller) error {
	if err := a.Home(t, a.clock.Now()); err != nil {
		return err
	}

	ticker := a.clock.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.park(t)
			return nil
		case now := <-ticker.C():
			if a.st.ExitRequested() {
				a.park(t)
				return nil
			}
			if err := a.Step(t, now); err != nil {
				return err
			}
		}
	}
}

func (a *Actuator) park(t turret.Controller) {
	neutral := a.ctrl.Neutral()
	if err := t.SetYawDuty(neutral); err != nil {
		a.log.Warn().Err(err).Msg("park yaw")
		return
	}
	a.st.SetDuty(neutral)
	a.log.Info().Uint8("duty", neutral).Msg("yaw parked")
}
