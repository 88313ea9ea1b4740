// Package yaw implements the yaw axis control law: PID with integral
// anti-windup, sign-flip windup dump and an encoder travel-limit override.
package yaw

import (
	"math"

	"turret-ctrl/internal/state"
)

// WindupLimit bounds the prospective integral contribution, in percent.
const WindupLimit = 100

// Config holds the yaw controller tunables.
type Config struct {
	Kp float64
	Ki float64
	Kd float64

	NeutralDuty uint8
	// LimitCounts is the encoder travel limit in either direction.
	LimitCounts int32
	// ResetIntegralOnInvalid zeroes the integral when the error is Invalid.
	ResetIntegralOnInvalid bool

	Calibration Calibration
}

// Controller holds PID state. It is not safe for concurrent use; the
// actuator loop is its only caller.
type Controller struct {
	cfg Config

	integral      float64
	previousError int32
}

func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Neutral returns the duty commanding zero rotation.
func (c *Controller) Neutral() uint8 {
	return c.cfg.NeutralDuty
}

// Reset clears the integral and derivative memory.
func (c *Controller) Reset() {
	c.integral = 0
	c.previousError = 0
}

// State returns the committed integral and previous error.
func (c *Controller) State() (integral float64, previousError int32) {
	return c.integral, c.previousError
}

// Update runs one control cycle and returns the duty to command.
func (c *Controller) Update(yawError state.Reading[int32], encoder int32) uint8 {
	errPx, ok := yawError.Get()
	if !ok {
		if c.cfg.ResetIntegralOnInvalid {
			c.integral = 0
		}
		return c.cfg.NeutralDuty
	}

	if c.pastLimit(errPx, encoder) {
		return c.cfg.NeutralDuty
	}

	e := float64(errPx)
	if c.integral*e < 0 {
		c.integral = 0
	}
	if math.Abs(c.cfg.Ki*(c.integral+e)) < WindupLimit {
		c.integral += e
	}
	derivative := float64(int64(errPx) - int64(c.previousError))
	c.previousError = errPx

	u := c.cfg.Kp*e + c.cfg.Ki*c.integral + c.cfg.Kd*derivative
	return c.cfg.Calibration.Duty(c.cfg.NeutralDuty, u)
}

func (c *Controller) pastLimit(errPx, encoder int32) bool {
	if c.cfg.LimitCounts <= 0 {
		return false
	}
	enc := int64(encoder)
	if enc < 0 {
		enc = -enc
	}
	return enc >= int64(c.cfg.LimitCounts) && int64(encoder)*int64(errPx) < 0
}
