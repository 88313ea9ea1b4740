// Package state holds the process-wide control record shared by the
// detection, telemetry and actuator loops.
//
// Each field has exactly one writing role. Fields are swapped atomically so
// readers never block writers and never observe a torn value; readers may
// see the previous cycle's value.
package state

import (
	"sync/atomic"
)

// Target is the latest detection outcome: the selected bounds (if any) and
// the yaw error derived from them. Both are stored as one cell.
type Target struct {
	Bounds   Reading[Bounds]
	YawError Reading[int32]
}

// Control is the shared control state.
type Control struct {
	target  atomic.Pointer[Target]
	rangeM  atomic.Pointer[Reading[float64]]
	encoder atomic.Pointer[Reading[int32]]
	homings atomic.Uint64

	exit         atomic.Bool
	resetYaw     atomic.Bool
	fireComplete atomic.Bool

	fireRequested atomic.Bool
	firePower     atomic.Int32
	duty          atomic.Uint32
}

// New returns a Control with every measurement Invalid.
func New() *Control {
	c := &Control{}
	c.target.Store(&Target{})
	inv := Invalid[float64]()
	c.rangeM.Store(&inv)
	enc := Invalid[int32]()
	c.encoder.Store(&enc)
	return c
}

// SetTarget is written by the detection reader.
func (c *Control) SetTarget(t Target) {
	c.target.Store(&t)
}

// InvalidateTarget marks the yaw error and bounds Invalid.
func (c *Control) InvalidateTarget() {
	c.target.Store(&Target{})
}

// Target returns the latest detection outcome.
func (c *Control) Target() Target {
	return *c.target.Load()
}

// YawError returns the latest yaw error.
func (c *Control) YawError() Reading[int32] {
	return c.target.Load().YawError
}

// SetRange is written by the range reader.
func (c *Control) SetRange(r Reading[float64]) {
	c.rangeM.Store(&r)
}

// Range returns the latest range sample in meters.
func (c *Control) Range() Reading[float64] {
	return *c.rangeM.Load()
}

// SetEncoder is written by the motor link reader.
func (c *Control) SetEncoder(r Reading[int32]) {
	c.encoder.Store(&r)
}

// Encoder returns the latest encoder count.
func (c *Control) Encoder() Reading[int32] {
	return *c.encoder.Load()
}

// MarkYawHomed is written by the motor link reader when the first encoder
// report after a reset arrives.
func (c *Control) MarkYawHomed() {
	c.homings.Add(1)
}

// YawHomings counts completed homings. Waiters compare it against the
// value read before sending the reset.
func (c *Control) YawHomings() uint64 {
	return c.homings.Load()
}

// RequestExit asks every loop to park its hardware and return.
func (c *Control) RequestExit() {
	c.exit.Store(true)
}

// ExitRequested reports whether shutdown was requested.
func (c *Control) ExitRequested() bool {
	return c.exit.Load()
}

// RequestYawReset asks the actuator loop to re-home the yaw axis.
func (c *Control) RequestYawReset() {
	c.resetYaw.Store(true)
}

// TakeYawReset consumes a pending yaw reset request.
func (c *Control) TakeYawReset() bool {
	return c.resetYaw.Swap(false)
}

// SignalFireComplete is written by the motor link reader when the
// controller reports the shot finished.
func (c *Control) SignalFireComplete() {
	c.fireComplete.Store(true)
}

// TakeFireComplete consumes a pending completion signal.
func (c *Control) TakeFireComplete() bool {
	return c.fireComplete.Swap(false)
}

// SetFireRequested is written by the fire arbiter's owner.
func (c *Control) SetFireRequested(requested bool, power int) {
	c.firePower.Store(int32(power))
	c.fireRequested.Store(requested)
}

// FireRequested returns whether a shot is outstanding and its power.
func (c *Control) FireRequested() (bool, int) {
	return c.fireRequested.Load(), int(c.firePower.Load())
}

// SetDuty records the last commanded yaw duty.
func (c *Control) SetDuty(d uint8) {
	c.duty.Store(uint32(d))
}

// Duty returns the last commanded yaw duty.
func (c *Control) Duty() uint8 {
	return uint8(c.duty.Load())
}

// Snapshot is a point-in-time JSON view of the control state. Fields are
// read one at a time, so the snapshot as a whole is not transactional.
type Snapshot struct {
	YawError      *int32   `json:"yaw_error_px"`
	Bounds        *Bounds  `json:"bounds"`
	Range         *float64 `json:"range_m"`
	Encoder       *int32   `json:"encoder_count"`
	Duty          uint8    `json:"duty"`
	FireRequested bool     `json:"fire_requested"`
	FirePower     int      `json:"fire_power"`
	Exiting       bool     `json:"exiting"`
}

// Snapshot collects the current values.
func (c *Control) Snapshot() Snapshot {
	t := c.Target()
	fire, power := c.FireRequested()
	return Snapshot{
		YawError:      ptr(t.YawError),
		Bounds:        ptr(t.Bounds),
		Range:         ptr(c.Range()),
		Encoder:       ptr(c.Encoder()),
		Duty:          c.Duty(),
		FireRequested: fire,
		FirePower:     power,
		Exiting:       c.ExitRequested(),
	}
}

func ptr[T any](r Reading[T]) *T {
	v, ok := r.Get()
	if !ok {
		return nil
	}
	return &v
}
