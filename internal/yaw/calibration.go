package yaw

import "math"

// Slope maps a saturated percentage to a duty offset from neutral:
// offset = Offset + Gain*pct.
type Slope struct {
	Gain   float64 `toml:"gain"`
	Offset float64 `toml:"offset"`
}

// Calibration is the direction-dependent percentage to duty table.
// Percentages below DeadBand map to exactly neutral.
type Calibration struct {
	DeadBand float64 `toml:"dead_band"`
	Positive Slope   `toml:"positive"`
	Negative Slope   `toml:"negative"`
}

// DefaultCalibration matches the bench driver: positive rotation pulls the
// duty below neutral slightly faster than negative rotation raises it.
func DefaultCalibration() Calibration {
	return Calibration{
		DeadBand: 1,
		Positive: Slope{Gain: -1.02},
		Negative: Slope{Gain: 1.0},
	}
}

// Duty maps a signed output u (percent scale) to a physical duty.
func (c Calibration) Duty(neutral uint8, u float64) uint8 {
	pct := math.Min(math.Abs(u), 100)
	if pct < c.DeadBand || pct == 0 {
		return neutral
	}
	s := c.Negative
	if u > 0 {
		s = c.Positive
	}
	duty := float64(neutral) + s.Offset + s.Gain*pct
	switch {
	case duty <= 0:
		return 0
	case duty >= 255:
		return 255
	}
	return uint8(duty)
}
