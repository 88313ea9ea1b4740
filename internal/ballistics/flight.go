// Package ballistics models the flight of a launched disc so a measured
// range can be turned into a launch speed.
package ballistics

import "math"

// Simulator is a planar lift/drag flight model integrated with fixed Euler
// steps from a fixed launch height.
type Simulator struct {
	Gravity float64 // m/s^2, negative is down
	Mass    float64 // kg
	AirRho  float64 // kg/m^3
	Area    float64 // m^2

	LiftBase  float64 // lift coefficient at zero angle
	LiftSlope float64 // lift coefficient per radian
	DragBase  float64 // drag coefficient at zero angle
	DragQuad  float64 // drag coefficient per radian^2 away from DragAngle
	DragAngle float64 // radians

	Step   float64 // s
	Height float64 // m

	MinSpeed float64 // m/s
	MaxSpeed float64 // m/s
}

// maxSteps bounds a single flight (60 s of simulated time at 1 ms).
const maxSteps = 60000

// DefaultSimulator is parameterised for a standard 175 g disc.
func DefaultSimulator() Simulator {
	return Simulator{
		Gravity:   -9.82,
		Mass:      0.175,
		AirRho:    1.23,
		Area:      0.0568,
		LiftBase:  0.1,
		LiftSlope: 1.4,
		DragBase:  0.08,
		DragQuad:  2.72,
		DragAngle: -4 * math.Pi / 180,
		Step:      0.001,
		Height:    1,
		MinSpeed:  1,
		MaxSpeed:  25,
	}
}

// Distance returns the horizontal distance at which a disc launched at
// speed (m/s) and angle (rad) lands.
func (s Simulator) Distance(speed, angle float64) float64 {
	x, y := 0.0, s.Height
	vx := speed * math.Cos(angle)
	vy := speed * math.Sin(angle)
	cl := s.LiftBase + s.LiftSlope*angle
	cd := s.DragBase + s.DragQuad*(angle-s.DragAngle)*(angle-s.DragAngle)
	k := s.AirRho * s.Area / (2 * s.Mass)

	for i := 0; i < maxSteps && y >= 0; i++ {
		ax := -k * vx * vx * cd
		ay := s.Gravity + k*vx*vx*cl
		vx += ax * s.Step
		vy += ay * s.Step
		x += vx * s.Step
		y += vy * s.Step
	}
	return x
}

// SpeedFor returns the lowest speed in [MinSpeed, MaxSpeed], at 0.1 m/s
// resolution, whose flight reaches distance. ok is false when even
// MaxSpeed falls short.
func (s Simulator) SpeedFor(distance, angle float64) (speed float64, ok bool) {
	const resolution = 0.1
	steps := int(math.Round((s.MaxSpeed - s.MinSpeed) / resolution))
	for i := 0; i <= steps; i++ {
		v := s.MinSpeed + float64(i)*resolution
		if s.Distance(v, angle) >= distance {
			return v, true
		}
	}
	return s.MaxSpeed, false
}
