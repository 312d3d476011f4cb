// Package axis turns raw analog stick samples into mount speeds.
package axis

import (
	"math"

	"github.com/cjeanneret/PadGo/internal/protocol"
)

const (
	// MaxSpeed is the largest speed magnitude understood by the mount.
	MaxSpeed = 2000

	// RightThumbDeadzone is the factory deadzone of the right stick.
	RightThumbDeadzone int16 = 8689

	// InputDeadzone is a tighter deadzone for sticks that center well.
	InputDeadzone int16 = 1000

	rawMax = math.MaxInt16
)

// Velocity is a pan/tilt speed pair, each in [-MaxSpeed, MaxSpeed].
type Velocity struct {
	Pan  int16
	Tilt int16
}

// Packed returns the combined value sent in a pan/tilt speed frame.
func (v Velocity) Packed() uint32 {
	return protocol.PackPanTilt(v.Pan, v.Tilt)
}

// IsZero reports whether both axes are stopped.
func (v Velocity) IsZero() bool {
	return v.Pan == 0 && v.Tilt == 0
}

// MapAxis converts a raw stick sample to a speed.
//
// Samples inside the deadzone give 0. Outside, the deadzone is removed from the
// magnitude so speed starts at 0 on its edge, then [0, 32767-deadzone] is scaled
// to [0, MaxSpeed] and truncated. The result is negated: the mount's forward
// direction is opposite to the stick's.
func MapAxis(raw, deadzone int16) int16 {
	dz := float64(deadzone)
	if dz < 0 {
		dz = 0
	}
	if dz >= rawMax {
		return 0
	}

	// float64 keeps -32768 representable once the sign is handled.
	v := float64(raw)
	switch {
	case math.Abs(v) < dz:
		v = 0
	case v > 0:
		v -= dz
	case v < 0:
		v += dz
	}

	scaled := math.Trunc(v * MaxSpeed / (rawMax - dz))
	scaled = math.Max(-MaxSpeed, math.Min(MaxSpeed, scaled))
	return -int16(scaled)
}

// MapStick maps both axes of a stick: x drives pan, y drives tilt.
func MapStick(x, y, deadzone int16) Velocity {
	return Velocity{
		Pan:  MapAxis(x, deadzone),
		Tilt: MapAxis(y, deadzone),
	}
}
