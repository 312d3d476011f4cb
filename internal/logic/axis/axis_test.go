package axis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var deadzones = []int16{0, InputDeadzone, RightThumbDeadzone, 20000}

func TestMapAxis_InsideDeadzoneIsZero(t *testing.T) {
	for _, dz := range deadzones {
		for raw := -int(dz) + 1; raw < int(dz); raw++ {
			if got := MapAxis(int16(raw), dz); got != 0 {
				t.Fatalf("MapAxis(%d, %d) = %d, want 0", raw, dz, got)
			}
		}
	}
}

func TestMapAxis_Boundaries(t *testing.T) {
	cases := []struct {
		name     string
		raw      int16
		deadzone int16
		want     int16
	}{
		{"at_deadzone", InputDeadzone, InputDeadzone, 0},
		{"at_negative_deadzone", -InputDeadzone, InputDeadzone, 0},
		{"full_forward", math.MaxInt16, InputDeadzone, -2000},
		{"full_back", -math.MaxInt16, InputDeadzone, 2000},
		{"most_negative_raw", math.MinInt16, InputDeadzone, 2000},
		{"most_negative_raw_no_deadzone", math.MinInt16, 0, 2000},
		{"full_forward_right_stick", math.MaxInt16, RightThumbDeadzone, -2000},
		{"at_right_stick_deadzone", RightThumbDeadzone, RightThumbDeadzone, 0},
		{"center", 0, RightThumbDeadzone, 0},
		// (16383 - 1000) * 2000 / 31767 = 968.49 -> 968
		{"half_forward", 16383, InputDeadzone, -968},
		{"half_back", -16383, InputDeadzone, 968},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapAxis(tc.raw, tc.deadzone))
		})
	}
}

func TestMapAxis_MonotonicAndBounded(t *testing.T) {
	for _, dz := range deadzones {
		prev := int16(0)
		for raw := int(dz); raw <= math.MaxInt16; raw++ {
			pos := MapAxis(int16(raw), dz)
			neg := MapAxis(int16(-raw), dz)

			if pos > 0 || pos < -MaxSpeed {
				t.Fatalf("MapAxis(%d, %d) = %d out of [-2000, 0]", raw, dz, pos)
			}
			if neg < 0 || neg > MaxSpeed {
				t.Fatalf("MapAxis(%d, %d) = %d out of [0, 2000]", -raw, dz, neg)
			}
			if -pos < prev {
				t.Fatalf("magnitude decreased at raw=%d dz=%d: %d < %d", raw, dz, -pos, prev)
			}
			if neg != -pos {
				t.Fatalf("asymmetric at raw=%d dz=%d: %d vs %d", raw, dz, neg, pos)
			}
			prev = -pos
		}
	}
}

func TestMapAxis_DegenerateDeadzones(t *testing.T) {
	assert.Equal(t, int16(0), MapAxis(math.MaxInt16, math.MaxInt16))
	assert.Equal(t, int16(0), MapAxis(math.MinInt16, math.MaxInt16))
	// Negative deadzone behaves as none.
	assert.Equal(t, MapAxis(12345, 0), MapAxis(12345, -50))
}

func TestMapStick(t *testing.T) {
	v := MapStick(math.MaxInt16, -math.MaxInt16, InputDeadzone)
	assert.Equal(t, Velocity{Pan: -2000, Tilt: 2000}, v)
	assert.False(t, v.IsZero())

	assert.True(t, MapStick(500, -500, InputDeadzone).IsZero())
}

func TestVelocity_Packed(t *testing.T) {
	v := Velocity{Pan: 1000, Tilt: -1000}
	assert.Equal(t, uint32(0x03E8FC18), v.Packed())
	assert.Equal(t, uint32(0), Velocity{}.Packed())
}
