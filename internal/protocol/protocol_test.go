package protocol

import (
	"encoding/binary"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/PadGo/internal/logic/buttons"
)

func TestEncodeVelocity_Layout(t *testing.T) {
	got := EncodeVelocity(1000, -1000)
	require.Len(t, got, 5)

	// (1000 << 16) | (-1000 & 0xFFFF) = 0x03E8FC18
	assert.Equal(t, []byte{0x03, 0x03, 0xE8, 0xFC, 0x18}, got)
}

func TestEncodeVelocity_Zero(t *testing.T) {
	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x00, 0x00}, EncodeVelocity(0, 0))
}

func TestEncodeVelocity_Extremes(t *testing.T) {
	cases := []struct {
		name      string
		pan, tilt int16
		want      []byte
	}{
		{"max_speed", 2000, 2000, []byte{0x03, 0x07, 0xD0, 0x07, 0xD0}},
		{"min_speed", -2000, -2000, []byte{0x03, 0xF8, 0x30, 0xF8, 0x30}},
		{"negative_tilt_does_not_borrow_from_pan", 0, -1, []byte{0x03, 0x00, 0x00, 0xFF, 0xFF}},
		{"negative_pan_only", -1, 0, []byte{0x03, 0xFF, 0xFF, 0x00, 0x00}},
		{"int16_limits", math.MinInt16, math.MaxInt16, []byte{0x03, 0x80, 0x00, 0x7F, 0xFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EncodeVelocity(tc.pan, tc.tilt))
		})
	}
}

func TestEncodeVelocity_RoundTrip(t *testing.T) {
	tilts := []int16{math.MinInt16, -2000, -1, 0, 1, 2000, math.MaxInt16}
	for p := math.MinInt16; p <= math.MaxInt16; p++ {
		for _, tilt := range tilts {
			pan := int16(p)
			frame := EncodeVelocity(pan, tilt)
			gotPan, gotTilt := UnpackPanTilt(binary.BigEndian.Uint32(frame[1:]))
			if gotPan != pan || gotTilt != tilt {
				t.Fatalf("round trip (%d, %d) -> (%d, %d)", pan, tilt, gotPan, gotTilt)
			}
			// Same check swapping the roles of the axes.
			gotPan, gotTilt, err := DecodeVelocity(EncodeVelocity(tilt, pan))
			if err != nil || gotPan != tilt || gotTilt != pan {
				t.Fatalf("decode (%d, %d) -> (%d, %d, %v)", tilt, pan, gotPan, gotTilt, err)
			}
		}
	}
}

func TestDecodeVelocity_Errors(t *testing.T) {
	_, _, err := DecodeVelocity([]byte{0x03, 0x00})
	assert.ErrorIs(t, err, ErrFrameLength)

	_, _, err = DecodeVelocity([]byte{0x01, 0x00, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrFrameTag)
}

func TestEncodeAxisFrames(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x07, 0xD0}, EncodePanSpeed(2000))
	assert.Equal(t, []byte{0x02, 0xF8, 0x30}, EncodeTiltSpeed(-2000))

	for _, v := range []int16{math.MinInt16, -1, 0, 1, math.MaxInt16} {
		tag, got, err := DecodeAxis(EncodePanSpeed(v))
		require.NoError(t, err)
		assert.Equal(t, TagPanSpeed, tag)
		assert.Equal(t, v, got)

		tag, got, err = DecodeAxis(EncodeTiltSpeed(v))
		require.NoError(t, err)
		assert.Equal(t, TagTiltSpeed, tag)
		assert.Equal(t, v, got)
	}

	_, _, err := DecodeAxis([]byte{0x03, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrFrameTag)
	_, _, err = DecodeAxis(nil)
	assert.ErrorIs(t, err, ErrFrameLength)
}

func TestEncodeButtonEvent_Table(t *testing.T) {
	want := map[buttons.Button]string{
		buttons.Up:    "[",
		buttons.Down:  "]",
		buttons.Left:  "<",
		buttons.Right: ">",
		buttons.Menu:  "A",
		buttons.View:  ";1",
		buttons.L:     "m4",
		buttons.R:     "m16",
		buttons.LB:    "D300",
		buttons.RB:    "c",
		buttons.A:     "#",
		buttons.B:     "C",
		buttons.X:     "E",
		buttons.Y:     "R",
	}
	require.Len(t, want, len(buttons.Order))
	for b, code := range want {
		t.Run(b.String(), func(t *testing.T) {
			assert.Equal(t, []byte(code), EncodeButtonEvent(b))
		})
	}
}

func TestEncodeButtonEvent_Unknown(t *testing.T) {
	assert.Nil(t, EncodeButtonEvent(buttons.Button(0x0400)))
}

func TestEncodeRawCode_Copies(t *testing.T) {
	in := []byte(CodeExecute)
	out := EncodeRawCode(in)
	assert.Equal(t, in, out)

	in[0] = 'x'
	assert.Equal(t, []byte(";1"), out)
}

func TestCodeSets_ArePrefixFree(t *testing.T) {
	require.NoError(t, CheckPrefixFree(ButtonCodes()))

	var named []string
	for _, c := range ControlCodes {
		named = append(named, c)
	}
	sort.Strings(named)
	require.NoError(t, CheckPrefixFree(named))
}

func TestCheckPrefixFree_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		codes []string
	}{
		{"prefix", []string{"m1", "m16"}},
		{"prefix_reversed_order", []string{"m16", "m1"}},
		{"duplicate", []string{"c", "c"}},
		{"empty", []string{""}},
		{"frame_tag", []string{"\x03A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, CheckPrefixFree(tc.codes))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "pan/tilt speed pan=1000 tilt=-1000", Describe(EncodeVelocity(1000, -1000)))
	assert.Equal(t, "pan speed -5", Describe(EncodePanSpeed(-5)))
	assert.Equal(t, "tilt speed 7", Describe(EncodeTiltSpeed(7)))
	assert.Equal(t, `code "m16"`, Describe([]byte("m16")))
	assert.Equal(t, "<empty>", Describe(nil))
}
