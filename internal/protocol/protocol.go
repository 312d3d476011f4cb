// Package protocol encodes the messages understood by the pan-tilt mount firmware.
//
// Two kinds of message share the link with no length prefix or delimiter:
//
//   - binary speed frames, a tag byte followed by a big-endian payload whose size
//     the receiver derives from the tag;
//   - short ASCII control codes sent verbatim.
//
// Tags are below 0x20 so they never collide with the printable control codes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cjeanneret/PadGo/internal/logic/buttons"
)

// Frame tags.
const (
	TagPanSpeed     byte = 0x01 // [tag][hi][lo]
	TagTiltSpeed    byte = 0x02 // [tag][hi][lo]
	TagPanTiltSpeed byte = 0x03 // [tag][b3][b2][b1][b0]
)

// Frame sizes including the tag byte.
const (
	AxisFrameLen    = 3
	PanTiltFrameLen = 5
)

// ASCII control codes of the mount firmware.
const (
	CodeFirstKeyframe  = "["
	CodeLastKeyframe   = "]"
	CodeStepBack       = "<"
	CodeStepForward    = ">"
	CodeHome           = "A"
	CodeExecute        = ";1"
	CodeQuarterStep    = "m4"
	CodeSixteenthStep  = "m16"
	CodeDelay300       = "D300"
	CodeShutter        = "c"
	CodeSavePosition   = "#"
	CodeClearPositions = "C"
	CodeEditPosition   = "E"
	CodeReport         = "R"
)

// buttonCodes maps every named button to the code it sends when pressed.
var buttonCodes = map[buttons.Button]string{
	buttons.Up:    CodeFirstKeyframe,
	buttons.Down:  CodeLastKeyframe,
	buttons.Left:  CodeStepBack,
	buttons.Right: CodeStepForward,
	buttons.Menu:  CodeHome,
	buttons.View:  CodeExecute,
	buttons.L:     CodeQuarterStep,
	buttons.R:     CodeSixteenthStep,
	buttons.LB:    CodeDelay300,
	buttons.RB:    CodeShutter,
	buttons.A:     CodeSavePosition,
	buttons.B:     CodeClearPositions,
	buttons.X:     CodeEditPosition,
	buttons.Y:     CodeReport,
}

// ControlCodes names the control codes that can be sent on demand (web UI, CLI).
var ControlCodes = map[string]string{
	"first":          CodeFirstKeyframe,
	"last":           CodeLastKeyframe,
	"step-back":      CodeStepBack,
	"step-forward":   CodeStepForward,
	"home":           CodeHome,
	"execute":        CodeExecute,
	"quarter-step":   CodeQuarterStep,
	"sixteenth-step": CodeSixteenthStep,
	"delay":          CodeDelay300,
	"shutter":        CodeShutter,
	"save":           CodeSavePosition,
	"clear":          CodeClearPositions,
	"edit":           CodeEditPosition,
	"report":         CodeReport,
}

var (
	ErrFrameLength = errors.New("protocol: bad frame length")
	ErrFrameTag    = errors.New("protocol: unexpected frame tag")
)

// PackPanTilt combines pan (upper 16 bits) and tilt (lower 16 bits) in two's complement.
func PackPanTilt(pan, tilt int16) uint32 {
	return uint32(uint16(pan))<<16 | uint32(uint16(tilt))
}

// UnpackPanTilt splits a value built by PackPanTilt.
func UnpackPanTilt(v uint32) (pan, tilt int16) {
	return int16(uint16(v >> 16)), int16(uint16(v))
}

// EncodeVelocity builds the 5-byte combined pan/tilt speed frame.
func EncodeVelocity(pan, tilt int16) []byte {
	frame := make([]byte, PanTiltFrameLen)
	frame[0] = TagPanTiltSpeed
	binary.BigEndian.PutUint32(frame[1:], PackPanTilt(pan, tilt))
	return frame
}

// EncodePanSpeed builds the 3-byte pan-only speed frame.
func EncodePanSpeed(v int16) []byte {
	return encodeAxis(TagPanSpeed, v)
}

// EncodeTiltSpeed builds the 3-byte tilt-only speed frame.
func EncodeTiltSpeed(v int16) []byte {
	return encodeAxis(TagTiltSpeed, v)
}

func encodeAxis(tag byte, v int16) []byte {
	frame := make([]byte, AxisFrameLen)
	frame[0] = tag
	binary.BigEndian.PutUint16(frame[1:], uint16(v))
	return frame
}

// EncodeButtonEvent returns the control code sent when b is pressed,
// or nil if b has no code.
func EncodeButtonEvent(b buttons.Button) []byte {
	code, ok := buttonCodes[b]
	if !ok {
		return nil
	}
	return []byte(code)
}

// EncodeRawCode returns a copy of code, sent as-is.
func EncodeRawCode(code []byte) []byte {
	out := make([]byte, len(code))
	copy(out, code)
	return out
}

// DecodeVelocity parses a combined pan/tilt speed frame.
func DecodeVelocity(frame []byte) (pan, tilt int16, err error) {
	if len(frame) != PanTiltFrameLen {
		return 0, 0, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(frame), PanTiltFrameLen)
	}
	if frame[0] != TagPanTiltSpeed {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrFrameTag, frame[0])
	}
	pan, tilt = UnpackPanTilt(binary.BigEndian.Uint32(frame[1:]))
	return pan, tilt, nil
}

// DecodeAxis parses a single-axis speed frame and returns its tag and value.
func DecodeAxis(frame []byte) (tag byte, v int16, err error) {
	if len(frame) != AxisFrameLen {
		return 0, 0, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(frame), AxisFrameLen)
	}
	if frame[0] != TagPanSpeed && frame[0] != TagTiltSpeed {
		return 0, 0, fmt.Errorf("%w: 0x%02x", ErrFrameTag, frame[0])
	}
	return frame[0], int16(binary.BigEndian.Uint16(frame[1:])), nil
}

// Describe renders a message for logs.
func Describe(msg []byte) string {
	if len(msg) == 0 {
		return "<empty>"
	}
	switch msg[0] {
	case TagPanTiltSpeed:
		if pan, tilt, err := DecodeVelocity(msg); err == nil {
			return fmt.Sprintf("pan/tilt speed pan=%d tilt=%d", pan, tilt)
		}
	case TagPanSpeed, TagTiltSpeed:
		if tag, v, err := DecodeAxis(msg); err == nil {
			axis := "pan"
			if tag == TagTiltSpeed {
				axis = "tilt"
			}
			return fmt.Sprintf("%s speed %d", axis, v)
		}
	}
	return fmt.Sprintf("code %q", msg)
}

// CheckPrefixFree reports an error if any code is empty, starts with a frame tag,
// or is a prefix of another code. The receiver relies on this to split the stream.
func CheckPrefixFree(codes []string) error {
	for i, a := range codes {
		if a == "" {
			return errors.New("protocol: empty control code")
		}
		if a[0] <= TagPanTiltSpeed {
			return fmt.Errorf("protocol: code %q starts with a frame tag", a)
		}
		for j, b := range codes {
			if i != j && strings.HasPrefix(b, a) {
				return fmt.Errorf("protocol: code %q is a prefix of %q", a, b)
			}
		}
	}
	return nil
}

// ButtonCodes returns the codes of all buttons in canonical order.
func ButtonCodes() []string {
	codes := make([]string, 0, len(buttons.Order))
	for _, b := range buttons.Order {
		codes = append(codes, buttonCodes[b])
	}
	return codes
}
