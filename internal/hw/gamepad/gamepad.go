package gamepad

import (
	"errors"

	"github.com/cjeanneret/PadGo/internal/logic/buttons"
)

// ErrNotConnected means no controller answers at the polled index.
var ErrNotConnected = errors.New("controller not connected")

// MaxControllers is how many device indices are scanned for a controller.
const MaxControllers = 4

// Snapshot is the controller state captured by one poll.
// Seq changes only when the state does, so an unchanged Seq means
// there is nothing new to process.
type Snapshot struct {
	Seq     uint32
	RX      int16 // right stick, positive = right
	RY      int16 // right stick, positive = up
	Buttons buttons.Mask
}

// Source supplies controller snapshots.
// This allows plugging in a real joystick or a scripted one for tests.
type Source interface {
	// Poll returns the current state of the controller at index.
	// The error wraps ErrNotConnected when there is no controller there.
	Poll(index int) (Snapshot, error)
	// Name describes the controller at index, or "" if unknown.
	Name(index int) string
	Close() error
}
