package gamepad

import (
	"fmt"
	"math"

	"github.com/0xcafed00d/joystick"

	"github.com/cjeanneret/PadGo/internal/debug"
	"github.com/cjeanneret/PadGo/internal/logic/buttons"
)

// hatThreshold is how far a hat axis must move to count as a D-pad press.
const hatThreshold = 16384

// AxisMapping selects a joystick axis. Invert flips its sign.
type AxisMapping struct {
	Index  int
	Invert bool
}

// Mapping translates a raw joystick state into a Snapshot.
type Mapping struct {
	Pan  AxisMapping
	Tilt AxisMapping

	// DPadX and DPadY are hat axes driving Left/Right and Up/Down.
	// -1 disables them (D-pad reported as buttons instead).
	DPadX int
	DPadY int

	// Buttons holds the joystick button number of each named button.
	Buttons map[buttons.Button]int
}

// DefaultMapping is the Linux xpad layout of an Xbox One controller.
// Its Y axes grow downward, hence the tilt inversion.
func DefaultMapping() Mapping {
	return Mapping{
		Pan:   AxisMapping{Index: 3},
		Tilt:  AxisMapping{Index: 4, Invert: true},
		DPadX: 6,
		DPadY: 7,
		Buttons: map[buttons.Button]int{
			buttons.A:    0,
			buttons.B:    1,
			buttons.X:    2,
			buttons.Y:    3,
			buttons.LB:   4,
			buttons.RB:   5,
			buttons.View: 6,
			buttons.Menu: 7,
			buttons.L:    9,
			buttons.R:    10,
		},
	}
}

// SetButton maps the named button to a joystick button number.
func (m *Mapping) SetButton(name string, index int) error {
	b, err := buttons.Parse(name)
	if err != nil {
		return err
	}
	if index < 0 || index > 31 {
		return fmt.Errorf("button %s: index %d out of range 0-31", name, index)
	}
	if m.Buttons == nil {
		m.Buttons = make(map[buttons.Button]int)
	}
	m.Buttons[b] = index
	return nil
}

// Apply converts a joystick state. Seq is left at zero.
func (m Mapping) Apply(state joystick.State) Snapshot {
	snap := Snapshot{
		RX: axisValue(state.AxisData, m.Pan),
		RY: axisValue(state.AxisData, m.Tilt),
	}

	for b, idx := range m.Buttons {
		if idx >= 0 && idx < 32 && state.Buttons&(1<<uint(idx)) != 0 {
			snap.Buttons = snap.Buttons.With(b)
		}
	}

	if x := rawAxis(state.AxisData, m.DPadX); x < -hatThreshold {
		snap.Buttons = snap.Buttons.With(buttons.Left)
	} else if x > hatThreshold {
		snap.Buttons = snap.Buttons.With(buttons.Right)
	}
	if y := rawAxis(state.AxisData, m.DPadY); y < -hatThreshold {
		snap.Buttons = snap.Buttons.With(buttons.Up)
	} else if y > hatThreshold {
		snap.Buttons = snap.Buttons.With(buttons.Down)
	}

	return snap
}

func rawAxis(data []int, idx int) int {
	if idx < 0 || idx >= len(data) {
		return 0
	}
	return data[idx]
}

func axisValue(data []int, a AxisMapping) int16 {
	v := rawAxis(data, a.Index)
	if a.Invert {
		v = -v
	}
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

type device struct {
	js   joystick.Joystick
	last Snapshot
	seen bool
}

// JoystickSource reads controllers through the OS joystick API.
// Devices are opened on first poll and dropped when a read fails.
type JoystickSource struct {
	open    func(id int) (joystick.Joystick, error)
	mapping Mapping
	devices map[int]*device
}

// NewJoystickSource creates a source using mapping for every controller.
func NewJoystickSource(mapping Mapping) *JoystickSource {
	return &JoystickSource{
		open:    joystick.Open,
		mapping: mapping,
		devices: make(map[int]*device),
	}
}

// Poll implements Source.
func (s *JoystickSource) Poll(index int) (Snapshot, error) {
	d, ok := s.devices[index]
	if !ok {
		js, err := s.open(index)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: index %d: %w", ErrNotConnected, index, err)
		}
		debug.Info("Controller %d: %s (%d axes, %d buttons)", index, js.Name(), js.AxisCount(), js.ButtonCount())
		d = &device{js: js}
		s.devices[index] = d
	}

	state, err := d.js.Read()
	if err != nil {
		d.js.Close()
		delete(s.devices, index)
		return Snapshot{}, fmt.Errorf("%w: index %d: %w", ErrNotConnected, index, err)
	}

	snap := s.mapping.Apply(state)
	snap.Seq = d.last.Seq
	if !d.seen || snap.RX != d.last.RX || snap.RY != d.last.RY || snap.Buttons != d.last.Buttons {
		snap.Seq++
		d.seen = true
	}
	d.last = snap
	return snap, nil
}

// Name implements Source.
func (s *JoystickSource) Name(index int) string {
	if d, ok := s.devices[index]; ok {
		return d.js.Name()
	}
	return ""
}

// Close releases every opened device.
func (s *JoystickSource) Close() error {
	for idx, d := range s.devices {
		d.js.Close()
		delete(s.devices, idx)
	}
	return nil
}
