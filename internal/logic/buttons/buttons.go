// Package buttons names the controller buttons the bridge reacts to and
// detects presses between two consecutive button masks.
package buttons

import (
	"fmt"
	"strings"
)

// Button is a single bit of a Mask. Values follow the XInput wButtons layout.
type Button uint16

// Mask packs the state of all buttons, one bit per Button (1 = held).
type Mask uint16

const (
	Up    Button = 0x0001
	Down  Button = 0x0002
	Left  Button = 0x0004
	Right Button = 0x0008
	Menu  Button = 0x0010
	View  Button = 0x0020
	L     Button = 0x0040 // left stick click
	R     Button = 0x0080 // right stick click
	LB    Button = 0x0100
	RB    Button = 0x0200
	A     Button = 0x1000
	B     Button = 0x2000
	X     Button = 0x4000
	Y     Button = 0x8000
)

// Order is the canonical order in which simultaneous presses are reported.
var Order = [...]Button{Up, Down, Left, Right, Menu, View, L, R, LB, RB, A, B, X, Y}

var names = map[Button]string{
	Up:    "Up",
	Down:  "Down",
	Left:  "Left",
	Right: "Right",
	Menu:  "Menu",
	View:  "View",
	L:     "L",
	R:     "R",
	LB:    "LB",
	RB:    "RB",
	A:     "A",
	B:     "B",
	X:     "X",
	Y:     "Y",
}

func (b Button) String() string {
	if n, ok := names[b]; ok {
		return n
	}
	return fmt.Sprintf("Button(0x%04x)", uint16(b))
}

// Parse returns the Button with the given name, case-insensitively.
func Parse(name string) (Button, error) {
	for _, b := range Order {
		if strings.EqualFold(names[b], name) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

// Has reports whether b is held in m.
func (m Mask) Has(b Button) bool {
	return m&Mask(b) != 0
}

// With returns m with b held.
func (m Mask) With(b Button) Mask {
	return m | Mask(b)
}

// RisingEdges returns the buttons that went from released in prev to held in cur,
// in canonical Order. Releases and buttons held in both masks are not reported.
// The caller keeps cur as prev for the next call.
func RisingEdges(prev, cur Mask) []Button {
	edges := cur &^ prev
	if edges == 0 {
		return nil
	}
	var pressed []Button
	for _, b := range Order {
		if edges.Has(b) {
			pressed = append(pressed, b)
		}
	}
	return pressed
}
