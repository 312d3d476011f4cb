package indicator

import (
	"sync"

	"github.com/cjeanneret/PadGo/internal/debug"
	"github.com/cjeanneret/PadGo/internal/hw/gpio"
)

// Disabled as a pin number leaves that LED out.
const Disabled = -1

// LEDs drives two status lights wired to GPIO outputs (active HIGH):
// - LINK: on while the serial link to the mount is up
// - ACTIVITY: toggles on every message sent
type LEDs struct {
	mu          sync.Mutex
	gpio        gpio.Driver
	linkPin     int
	activityPin int
	activity    gpio.Level
}

// NewLEDs configures the pins as outputs and switches both lights off.
// Use Disabled for a light that is not fitted.
func NewLEDs(g gpio.Driver, linkPin, activityPin int) (*LEDs, error) {
	l := &LEDs{gpio: g, linkPin: linkPin, activityPin: activityPin}
	for _, pin := range []int{linkPin, activityPin} {
		if pin == Disabled {
			continue
		}
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, err
		}
		if err := g.WritePin(pin, gpio.Low); err != nil {
			return nil, err
		}
	}
	debug.Verbose("Indicator: link=%d activity=%d", linkPin, activityPin)
	return l, nil
}

// SetLink switches the LINK light.
func (l *LEDs) SetLink(up bool) error {
	if l.linkPin == Disabled {
		return nil
	}
	return l.gpio.WritePin(l.linkPin, gpio.Level(up))
}

// Activity flips the ACTIVITY light.
func (l *LEDs) Activity() error {
	if l.activityPin == Disabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activity = !l.activity
	return l.gpio.WritePin(l.activityPin, l.activity)
}

// Off switches both lights off.
func (l *LEDs) Off() error {
	l.mu.Lock()
	l.activity = gpio.Low
	l.mu.Unlock()

	var firstErr error
	for _, pin := range []int{l.linkPin, l.activityPin} {
		if pin == Disabled {
			continue
		}
		if err := l.gpio.WritePin(pin, gpio.Low); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
