package motion

import (
	"github.com/cjeanneret/PadGo/internal/debug"
	"github.com/cjeanneret/PadGo/internal/logic/axis"
	"github.com/cjeanneret/PadGo/internal/protocol"
)

// Sender writes one complete message to the mount.
type Sender interface {
	Send(p []byte) error
}

// Controller drives pan/tilt speed on the mount firmware.
// It's the layer between the bridge loop (sticks, buttons) and the
// wire protocol.
type Controller struct {
	link Sender
	last axis.Velocity
}

func NewController(link Sender) *Controller {
	return &Controller{link: link}
}

// SetPanTilt sets both speeds in a single velocity frame.
// It always sends, even when nothing changed: the firmware keeps moving at the
// last speed it received until told otherwise.
func (c *Controller) SetPanTilt(v axis.Velocity) error {
	frame := protocol.EncodeVelocity(v.Pan, v.Tilt)
	debug.Verbose("Motion: pan=%d tilt=%d (0x%08x)", v.Pan, v.Tilt, v.Packed())
	if err := c.link.Send(frame); err != nil {
		return err
	}
	c.last = v
	return nil
}

// Stop halts both axes.
func (c *Controller) Stop() error {
	return c.SetPanTilt(axis.Velocity{})
}

// Last returns the last speed pair acknowledged by the link.
func (c *Controller) Last() axis.Velocity {
	return c.last
}
