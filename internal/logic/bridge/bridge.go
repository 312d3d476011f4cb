// Package bridge turns controller snapshots into mount commands.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/PadGo/internal/debug"
	"github.com/cjeanneret/PadGo/internal/hw/gamepad"
	"github.com/cjeanneret/PadGo/internal/logic/axis"
	"github.com/cjeanneret/PadGo/internal/logic/buttons"
	"github.com/cjeanneret/PadGo/internal/logic/motion"
	"github.com/cjeanneret/PadGo/internal/protocol"
)

// ErrBusy is returned by Submit while a previous code is still waiting to be sent.
var ErrBusy = errors.New("a control code is already pending")

// State is the connection state of the bridge.
type State int

const (
	Disconnected State = iota
	Idle
	Processing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Idle:
		return "connected-idle"
	case Processing:
		return "connected-processing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Disconnected, Idle, Processing} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown bridge state %q", text)
}

// Link is the connection to the mount. The bridge is its only user.
type Link interface {
	Send(p []byte) error
	Drain() ([]byte, error)
}

// Indicator shows link state and traffic. Errors are logged, never fatal.
type Indicator interface {
	SetLink(up bool) error
	Activity() error
}

const (
	DefaultSendDelay      = 10 * time.Millisecond
	DefaultPollInterval   = 5 * time.Millisecond
	DefaultRescanInterval = time.Second
)

// Config tunes the loop.
type Config struct {
	Deadzone       int16         // applied to both stick axes
	SendDelay      time.Duration // pause after each velocity frame
	PollInterval   time.Duration // pause between cycles
	MaxIndex       int           // controller indices scanned are 0..MaxIndex-1
	RescanInterval time.Duration // pause between scans when no controller answers
}

// DefaultConfig matches the factory right stick deadzone and a ~10ms cycle.
func DefaultConfig() Config {
	return Config{
		Deadzone:       axis.RightThumbDeadzone,
		SendDelay:      DefaultSendDelay,
		PollInterval:   DefaultPollInterval,
		MaxIndex:       gamepad.MaxControllers,
		RescanInterval: DefaultRescanInterval,
	}
}

func (c Config) normalize() Config {
	if c.SendDelay < 0 {
		c.SendDelay = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxIndex <= 0 {
		c.MaxIndex = gamepad.MaxControllers
	}
	if c.RescanInterval <= 0 {
		c.RescanInterval = DefaultRescanInterval
	}
	return c
}

// Status is a snapshot of the bridge for display.
type Status struct {
	State      State     `json:"state"`
	Controller string    `json:"controller"`
	Index      int       `json:"index"`
	Seq        uint32    `json:"seq"`
	Pan        int16     `json:"pan"`
	Tilt       int16     `json:"tilt"`
	Moving     bool      `json:"moving"`
	Pressed    []string  `json:"pressed"`
	Frames     uint64    `json:"frames"`
	Codes      uint64    `json:"codes"`
	Discarded  uint64    `json:"discarded"`
	LastCode   string    `json:"last_code"`
	Updated    time.Time `json:"updated"`
}

// Bridge is the polling state machine between a controller Source and the mount.
// Step, Drain, Cycle and Run must be called from a single goroutine;
// Status and Submit are safe from any goroutine.
type Bridge struct {
	link      Link
	motion    *motion.Controller
	source    gamepad.Source
	cfg       Config
	indicator Indicator
	inbound   func([]byte)

	seen        bool
	lastSeq     uint32
	lastButtons buttons.Mask

	pending chan []byte

	mu     sync.Mutex
	status Status
}

// New creates a bridge over an already connected link. indicator may be nil.
func New(link Link, source gamepad.Source, cfg Config, indicator Indicator) *Bridge {
	return &Bridge{
		link:      link,
		motion:    motion.NewController(link),
		source:    source,
		cfg:       cfg.normalize(),
		indicator: indicator,
		pending:   make(chan []byte, 1),
		status:    Status{State: Idle, Index: -1},
	}
}

// SetInboundSink registers fn to receive every chunk of bytes read from the mount.
// It must be called before Run.
func (b *Bridge) SetInboundSink(fn func([]byte)) {
	b.inbound = fn
}

// Status returns a copy of the current status.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Submit queues one control code to be sent on the next cycle.
func (b *Bridge) Submit(code []byte) error {
	if len(code) == 0 {
		return errors.New("empty control code")
	}
	select {
	case b.pending <- protocol.EncodeRawCode(code):
		debug.Verbose("Queued control code %q", code)
		return nil
	default:
		return ErrBusy
	}
}

func (b *Bridge) update(fn func(s *Status)) {
	b.mu.Lock()
	fn(&b.status)
	b.status.Updated = time.Now()
	b.mu.Unlock()
}

func (b *Bridge) setState(st State) {
	b.update(func(s *Status) { s.State = st })
}

// Step processes one snapshot. It returns false when the snapshot carries the
// sequence number already processed and was therefore skipped.
// A send failure is returned wrapped as serialport.ErrWrite by the link and the
// bridge is left Disconnected.
func (b *Bridge) Step(snap gamepad.Snapshot) (bool, error) {
	if b.seen && snap.Seq == b.lastSeq {
		b.update(func(s *Status) { s.Discarded++ })
		return false, nil
	}
	b.setState(Processing)

	v := axis.MapStick(snap.RX, snap.RY, b.cfg.Deadzone)
	if err := b.motion.SetPanTilt(v); err != nil {
		return true, b.fail(err)
	}
	b.activity()
	if b.cfg.SendDelay > 0 {
		time.Sleep(b.cfg.SendDelay)
	}

	edges := buttons.RisingEdges(b.lastButtons, snap.Buttons)
	var last string
	sent := 0
	for _, btn := range edges {
		code := protocol.EncodeButtonEvent(btn)
		if code == nil {
			continue
		}
		debug.Press(btn.String(), code)
		if err := b.link.Send(code); err != nil {
			return true, b.fail(err)
		}
		b.activity()
		last = string(code)
		sent++
	}

	b.seen = true
	b.lastSeq = snap.Seq
	b.lastButtons = snap.Buttons

	speed := b.motion.Last()
	pressed := make([]string, 0, len(buttons.Order))
	for _, btn := range buttons.Order {
		if snap.Buttons.Has(btn) {
			pressed = append(pressed, btn.String())
		}
	}
	b.update(func(s *Status) {
		s.State = Idle
		s.Seq = snap.Seq
		s.Pan, s.Tilt = speed.Pan, speed.Tilt
		s.Moving = !speed.IsZero()
		s.Pressed = pressed
		s.Frames++
		s.Codes += uint64(sent)
		if last != "" {
			s.LastCode = last
		}
	})
	return true, nil
}

// flush sends a code handed over by Submit, if any.
func (b *Bridge) flush() error {
	select {
	case code := <-b.pending:
		debug.Live("Sending control code %q", code)
		if err := b.link.Send(code); err != nil {
			return b.fail(err)
		}
		b.activity()
		b.update(func(s *Status) {
			s.Codes++
			s.LastCode = string(code)
		})
	default:
	}
	return nil
}

// Drain forwards whatever the mount sent since the last call to the log
// and the inbound sink. The bytes are not interpreted.
func (b *Bridge) Drain() error {
	data, err := b.link.Drain()
	if len(data) > 0 {
		debug.Inbound(data)
		if b.inbound != nil {
			b.inbound(data)
		}
	}
	if err != nil {
		return b.fail(fmt.Errorf("drain: %w", err))
	}
	return nil
}

// Cycle runs one loop iteration against the controller at index:
// drain inbound bytes, poll, process the snapshot, then send any submitted code.
// The error wraps gamepad.ErrNotConnected when the controller is gone.
func (b *Bridge) Cycle(index int) error {
	if err := b.Drain(); err != nil {
		return err
	}
	snap, err := b.source.Poll(index)
	if err != nil {
		return err
	}
	if _, err := b.Step(snap); err != nil {
		return err
	}
	return b.flush()
}

// Run scans for a controller and drives the mount from it until ctx is done
// or the link fails. On cancellation the mount is told to stop and Run
// returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	b.setLink(true)
	defer b.setLink(false)

	for {
		index, snap, err := b.scan(ctx)
		if err != nil {
			return b.stop(err)
		}

		err = b.session(ctx, index, snap)
		if !errors.Is(err, gamepad.ErrNotConnected) {
			return b.stop(err)
		}

		debug.Info("Controller %d lost: %v", index, err)
		if err := b.motion.Stop(); err != nil {
			return b.fail(err)
		}
		b.update(func(s *Status) {
			s.Controller = ""
			s.Index = -1
			s.Pan, s.Tilt = 0, 0
			s.Moving = false
			s.Pressed = nil
		})
	}
}

// scan polls indices 0..MaxIndex-1 until one answers.
func (b *Bridge) scan(ctx context.Context) (int, gamepad.Snapshot, error) {
	first := true
	for {
		for i := 0; i < b.cfg.MaxIndex; i++ {
			snap, err := b.source.Poll(i)
			if err == nil {
				name := b.source.Name(i)
				debug.Info("Controller %d connected: %s", i, name)
				b.update(func(s *Status) {
					s.Controller = name
					s.Index = i
				})
				return i, snap, nil
			}
			if !errors.Is(err, gamepad.ErrNotConnected) {
				return 0, gamepad.Snapshot{}, err
			}
			if first {
				debug.Info("Controller %d: not connected", i)
			} else {
				debug.Trace("Controller %d: not connected", i)
			}
		}
		first = false

		select {
		case <-ctx.Done():
			return 0, gamepad.Snapshot{}, ctx.Err()
		case <-time.After(b.cfg.RescanInterval):
		}
	}
}

// session drives the mount from the controller at index, starting with snap.
func (b *Bridge) session(ctx context.Context, index int, snap gamepad.Snapshot) error {
	b.seen = false
	b.lastButtons = 0

	if _, err := b.Step(snap); err != nil {
		return err
	}
	if err := b.flush(); err != nil {
		return err
	}

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := b.Cycle(index); err != nil {
			return err
		}
	}
}

// stop ends Run. Cancellation halts the mount and is not an error.
func (b *Bridge) stop(err error) error {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		b.setState(Disconnected)
		return err
	}
	debug.Info("Stopping: sending zero velocity")
	if err := b.motion.Stop(); err != nil {
		return b.fail(err)
	}
	b.update(func(s *Status) {
		s.State = Disconnected
		s.Pan, s.Tilt = 0, 0
		s.Moving = false
	})
	return nil
}

func (b *Bridge) fail(err error) error {
	debug.Error(err)
	b.setState(Disconnected)
	return err
}

func (b *Bridge) activity() {
	if b.indicator == nil {
		return
	}
	if err := b.indicator.Activity(); err != nil {
		debug.Error(fmt.Errorf("indicator: %w", err))
	}
}

func (b *Bridge) setLink(up bool) {
	if b.indicator == nil {
		return
	}
	if err := b.indicator.SetLink(up); err != nil {
		debug.Error(fmt.Errorf("indicator: %w", err))
	}
}
