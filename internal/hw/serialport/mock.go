package serialport

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/cjeanneret/PadGo/internal/debug"
	"github.com/cjeanneret/PadGo/internal/protocol"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort implements Port with configurable behaviour for testing.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data returned by Read calls.
	ReadBuffer *bytes.Buffer

	// Writes records each Write call's payload.
	Writes [][]byte

	// WriteError is returned by the next Write call if set.
	WriteError error

	// ShortWrite makes the next Write report one byte less than requested.
	ShortWrite bool

	// ReadError is returned by the next Read call if set.
	ReadError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	return &TestablePort{ReadBuffer: bytes.NewBuffer(nil)}
}

func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errPortClosed
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	n := len(p)
	if t.ShortWrite && n > 0 {
		t.ShortWrite = false
		n--
	}
	t.Writes = append(t.Writes, append([]byte(nil), p[:n]...))
	return n, nil
}

func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return t.CloseError
}

// AddReadData queues data for subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// SetReadError makes the next Read fail with err.
func (t *TestablePort) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
}

// IsClosed reports whether Close was called.
func (t *TestablePort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// Written returns a copy of every message written so far.
func (t *TestablePort) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.Writes))
	copy(out, t.Writes)
	return out
}

// MockOpener hands out a fixed port, failing the first calls with Errs.
type MockOpener struct {
	mu sync.Mutex

	// Port is returned once Errs is exhausted.
	Port Port

	// Errs are returned by successive Open calls before Port is.
	Errs []error

	// Calls records the path of every Open call.
	Calls []string
}

// Open implements Opener.
func (m *MockOpener) Open(path string, opts Options) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, path)
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return nil, err
	}
	return m.Port, nil
}

// LogPort is a Port with no device behind it: writes are decoded and logged,
// reads return nothing. Used to run the bridge without a mount attached.
type LogPort struct{}

// OpenLogPort is an Opener returning a LogPort.
func OpenLogPort(path string, opts Options) (Port, error) {
	debug.Info("Using MOCK serial port in place of %s (development mode)", path)
	return LogPort{}, nil
}

func (LogPort) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (LogPort) Write(p []byte) (int, error) {
	debug.Verbose("Mock mount received %s", protocol.Describe(p))
	return len(p), nil
}

func (LogPort) Close() error {
	debug.Trace("Mock serial port closed")
	return nil
}
