// Package serialport owns the serial connection to the mount controller.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/PadGo/internal/debug"
)

var (
	// ErrConnect means the port could not be opened within the retry budget.
	ErrConnect = errors.New("serial connect failed")
	// ErrWrite means a write failed; the link is closed afterwards.
	ErrWrite = errors.New("serial write failed")
	// ErrClosed is returned when using a link after Close.
	ErrClosed = errors.New("serial link closed")
)

// Retry bounds connection attempts.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry tries five times, one second apart.
func DefaultRetry() Retry {
	return Retry{Attempts: 5, Backoff: time.Second}
}

// readIdle is the pause after a read that returned nothing.
const readIdle = 5 * time.Millisecond

// inboundDepth is how many chunks the reader may queue before it waits for Drain.
const inboundDepth = 64

// Link is an open connection to the mount. A nil port means closed.
// Send, Drain and Close must be called from one goroutine; a background reader
// owns port.Read so Drain never waits for the port's read timeout.
type Link struct {
	port Port
	path string

	inbound chan []byte
	readErr chan error
	done    chan struct{}
	stopped chan struct{}
}

func newLink(port Port, path string) *Link {
	l := &Link{
		port:    port,
		path:    path,
		inbound: make(chan []byte, inboundDepth),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.read(port)
	return l
}

// read forwards inbound bytes until the link is closed or a read fails.
func (l *Link) read(port Port) {
	defer close(l.stopped)
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			select {
			case l.inbound <- append([]byte(nil), buf[:n]...):
			case <-l.done:
				return
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			select {
			case <-l.done:
			case l.readErr <- err:
			}
			return
		}
		if n == 0 {
			select {
			case <-l.done:
				return
			case <-time.After(readIdle):
			}
		}
	}
}

// Connect opens path with open, retrying up to retry.Attempts times.
func Connect(ctx context.Context, open Opener, path string, opts Options, retry Retry) (*Link, error) {
	attempts := retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		debug.Info("Opening serial port %s (attempt %d/%d)", path, i, attempts)
		port, err := open(path, opts)
		if err == nil {
			debug.Info("Serial port %s open", path)
			return newLink(port, path), nil
		}
		lastErr = err
		debug.Error(fmt.Errorf("open %s: %w", path, err))

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrConnect, path, ctx.Err())
		case <-time.After(retry.Backoff):
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnect, path, attempts, lastErr)
}

// Path returns the port the link was opened on.
func (l *Link) Path() string {
	return l.path
}

// isOpen reports whether the link can still be written to.
func (l *Link) isOpen() bool {
	return l.port != nil
}

// Send writes one message. Any failure, including a short write, closes the link:
// the caller must not keep commanding the mount over a broken line.
func (l *Link) Send(p []byte) error {
	if l.port == nil {
		return fmt.Errorf("%w: %w", ErrWrite, ErrClosed)
	}
	debug.Wire(p)

	n, err := l.port.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("%w: %s: %w", ErrWrite, l.path, err)
	}
	return nil
}

// Drain returns the bytes the mount has sent since the last call.
// It does not block: bytes still in flight are returned by a later call.
func (l *Link) Drain() ([]byte, error) {
	if l.port == nil {
		return nil, ErrClosed
	}

	var data []byte
	for {
		select {
		case chunk := <-l.inbound:
			data = append(data, chunk...)
			continue
		default:
		}
		select {
		case err := <-l.readErr:
			return data, fmt.Errorf("serial read %s: %w", l.path, err)
		default:
			return data, nil
		}
	}
}

// Close releases the port and stops the reader. It is safe to call more than once.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	port := l.port
	l.port = nil
	debug.Info("Closing serial port %s", l.path)
	close(l.done)
	err := port.Close()
	<-l.stopped
	return err
}
