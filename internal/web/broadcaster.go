package web

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/PadGo/internal/logic/bridge"
)

// Event levels.
const (
	LevelInfo   = "info"
	LevelMount  = "mount"  // bytes received from the mount
	LevelStatus = "status" // bridge status change, Status is set
)

// clientDepth is how many events a slow SSE client may lag behind before events are dropped.
const clientDepth = 64

// StatusEvent is one SSE message: a log line, mount output or a status change.
type StatusEvent struct {
	Time   string         `json:"t"`
	Level  string         `json:"l,omitempty"`
	Msg    string         `json:"msg"`
	Status *bridge.Status `json:"status,omitempty"`
}

// StatusBroadcaster fans events out to every SSE client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{clients: make(map[chan string]struct{})}
}

// Subscribe registers a client. The returned func unregisters it and closes the channel.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, clientDepth)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
}

// publish encodes evt once and hands it to every client without blocking.
func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default: // client too slow
		}
	}
}

// Broadcast sends a text message with the given level.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg sends an info message.
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast(LevelInfo, msg)
}

// BroadcastInbound relays bytes received from the mount. It fits bridge.SetInboundSink.
func (b *StatusBroadcaster) BroadcastInbound(p []byte) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		b.Broadcast(LevelMount, msg)
	}
}

// BroadcastStatus sends the bridge status with a one-line summary.
func (b *StatusBroadcaster) BroadcastStatus(st bridge.Status) {
	msg := fmt.Sprintf("%s pan=%d tilt=%d", st.State, st.Pan, st.Tilt)
	b.publish(StatusEvent{Level: LevelStatus, Msg: msg, Status: &st})
}

// WatchStatus publishes ctl's status every time it changes, checking each interval,
// until ctx is done.
func (b *StatusBroadcaster) WatchStatus(ctx context.Context, ctl Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	for {
		st := ctl.Status()
		if !st.Updated.Equal(last) {
			last = st.Updated
			b.BroadcastStatus(st)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// BroadcastWriter returns an io.Writer that turns each write into an info event.
// Used to tee the debug log to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
