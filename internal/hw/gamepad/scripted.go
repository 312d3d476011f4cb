package gamepad

import (
	"fmt"
	"sync"
)

// ScriptedSource replays a fixed list of snapshots from a single index.
// Once the list is exhausted the last snapshot repeats, like a controller
// nobody touches, unless Disconnect is set.
type ScriptedSource struct {
	mu sync.Mutex

	// Index is where the controller answers; other indices are not connected.
	Index int

	// Snapshots are returned in order by successive polls.
	Snapshots []Snapshot

	// Disconnect reports ErrNotConnected once Snapshots is exhausted.
	Disconnect bool

	// Polls counts Poll calls on Index.
	Polls int

	pos int
}

// NewScriptedSource creates a source answering on index 0.
func NewScriptedSource(snaps ...Snapshot) *ScriptedSource {
	return &ScriptedSource{Snapshots: snaps}
}

// Poll implements Source.
func (s *ScriptedSource) Poll(index int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index != s.Index || len(s.Snapshots) == 0 {
		return Snapshot{}, fmt.Errorf("%w: index %d", ErrNotConnected, index)
	}
	s.Polls++
	if s.pos >= len(s.Snapshots) {
		if s.Disconnect {
			return Snapshot{}, fmt.Errorf("%w: index %d", ErrNotConnected, index)
		}
		return s.Snapshots[len(s.Snapshots)-1], nil
	}
	snap := s.Snapshots[s.pos]
	s.pos++
	return snap, nil
}

// Name implements Source.
func (s *ScriptedSource) Name(index int) string {
	if index == s.Index {
		return "scripted controller"
	}
	return ""
}

// Close implements Source.
func (s *ScriptedSource) Close() error {
	return nil
}
