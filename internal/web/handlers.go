package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cjeanneret/PadGo/internal/logic/bridge"
	"github.com/cjeanneret/PadGo/internal/protocol"
)

// MaxBodyBytes bounds the size of a request body.
const MaxBodyBytes = 1 << 10

// CommandInterval is the minimum time between two accepted commands.
const CommandInterval = 250 * time.Millisecond

// Controller is the part of the bridge the web UI drives.
type Controller interface {
	Status() bridge.Status
	Submit(code []byte) error
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Name string `json:"name"`
}

// CodeInfo describes one named control code.
type CodeInfo struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Controller  Controller
	staticFS    fs.FS

	mu         sync.Mutex
	lastAccept time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If ctl is nil, /status and /command return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, ctl Controller, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Controller:  ctl,
		staticFS:    staticFS,
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus returns the bridge status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Controller == nil {
		http.Error(w, "bridge not running", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Controller.Status())
}

// HandleCodes lists the named control codes, sorted by name.
func (h *Handlers) HandleCodes(w http.ResponseWriter, r *http.Request) {
	codes := make([]CodeInfo, 0, len(protocol.ControlCodes))
	for name, code := range protocol.ControlCodes {
		codes = append(codes, CodeInfo{Name: name, Code: code})
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Name < codes[j].Name })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(codes)
}

// HandleCommand handles POST /command to send one named control code.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	code, ok := protocol.ControlCodes[req.Name]
	if !ok {
		http.Error(w, "unknown command: "+req.Name, http.StatusBadRequest)
		return
	}

	if h.Controller == nil {
		http.Error(w, "bridge not running", http.StatusServiceUnavailable)
		return
	}

	h.mu.Lock()
	if !h.lastAccept.IsZero() && time.Since(h.lastAccept) < CommandInterval {
		h.mu.Unlock()
		http.Error(w, "too many commands", http.StatusTooManyRequests)
		return
	}
	err := h.Controller.Submit([]byte(code))
	if err == nil {
		h.lastAccept = time.Now()
	}
	h.mu.Unlock()

	switch {
	case errors.Is(err, bridge.ErrBusy):
		http.Error(w, "a command is already pending", http.StatusConflict)
		return
	case err != nil:
		log.Printf("command %s failed: %v", req.Name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Broadcaster.BroadcastMsg("Command " + req.Name + " queued")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "code": code})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
