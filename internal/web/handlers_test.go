package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/PadGo/internal/logic/bridge"
)

// fakeController records submitted codes.
type fakeController struct {
	mu        sync.Mutex
	status    bridge.Status
	submitted []string
	err       error
}

func (f *fakeController) Status() bridge.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Submit(code []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, string(code))
	return nil
}

// ---------- Handler helpers ----------

func newTestHandlers(ctl Controller) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(NewStatusBroadcaster(), ctl, staticFS)
}

func postCommand(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleCommand(w, req)
	return w
}

// ---------- HandleCommand ----------

func TestHandleCommand_ValidPost(t *testing.T) {
	ctl := &fakeController{}
	h := newTestHandlers(ctl)

	w := postCommand(h, `{"name":"execute"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "queued" || resp["code"] != ";1" {
		t.Errorf("response = %v, want queued ;1", resp)
	}
	if len(ctl.submitted) != 1 || ctl.submitted[0] != ";1" {
		t.Errorf("submitted = %q, want [\";1\"]", ctl.submitted)
	}
}

func TestHandleCommand_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(&fakeController{})
	req := httptest.NewRequest(http.MethodGet, "/command", nil)
	w := httptest.NewRecorder()

	h.HandleCommand(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleCommand_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid_json", "not json"},
		{"unknown_command", `{"name":"self-destruct"}`},
		{"empty_name", `{}`},
		{"oversized_body", `{"name":"` + strings.Repeat("x", 2*MaxBodyBytes) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := &fakeController{}
			w := postCommand(newTestHandlers(ctl), tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(ctl.submitted) != 0 {
				t.Errorf("nothing should be submitted, got %q", ctl.submitted)
			}
		})
	}
}

func TestHandleCommand_NilController(t *testing.T) {
	w := postCommand(newTestHandlers(nil), `{"name":"save"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleCommand_Busy(t *testing.T) {
	ctl := &fakeController{err: bridge.ErrBusy}
	w := postCommand(newTestHandlers(ctl), `{"name":"save"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleCommand_SubmitError(t *testing.T) {
	ctl := &fakeController{err: errors.New("boom")}
	w := postCommand(newTestHandlers(ctl), `{"name":"save"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleCommand_RateLimiting(t *testing.T) {
	ctl := &fakeController{}
	h := newTestHandlers(ctl)

	if w := postCommand(h, `{"name":"save"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := postCommand(h, `{"name":"clear"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	time.Sleep(CommandInterval + 20*time.Millisecond)
	if w := postCommand(h, `{"name":"clear"}`); w.Code != http.StatusAccepted {
		t.Errorf("after interval: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if len(ctl.submitted) != 2 {
		t.Errorf("submitted = %q, want 2 codes", ctl.submitted)
	}
}

func TestHandleCommand_BusyDoesNotConsumeRateLimit(t *testing.T) {
	ctl := &fakeController{err: bridge.ErrBusy}
	h := newTestHandlers(ctl)

	postCommand(h, `{"name":"save"}`)
	ctl.mu.Lock()
	ctl.err = nil
	ctl.mu.Unlock()

	if w := postCommand(h, `{"name":"save"}`); w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

// ---------- HandleStatus ----------

func TestHandleStatus(t *testing.T) {
	ctl := &fakeController{status: bridge.Status{
		State:      bridge.Idle,
		Controller: "Xbox Wireless Controller",
		Index:      0,
		Pan:        -120,
		Pressed:    []string{"A"},
	}}
	h := newTestHandlers(ctl)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	h.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["state"] != "connected-idle" {
		t.Errorf("state = %v, want connected-idle", got["state"])
	}
	if got["controller"] != "Xbox Wireless Controller" {
		t.Errorf("controller = %v", got["controller"])
	}
	if got["pan"] != float64(-120) {
		t.Errorf("pan = %v, want -120", got["pan"])
	}
}

func TestHandleStatus_NilController(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- HandleCodes ----------

func TestHandleCodes(t *testing.T) {
	h := newTestHandlers(nil)
	w := httptest.NewRecorder()
	h.HandleCodes(w, httptest.NewRequest(http.MethodGet, "/codes", nil))

	var codes []CodeInfo
	if err := json.NewDecoder(w.Body).Decode(&codes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(codes) != 14 {
		t.Errorf("got %d codes, want 14", len(codes))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1].Name >= codes[i].Name {
			t.Errorf("codes not sorted: %q before %q", codes[i-1].Name, codes[i].Name)
		}
	}
	found := false
	for _, c := range codes {
		if c.Name == "save" && c.Code == "#" {
			found = true
		}
	}
	if !found {
		t.Error("save -> # missing from codes")
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- Server routes ----------

func TestServer_Routes(t *testing.T) {
	srv := NewServer(":0", NewStatusBroadcaster(), &fakeController{})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/static/app.js", http.StatusOK},
		{http.MethodGet, "/status", http.StatusOK},
		{http.MethodGet, "/codes", http.StatusOK},
		{http.MethodGet, "/command", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestServer_StatusStream(t *testing.T) {
	b := NewStatusBroadcaster()
	srv := NewServer(":0", b, nil)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /status/stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	b.BroadcastInbound([]byte("Report: 3 positions\r\n"))

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var evt StatusEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Level != "mount" || evt.Msg != "Report: 3 positions" {
		t.Errorf("event = %+v", evt)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewStatusBroadcaster(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_RunPublishesStatus(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	ctl := &fakeController{status: bridge.Status{State: bridge.Processing, Tilt: 15, Updated: time.Now()}}
	srv := NewServer("127.0.0.1:0", b, ctl)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for {
		evt := nextEvent(t, ch)
		if evt.Level != LevelStatus {
			continue
		}
		if evt.Status == nil || evt.Status.State != bridge.Processing || evt.Status.Tilt != 15 {
			t.Errorf("status event = %+v", evt)
		}
		return
	}
}
