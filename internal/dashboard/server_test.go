package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"opsflow/internal/backend"
	"opsflow/internal/poller"
	"opsflow/internal/session"
	"opsflow/internal/state"
	"opsflow/reader"
)

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{
		frames: make(chan []byte, len(frames)+1),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.frames <- []byte(f)
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.frames:
		return 1, frame, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (reader.Conn, error) {
	return d.conn, nil
}

func newTestServer(t *testing.T, frames ...string) (*Server, *session.Session) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/control/kill-switch", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"audit_id": "audit-7"})
	})
	mux.HandleFunc("/api/dashboard/traces", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{
			map[string]interface{}{"trace_id": "tr-1", "event_type": "order_submitted", "ts": 1700000000000},
		}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	stub := httptest.NewServer(mux)
	t.Cleanup(stub.Close)

	client := backend.NewClient(backend.Config{BaseURL: stub.URL, Timeout: time.Second})
	store := state.NewStore(0, 0, 0)
	transport := reader.NewTransport(reader.Config{
		URL:          "ws://stub/ws/events",
		BackoffFloor: 5 * time.Millisecond,
	}, &fakeDialer{conn: newFakeConn(frames...)})
	p := poller.NewPoller(poller.Config{Interval: time.Hour}, client, store)
	sess := session.NewSession(session.Config{}, store, transport, p, client, nil)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("session start failed: %v", err)
	}
	t.Cleanup(sess.Stop)

	srv, err := NewServer(Config{Enabled: true, ListenAddr: ":0"}, sess)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, sess
}

func getJSON(t *testing.T, router http.Handler, path string) map[string]interface{} {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s returned %d: %s", path, rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return body
}

func TestOverviewReflectsStore(t *testing.T) {
	srv, sess := newTestServer(t,
		`{"event_type":"engine_state","ts":1700000000000,"data":{"kill_switch_on":true}}`,
	)
	router := srv.buildRouter()

	deadline := time.Now().Add(time.Second)
	for sess.Store().EngineState() == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	body := getJSON(t, router, "/api/overview")
	if body["data_mode"] != "DOWN" {
		t.Errorf("expected DOWN mode with no health, got %v", body["data_mode"])
	}
	engine, ok := body["engine"].(map[string]interface{})
	if !ok || engine["kill_switch_on"] != true {
		t.Errorf("unexpected engine section %v", body["engine"])
	}
}

func TestPositionsAndEventsEndpoints(t *testing.T) {
	srv, sess := newTestServer(t,
		`{"event_type":"position_snapshot","ts":1700000000000,"data":{"symbol":"BTCUSDT","qty":1}}`,
	)
	router := srv.buildRouter()

	deadline := time.Now().Add(time.Second)
	for len(sess.Store().Positions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	body := getJSON(t, router, "/api/positions")
	positions, ok := body["positions"].([]interface{})
	if !ok || len(positions) != 1 {
		t.Fatalf("unexpected positions %v", body["positions"])
	}

	body = getJSON(t, router, "/api/events")
	events, ok := body["events"].([]interface{})
	if !ok || len(events) != 1 {
		t.Fatalf("unexpected events %v", body["events"])
	}
}

func TestTraceProxyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.buildRouter()

	body := getJSON(t, router, "/api/traces?limit=5")
	traces, ok := body["traces"].([]interface{})
	if !ok || len(traces) != 1 {
		t.Fatalf("unexpected traces %v", body["traces"])
	}
}

func TestTraceTimelineNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.buildRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/traces/tr-missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing trace, got %d", rec.Code)
	}
}

func TestKillSwitchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.buildRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/kill-switch", strings.NewReader(`{"is_on":true,"reason":"halt"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["audit_id"] != "audit-7" {
		t.Fatalf("expected audit id, got %v", body)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/kill-switch", strings.NewReader("{bad"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", rec.Code)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":          ":8080",
		"8080":      ":8080",
		":9000":     ":9000",
		"host:9000": "host:9000",
	}
	for in, want := range cases {
		if got := normalizeAddress(in); got != want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisabledDashboardReturnsNilServer(t *testing.T) {
	srv, err := NewServer(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srv != nil {
		t.Fatal("expected nil server when disabled")
	}
}
