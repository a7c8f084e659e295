package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"opsflow/internal/backend"
	"opsflow/internal/state"
	"opsflow/models"
)

// testBackend serves the polled endpoints and lets individual paths be
// switched to failure mid-test.
type testBackend struct {
	srv     *httptest.Server
	failing atomic.Value // map[string]bool
	hits    atomic.Int64
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	tb := &testBackend{}
	tb.failing.Store(map[string]bool{})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		tb.hits.Add(1)
		if tb.failing.Load().(map[string]bool)[r.URL.Path] {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(tb.body(r.URL.Path))
	})

	tb.srv = httptest.NewServer(mux)
	t.Cleanup(tb.srv.Close)
	return tb
}

func (tb *testBackend) fail(paths ...string) {
	m := map[string]bool{}
	for _, p := range paths {
		m[p] = true
	}
	tb.failing.Store(m)
}

func (tb *testBackend) body(path string) interface{} {
	switch path {
	case "/api/ops/health":
		return map[string]interface{}{"service_status": "running", "last_heartbeat_age_sec": 5}
	case "/api/ops/evergreen/status":
		return map[string]interface{}{"status": "running", "grade": "A"}
	case "/api/ops/history":
		return map[string]interface{}{"points": []interface{}{
			map[string]interface{}{"ts": 1700000000, "value": 12.5},
		}}
	case "/api/ops/alerts":
		return map[string]interface{}{"items": []interface{}{
			map[string]interface{}{"ts": 1700000000000, "level": "warn", "message": "queue depth high"},
		}}
	case "/api/ops/logs/stdout":
		return map[string]interface{}{"lines": []interface{}{"out-1", "out-2"}}
	case "/api/ops/logs/stderr":
		return map[string]interface{}{"lines": []interface{}{"err-1"}}
	case "/api/state/engine":
		return map[string]interface{}{"kill_switch_on": true, "risk_type": "drawdown", "uptime_sec": 300}
	case "/api/state/positions":
		return map[string]interface{}{"positions": []interface{}{
			map[string]interface{}{"symbol": "BTCUSDT", "qty": 0.5, "mark_price": 50000.0},
		}}
	case "/api/history/risks":
		return map[string]interface{}{"items": []interface{}{
			map[string]interface{}{"ts": 1700000000000, "event_id": "r-1", "level": "WARN", "reason": "drawdown"},
		}}
	default:
		return map[string]interface{}{}
	}
}

func newTestPoller(tb *testBackend, store *state.Store) *Poller {
	client := backend.NewClient(backend.Config{BaseURL: tb.srv.URL, Timeout: 2 * time.Second})
	return NewPoller(Config{Interval: time.Hour}, client, store)
}

func TestRunCyclePopulatesStore(t *testing.T) {
	tb := newTestBackend(t)
	store := state.NewStore(0, 0, 0)

	newTestPoller(tb, store).RunCycle(context.Background())

	health := store.Health()
	if health == nil || health.ServiceStatus != "running" {
		t.Fatalf("expected running health, got %+v", health)
	}
	if store.DataMode() != models.ModeLive {
		t.Fatalf("expected LIVE mode, got %s", store.DataMode())
	}
	if got := store.History(); len(got) != 1 || got[0].TsMs != 1700000000000 {
		t.Fatalf("unexpected history %+v", got)
	}
	if got := store.Alerts(); len(got) != 1 || got[0].Level != "warn" {
		t.Fatalf("unexpected alerts %+v", got)
	}
	if tail := store.LogTail(); len(tail.Stdout) != 2 || len(tail.Stderr) != 1 {
		t.Fatalf("unexpected log tail %+v", tail)
	}
	engine := store.EngineState()
	if engine == nil || !engine.KillSwitchOn || engine.RiskType != "drawdown" {
		t.Fatalf("unexpected engine state %+v", engine)
	}
	if got := store.Positions(); len(got) != 1 || got[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected positions %+v", got)
	}
	if got := store.RiskEvents(); len(got) != 1 || got[0].EventID != "r-1" {
		t.Fatalf("unexpected risk events %+v", got)
	}
}

func TestFailedEndpointLeavesSectionUntouched(t *testing.T) {
	tb := newTestBackend(t)
	store := state.NewStore(0, 0, 0)
	p := newTestPoller(tb, store)

	p.RunCycle(context.Background())
	if store.Health() == nil {
		t.Fatal("expected health after first cycle")
	}

	tb.fail("/api/ops/health", "/api/ops/evergreen/status", "/api/state/positions")
	p.RunCycle(context.Background())

	// failed sections keep the previous cycle's data
	health := store.Health()
	if health == nil || health.ServiceStatus != "running" {
		t.Fatalf("expected retained health, got %+v", health)
	}
	if got := store.Positions(); len(got) != 1 {
		t.Fatalf("expected retained positions, got %+v", got)
	}
	// unaffected sections still refresh
	if got := store.Alerts(); len(got) != 1 {
		t.Fatalf("expected alerts to keep applying, got %+v", got)
	}
}

func TestHealthMergesStatusWhenHealthDown(t *testing.T) {
	tb := newTestBackend(t)
	store := state.NewStore(0, 0, 0)
	p := newTestPoller(tb, store)

	tb.fail("/api/ops/health")
	p.RunCycle(context.Background())

	health := store.Health()
	if health == nil {
		t.Fatal("expected health derived from evergreen status alone")
	}
	if health.ServiceStatus != "running" || health.Grade != "A" {
		t.Fatalf("unexpected merged health %+v", health)
	}
}

func TestPollerStartStop(t *testing.T) {
	tb := newTestBackend(t)
	store := state.NewStore(0, 0, 0)
	client := backend.NewClient(backend.Config{BaseURL: tb.srv.URL, Timeout: 2 * time.Second})
	p := NewPoller(Config{Interval: 20 * time.Millisecond}, client, store)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for tb.hits.Load() < 16 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if tb.hits.Load() < 16 {
		t.Fatalf("expected repeated poll cycles, saw %d hits", tb.hits.Load())
	}

	p.Stop()
	settled := tb.hits.Load()
	time.Sleep(60 * time.Millisecond)
	if tb.hits.Load() != settled {
		t.Fatalf("expected no polls after stop, hits went %d -> %d", settled, tb.hits.Load())
	}
}

func TestStalePollDoesNotApplyAfterCancel(t *testing.T) {
	tb := newTestBackend(t)
	store := state.NewStore(0, 0, 0)
	p := newTestPoller(tb, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.RunCycle(ctx)

	if store.Health() != nil {
		t.Fatalf("expected no health applied after cancel, got %+v", store.Health())
	}
}
