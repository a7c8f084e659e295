package models

import "testing"

func TestParseEventKind(t *testing.T) {
	cases := []struct {
		raw  string
		want EventKind
	}{
		{"engine_state", KindEngineState},
		{"RISK_TRIGGERED", KindRiskTriggered},
		{" Level_Downgraded ", KindLevelDowngraded},
		{"route_rejected_hard", KindRouteRejectedHard},
		{"order_fill", KindHeartbeat},
		{"", KindHeartbeat},
	}
	for _, c := range cases {
		if got := ParseEventKind(c.raw); got != c.want {
			t.Fatalf("ParseEventKind(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestIsAuditKind(t *testing.T) {
	if KindEngineState.IsAuditKind() {
		t.Fatalf("engine_state should not be an audit kind")
	}
	if !KindRouteSplit.IsAuditKind() {
		t.Fatalf("route_split should be an audit kind")
	}
	if !KindAuditLog.IsAuditKind() {
		t.Fatalf("audit_log should be an audit kind")
	}
}

func TestTraceOrDefault(t *testing.T) {
	e := Event{Kind: KindHeartbeat}
	if got := e.TraceOrDefault(); got != "no-trace" {
		t.Fatalf("expected no-trace placeholder, got %q", got)
	}
	e.TraceID = "t-1"
	if got := e.TraceOrDefault(); got != "t-1" {
		t.Fatalf("expected t-1, got %q", got)
	}
}

func TestDeriveDataMode(t *testing.T) {
	live := &HealthSnapshot{ServiceStatus: "running", HeartbeatAgeSec: 10, HeartbeatAgeKnown: true}
	if got := DeriveDataMode(live); got != ModeLive {
		t.Fatalf("age 10s running: got %q, want LIVE", got)
	}

	stale := &HealthSnapshot{ServiceStatus: "running", HeartbeatAgeSec: 90, HeartbeatAgeKnown: true}
	if got := DeriveDataMode(stale); got != ModeStale {
		t.Fatalf("age 90s: got %q, want STALE", got)
	}

	down := &HealthSnapshot{ServiceStatus: "running", HeartbeatAgeSec: 500, HeartbeatAgeKnown: true}
	if got := DeriveDataMode(down); got != ModeDown {
		t.Fatalf("age 500s: got %q, want DOWN", got)
	}

	if got := DeriveDataMode(nil); got != ModeDown {
		t.Fatalf("missing snapshot: got %q, want DOWN", got)
	}

	unknownAge := &HealthSnapshot{ServiceStatus: "running"}
	if got := DeriveDataMode(unknownAge); got != ModeDown {
		t.Fatalf("unknown age: got %q, want DOWN", got)
	}

	// LIVE requires the service to actually report running.
	stopped := &HealthSnapshot{ServiceStatus: "stopped", HeartbeatAgeSec: 10, HeartbeatAgeKnown: true}
	if got := DeriveDataMode(stopped); got != ModeStale {
		t.Fatalf("age 10s stopped: got %q, want STALE", got)
	}
}
