package processor

import (
	"encoding/json"
	"testing"
)

func mustJSON(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	return v
}

func TestMergeHealthPrecedence(t *testing.T) {
	health := mustJSON(t, `{"service_status":"Running","last_heartbeat_age_sec":12,"next_milestone":"72h","next_milestone_eta":5400}`)
	status := mustJSON(t, `{"status":"stopped","grade":"GOLD","mission":"168H","restart_count":3,"cumulative_runtime_sec":7200}`)

	snap := MergeHealth(health, status)
	if snap.ServiceStatus != "running" {
		t.Fatalf("health body must win for status: %q", snap.ServiceStatus)
	}
	if !snap.HeartbeatAgeKnown || snap.HeartbeatAgeSec != 12 {
		t.Fatalf("age not merged: %+v", snap)
	}
	if snap.Grade != "GOLD" || snap.Mission != "168H" || snap.RestartCount != 3 {
		t.Fatalf("status fields not merged: %+v", snap)
	}
	if snap.NextMilestone != "72h" || snap.NextMilestoneEtaSec != 5400 {
		t.Fatalf("milestone fields not merged: %+v", snap)
	}
}

func TestMergeHealthStatusOnly(t *testing.T) {
	status := mustJSON(t, `{"status":"RUNNING","heartbeat_sec_ago":7}`)
	snap := MergeHealth(nil, status)
	if snap.ServiceStatus != "running" {
		t.Fatalf("status fallback: %q", snap.ServiceStatus)
	}
	if !snap.HeartbeatAgeKnown || snap.HeartbeatAgeSec != 7 {
		t.Fatalf("heartbeat_sec_ago alias not absorbed: %+v", snap)
	}
}

func TestMergeHealthEmpty(t *testing.T) {
	snap := MergeHealth(nil, nil)
	if snap.ServiceStatus != "down" {
		t.Fatalf("empty merge status: %q", snap.ServiceStatus)
	}
	if snap.HeartbeatAgeKnown {
		t.Fatalf("age must be unknown when absent")
	}
}

func TestDecodeHistorySortsAscending(t *testing.T) {
	raw := mustJSON(t, `{"points":[{"ts":30000000000,"value":3},{"ts":10000000000,"value":1},{"ts":20000000000,"value":2}]}`)
	points := DecodeHistory(raw)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].TsMs != 10000000000 || points[1].TsMs != 20000000000 || points[2].TsMs != 30000000000 {
		t.Fatalf("not sorted ascending: %+v", points)
	}
}

func TestDecodeHistoryDerivesRuntime(t *testing.T) {
	raw := mustJSON(t, `{"history":[{"ts":1700000000,"cumulative_runtime_sec":7200,"progress":42.5,"restart_count":1}]}`)
	points := DecodeHistory(raw)
	if len(points) != 1 {
		t.Fatalf("history alias not absorbed")
	}
	p := points[0]
	if p.RuntimeHours != 2 {
		t.Fatalf("runtime hours not derived: %+v", p)
	}
	if p.Value != 42.5 || p.ProgressPct != 42.5 || p.RestartCount != 1 {
		t.Fatalf("unexpected point: %+v", p)
	}
	if p.TsMs != 1700000000000 {
		t.Fatalf("seconds ts not normalized: %d", p.TsMs)
	}
}

func TestDecodeAlertsAliases(t *testing.T) {
	raw := mustJSON(t, `{"alerts":[{"ts":1700000000,"level":"warn","msg":"queue depth"},{"severity":"fatal","message":"x"}]}`)
	alerts := DecodeAlerts(raw)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Level != "warn" || alerts[0].Message != "queue depth" {
		t.Fatalf("msg alias not absorbed: %+v", alerts[0])
	}
	if alerts[1].Severity != "" {
		t.Fatalf("undocumented severity must be dropped: %+v", alerts[1])
	}
}

func TestDecodeEngineStateNonObject(t *testing.T) {
	if _, ok := DecodeEngineState(nil); ok {
		t.Fatalf("nil body must not decode")
	}
	st, ok := DecodeEngineState(mustJSON(t, `{"kill_switch_on":true,"pending_total":4}`))
	if !ok || !st.KillSwitchOn || st.PendingTotal != 4 {
		t.Fatalf("unexpected state: %+v ok=%v", st, ok)
	}
}

func TestDecodePositions(t *testing.T) {
	raw := mustJSON(t, `{"positions":[{"symbol":"ETHUSDT","qty":2,"avg_entry_price":3000,"mark_price":3100,"pnl":200}],"timestamp":1700000000}`)
	positions := DecodePositions(raw)
	if len(positions) != 1 || positions[0].Symbol != "ETHUSDT" || positions[0].MarkPrice != 3100 {
		t.Fatalf("unexpected positions: %+v", positions)
	}
}

func TestDecodeRiskHistory(t *testing.T) {
	raw := mustJSON(t, `{"events":[{"timestamp":1700000000,"event_id":"r-1","event_type":"MAX_LOSS","level":"WARN","reason":"cap"}]}`)
	events := DecodeRiskHistory(raw)
	if len(events) != 1 || events[0].EventID != "r-1" || events[0].TsMs != 1700000000000 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDecodeTraceTimeline(t *testing.T) {
	raw := mustJSON(t, `{"trace_id":"t-4","status":"FILLED","started_at":"2026-08-01T00:00:00Z","events":[{"event_type":"route_decided","ts":1700000000,"trace_id":"t-4"}]}`)
	tl, ok := DecodeTraceTimeline(raw)
	if !ok || tl.TraceID != "t-4" || len(tl.Events) != 1 {
		t.Fatalf("unexpected timeline: %+v ok=%v", tl, ok)
	}
	if tl.Events[0].Kind != "route_decided" {
		t.Fatalf("event kind: %q", tl.Events[0].Kind)
	}
}

func TestPickLinesVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"lines":["a","b"]}`, 2},
		{`{"items":["a"]}`, 1},
		{`{"stdout":["a","b","c"]}`, 3},
		{`{"stderr":["a"]}`, 1},
		{`{"text":"a\nb\n\nc"}`, 3},
		{`{"content":"one line"}`, 1},
		{`{"unrelated":true}`, 0},
		{`null`, 0},
	}
	for _, c := range cases {
		got := PickLines(mustJSON(t, c.raw))
		if len(got) != c.want {
			t.Fatalf("PickLines(%s) = %v, want %d lines", c.raw, got, c.want)
		}
	}
}

func TestAsNumberRejectsNonFinite(t *testing.T) {
	if got := AsNumber("12.5", 0); got != 12.5 {
		t.Fatalf("numeric string: %v", got)
	}
	if got := AsNumber("abc", 7); got != 7 {
		t.Fatalf("junk string: %v", got)
	}
	if got := AsNumber(nil, 3); got != 3 {
		t.Fatalf("nil: %v", got)
	}
	if got := AsNumber(true, 1); got != 1 {
		t.Fatalf("bool: %v", got)
	}
}
