package processor

import (
	"testing"

	"opsflow/models"
)

func TestDecodeEventMalformedFrames(t *testing.T) {
	frames := [][]byte{
		[]byte("not json"),
		[]byte("null"),
		[]byte(`"just a string"`),
		[]byte(`[1,2,3]`),
		[]byte(`{}`),
		[]byte(`{"event_type": 42, "ts": "soon", "data": "nope"}`),
		[]byte(`{"event_type": "order_fill", "ts": 1700000000}`),
	}
	for _, frame := range frames {
		ev, _ := DecodeEvent(frame)
		if ev.Kind != models.KindHeartbeat {
			t.Fatalf("frame %q: got kind %q, want heartbeat fallback", frame, ev.Kind)
		}
		if ev.TsMs == 0 {
			t.Fatalf("frame %q: timestamp fallback missing", frame)
		}
		if ev.Payload == nil {
			t.Fatalf("frame %q: payload must never be nil", frame)
		}
	}
}

func TestDecodeEventKindAliases(t *testing.T) {
	ev, issues := DecodeEvent([]byte(`{"type":"RISK_TRIGGERED","ts":1700000000000,"trace_id":"t-9","data":{"reason":"loss cap"}}`))
	if ev.Kind != models.KindRiskTriggered {
		t.Fatalf("got kind %q", ev.Kind)
	}
	if ev.TraceID != "t-9" {
		t.Fatalf("got trace %q", ev.TraceID)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if ev.Payload["reason"] != "loss cap" {
		t.Fatalf("payload not carried: %#v", ev.Payload)
	}
}

func TestDecodeEventSecondsTimestamp(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event_type":"heartbeat","ts":1700000000}`))
	if ev.TsMs != 1700000000000 {
		t.Fatalf("seconds not normalized to ms: %d", ev.TsMs)
	}

	ev, _ = DecodeEvent([]byte(`{"event_type":"heartbeat","ts":1700000000000}`))
	if ev.TsMs != 1700000000000 {
		t.Fatalf("ms input changed: %d", ev.TsMs)
	}
}

func TestEngineStateFromEvent(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event_type":"engine_state","ts":1700000000,"data":{"kill_switch_on":true,"risk_type":"MAX_LOSS","reason":"daily cap","uptime_sec":321,"published":10,"consumed":8,"pending_total":2}}`))
	st := EngineStateFromEvent(ev)
	if !st.KillSwitchOn || st.RiskType != "MAX_LOSS" || st.UptimeSec != 321 || st.Published != 10 || st.Consumed != 8 || st.PendingTotal != 2 {
		t.Fatalf("unexpected state: %+v", st)
	}

	// wrong types fall back to zero values
	ev, _ = DecodeEvent([]byte(`{"event_type":"engine_state","ts":1700000000,"data":{"kill_switch_on":"yes","uptime_sec":"NaN"}}`))
	st = EngineStateFromEvent(ev)
	if st.KillSwitchOn || st.UptimeSec != 0 {
		t.Fatalf("fallbacks not applied: %+v", st)
	}
}

func TestPositionFromEventFieldAliases(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event_type":"position_snapshot","ts":1700000000,"data":{"symbol":"BTCUSDT","qty":0.5,"avg_entry_price":64000,"current_price":65000,"position_pnl":500}}`))
	pos := PositionFromEvent(ev)
	if pos.Symbol != "BTCUSDT" || pos.MarkPrice != 65000 || pos.PnL != 500 {
		t.Fatalf("aliases not absorbed: %+v", pos)
	}
}

func TestRiskEventFromEventSynthesizesID(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event_type":"risk_event","ts":1700000000,"data":{"risk_type":"DRAWDOWN","reason":"limit"}}`))
	re := RiskEventFromEvent(ev)
	if re.EventID == "" {
		t.Fatalf("missing id must be synthesized")
	}
	if re.Level != "INFO" {
		t.Fatalf("default level: %q", re.Level)
	}
	if re.RiskType != "DRAWDOWN" || re.Reason != "limit" {
		t.Fatalf("unexpected record: %+v", re)
	}

	ev, _ = DecodeEvent([]byte(`{"event_type":"risk_event","ts":1700000000,"data":{"risk_type":"DRAWDOWN","metadata":{"audit_id":"a-77","level":"CRITICAL"}}}`))
	re = RiskEventFromEvent(ev)
	if re.EventID != "a-77" || re.Level != "CRITICAL" {
		t.Fatalf("metadata not used: %+v", re)
	}
}

func TestAuditEntryFromEvent(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event_type":"ORDER_REJECTED","ts":1700000000,"trace_id":"t-1","data":{"rejection_reason":"insufficient margin"}}`))
	entry := AuditEntryFromEvent(ev)
	if entry.Kind != models.KindOrderRejected || entry.TraceID != "t-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Payload["rejection_reason"] != "insufficient margin" {
		t.Fatalf("raw payload not retained: %#v", entry.Payload)
	}
}

func TestDecodeEventInlinePayload(t *testing.T) {
	ev, _ := DecodeEvent([]byte(`{"event_type":"risk_event","ts":1700000000000,"event_id":"r-2","level":"ERROR","reason":"loss cap"}`))
	re := RiskEventFromEvent(ev)
	if re.EventID != "r-2" || re.Level != "ERROR" || re.Reason != "loss cap" {
		t.Fatalf("inline payload fields lost: %+v", re)
	}
}
