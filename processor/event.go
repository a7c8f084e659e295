package processor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsflow/logger"
	"opsflow/models"
)

// DecodeIssue records the substitutions made while normalizing a frame.
// Decoding never fails outward; issues exist so the fallback behaviour is
// auditable (logged and counted) rather than implicit.
type DecodeIssue struct {
	Field  string
	Reason string
}

func (i DecodeIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Reason)
}

// DecodeEvent normalizes one raw text frame into an Event. It always
// returns a structurally valid event: malformed JSON or an unknown kind
// degrade to a heartbeat carrying the current time.
func DecodeEvent(frame []byte) (models.Event, []DecodeIssue) {
	var raw interface{}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return fallbackEvent(), []DecodeIssue{{Field: "frame", Reason: "not valid JSON"}}
	}
	return decodeEventValue(raw)
}

func decodeEventValue(raw interface{}) (models.Event, []DecodeIssue) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return fallbackEvent(), []DecodeIssue{{Field: "frame", Reason: "not an object"}}
	}

	var issues []DecodeIssue

	rawKind := AsString(FirstField(obj, "event_type", "type", "event"), "")
	kind := models.ParseEventKind(rawKind)
	if rawKind == "" {
		issues = append(issues, DecodeIssue{Field: "event_type", Reason: "missing"})
	} else if kind == models.KindHeartbeat && !strings.EqualFold(rawKind, "heartbeat") {
		issues = append(issues, DecodeIssue{Field: "event_type", Reason: "unknown kind " + rawKind})
	}

	ts := NormalizeTsMs(FirstField(obj, "ts", "timestamp", "time"))
	if ts == 0 {
		ts = time.Now().UnixMilli()
		issues = append(issues, DecodeIssue{Field: "ts", Reason: "missing or invalid, substituted arrival time"})
	}

	// Some producers nest the body under data or payload, others emit it
	// inline on the envelope. Fall back to the envelope so inline fields
	// survive.
	payload := AsRecord(FirstField(obj, "data", "payload"))
	if len(payload) == 0 {
		payload = obj
	}

	return models.Event{
		Kind:    kind,
		TsMs:    ts,
		TraceID: AsString(obj["trace_id"], ""),
		Payload: payload,
	}, issues
}

func fallbackEvent() models.Event {
	return models.Event{
		Kind:    models.KindHeartbeat,
		TsMs:    time.Now().UnixMilli(),
		Payload: map[string]interface{}{},
	}
}

// EngineStateFromEvent builds the replacement engine snapshot carried by an
// engine_state event.
func EngineStateFromEvent(ev models.Event) models.EngineState {
	p := ev.Payload
	return models.EngineState{
		KillSwitchOn: AsBool(p["kill_switch_on"], false),
		RiskType:     AsString(p["risk_type"], ""),
		Reason:       AsString(p["reason"], ""),
		UptimeSec:    AsInt(p["uptime_sec"], 0),
		Published:    AsInt(p["published"], 0),
		Consumed:     AsInt(p["consumed"], 0),
		PendingTotal: AsInt(p["pending_total"], 0),
	}
}

// PositionFromEvent builds the upsert record carried by a position_snapshot
// event. The mark price historically arrived as either mark_price or
// current_price, and pnl as either pnl or position_pnl.
func PositionFromEvent(ev models.Event) models.Position {
	p := ev.Payload
	return models.Position{
		Symbol:        AsString(p["symbol"], ""),
		Qty:           AsNumber(p["qty"], 0),
		AvgEntryPrice: AsNumber(p["avg_entry_price"], 0),
		MarkPrice:     AsNumber(FirstField(p, "mark_price", "current_price"), 0),
		PnL:           AsNumber(FirstField(p, "pnl", "position_pnl"), 0),
	}
}

// RiskEventFromEvent builds the risk history entry carried by a risk_event
// frame. A missing event id gets a synthesized one so the entry remains
// addressable.
func RiskEventFromEvent(ev models.Event) models.RiskEvent {
	p := ev.Payload
	meta := AsRecord(p["metadata"])

	id := AsString(FirstField(meta, "audit_id"), "")
	if id == "" {
		id = AsString(p["event_id"], "")
	}
	if id == "" {
		id = "risk_" + uuid.NewString()
	}

	level := AsString(meta["level"], "")
	if level == "" {
		level = AsString(p["level"], "INFO")
	}

	out := models.RiskEvent{
		TsMs:      ev.TsMs,
		EventID:   id,
		EventType: AsString(p["risk_type"], string(ev.Kind)),
		Level:     level,
		Reason:    AsString(p["reason"], ""),
		RiskType:  AsString(p["risk_type"], ""),
	}
	if len(meta) > 0 {
		out.Metadata = meta
	}
	return out
}

// AuditEntryFromEvent builds the audit log line for governance-class kinds.
func AuditEntryFromEvent(ev models.Event) models.AuditEntry {
	return models.AuditEntry{
		Kind:    ev.Kind,
		TsMs:    ev.TsMs,
		TraceID: ev.TraceID,
		Payload: ev.Payload,
	}
}

// LogIssues emits one debug line per substitution so fallback behaviour
// stays observable without surfacing errors to the pipeline.
func LogIssues(log *logger.Entry, issues []DecodeIssue) {
	for _, issue := range issues {
		log.WithFields(logger.Fields{"field": issue.Field, "reason": issue.Reason}).Debug("decode fallback substituted")
	}
}
