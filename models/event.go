package models

import (
	"strings"
	"time"
)

// EventKind identifies the variant of a stream event. The backend emits a
// mix of lower-case legacy kinds and upper-case audit kinds; kinds are
// normalized to the lower-case form at decode time.
type EventKind string

const (
	KindEngineState       EventKind = "engine_state"
	KindPositionSnapshot  EventKind = "position_snapshot"
	KindRiskEvent         EventKind = "risk_event"
	KindHeartbeat         EventKind = "heartbeat"
	KindRiskTriggered     EventKind = "risk_triggered"
	KindOrderRejected     EventKind = "order_rejected"
	KindLevelDowngraded   EventKind = "level_downgraded"
	KindLevelRestored     EventKind = "level_restored"
	KindSystemGuard       EventKind = "system_guard"
	KindAuditLog          EventKind = "audit_log"
	KindRouteDecided      EventKind = "route_decided"
	KindRouteSplit        EventKind = "route_split"
	KindRouteRejectedSoft EventKind = "route_rejected_soft"
	KindRouteRejectedHard EventKind = "route_rejected_hard"
)

var knownKinds = map[EventKind]struct{}{
	KindEngineState:       {},
	KindPositionSnapshot:  {},
	KindRiskEvent:         {},
	KindHeartbeat:         {},
	KindRiskTriggered:     {},
	KindOrderRejected:     {},
	KindLevelDowngraded:   {},
	KindLevelRestored:     {},
	KindSystemGuard:       {},
	KindAuditLog:          {},
	KindRouteDecided:      {},
	KindRouteSplit:        {},
	KindRouteRejectedSoft: {},
	KindRouteRejectedHard: {},
}

// ParseEventKind normalizes a raw kind string to a known variant. Unknown or
// empty values map to heartbeat so a malformed frame degrades to a no-op
// instead of failing the consumer.
func ParseEventKind(raw string) EventKind {
	kind := EventKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownKinds[kind]; ok {
		return kind
	}
	return KindHeartbeat
}

// IsAuditKind reports whether events of this kind belong in the audit log.
func (k EventKind) IsAuditKind() bool {
	switch k {
	case KindRiskTriggered, KindOrderRejected, KindLevelDowngraded,
		KindLevelRestored, KindSystemGuard, KindAuditLog,
		KindRouteDecided, KindRouteSplit, KindRouteRejectedSoft, KindRouteRejectedHard:
		return true
	}
	return false
}

// Event is the normalized form of one stream frame. Timestamp is epoch
// milliseconds; the seconds-vs-milliseconds ambiguity of the wire format is
// resolved at the decode boundary.
type Event struct {
	Kind    EventKind              `json:"kind"`
	TsMs    int64                  `json:"ts_ms"`
	TraceID string                 `json:"trace_id,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TsMs)
}

// TraceOrDefault returns the trace id, or the "no-trace" placeholder used by
// the backend protocol when correlation is unavailable.
func (e Event) TraceOrDefault() string {
	if e.TraceID == "" {
		return "no-trace"
	}
	return e.TraceID
}
