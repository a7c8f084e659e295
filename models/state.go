package models

// EngineState is the single-slot snapshot of the trading engine. It is
// replaced wholesale on every engine_state event or /state/engine poll and
// never merged field by field.
type EngineState struct {
	KillSwitchOn bool   `json:"kill_switch_on"`
	RiskType     string `json:"risk_type,omitempty"`
	Reason       string `json:"reason,omitempty"`
	UptimeSec    int64  `json:"uptime_sec"`
	Published    int64  `json:"published"`
	Consumed     int64  `json:"consumed"`
	PendingTotal int64  `json:"pending_total"`
}

// Position is one open position keyed by symbol.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	PnL           float64 `json:"pnl"`
}

// RiskEvent is one entry of the bounded risk history.
type RiskEvent struct {
	TsMs      int64                  `json:"timestamp"`
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Level     string                 `json:"level"`
	Reason    string                 `json:"reason"`
	RiskType  string                 `json:"risk_type,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AuditEntry is one line of the operator audit stream. The raw payload is
// retained for display alongside the normalized identity fields.
type AuditEntry struct {
	Kind    EventKind              `json:"event_type"`
	TsMs    int64                  `json:"ts"`
	TraceID string                 `json:"trace_id"`
	Payload map[string]interface{} `json:"data,omitempty"`
}

// TraceSummary is one row of the trace inspection list.
type TraceSummary struct {
	TraceID    string `json:"trace_id"`
	Status     string `json:"status"`
	EventCount int    `json:"event_count"`
	StartedAt  string `json:"started_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
	LastEvent  string `json:"last_event,omitempty"`
}

// TraceTimeline is the full ordered event list for one trace id.
type TraceTimeline struct {
	TraceID   string  `json:"trace_id"`
	Status    string  `json:"status"`
	StartedAt string  `json:"started_at,omitempty"`
	Events    []Event `json:"events"`
}

// DashboardSummary aggregates order flow over a rolling window.
type DashboardSummary struct {
	WindowSec     int64            `json:"window_sec"`
	TraceCount    int64            `json:"trace_count"`
	OrderCount    int64            `json:"order_count"`
	RejectedCount int64            `json:"rejected_count"`
	EventCounts   map[string]int64 `json:"event_counts,omitempty"`
}
