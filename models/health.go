package models

// DataMode classifies the freshness of the reconciled state. It is derived,
// never stored: see DeriveDataMode.
type DataMode string

const (
	ModeLive   DataMode = "LIVE"
	ModeSim    DataMode = "SIM"
	ModeReplay DataMode = "REPLAY"
	ModeStale  DataMode = "STALE"
	ModeDown   DataMode = "DOWN"
	ModeDemo   DataMode = "DEMO"
)

// HealthSnapshot is the merged view of the /health and /evergreen/status
// polls. A failed poll keeps the previous snapshot rather than clearing it.
type HealthSnapshot struct {
	ServiceStatus       string  `json:"service_status"`
	HeartbeatAgeSec     float64 `json:"last_heartbeat_age_sec"`
	HeartbeatAgeKnown   bool    `json:"heartbeat_age_known"`
	LastHeartbeatTsMs   int64   `json:"last_heartbeat_ts,omitempty"`
	Grade               string  `json:"grade,omitempty"`
	Mission             string  `json:"mission,omitempty"`
	NextMilestone       string  `json:"next_milestone,omitempty"`
	NextMilestoneEtaSec float64 `json:"next_milestone_eta_sec,omitempty"`
	RestartCount        int64   `json:"restart_count,omitempty"`
	CumulativeRuntime   float64 `json:"cumulative_runtime_sec,omitempty"`
}

// DeriveDataMode computes the freshness classification from heartbeat age
// and service status. Thresholds: under 30s with a running service is LIVE,
// under 120s is STALE, everything else (including a missing snapshot or an
// unknown heartbeat age) is DOWN.
func DeriveDataMode(snap *HealthSnapshot) DataMode {
	if snap == nil || !snap.HeartbeatAgeKnown {
		return ModeDown
	}
	if snap.HeartbeatAgeSec < 30 && snap.ServiceStatus == "running" {
		return ModeLive
	}
	if snap.HeartbeatAgeSec < 120 {
		return ModeStale
	}
	return ModeDown
}

// HistoryPoint is one sample of the runtime/progress time series.
type HistoryPoint struct {
	TsMs          int64   `json:"ts"`
	Value         float64 `json:"value"`
	RuntimeHours  float64 `json:"runtime_h"`
	CumRuntimeSec float64 `json:"cumulative_runtime_sec,omitempty"`
	ProgressPct   float64 `json:"progress_168h_pct"`
	RestartCount  int64   `json:"restart_count"`
}

// Alert is one entry of the polled alert feed.
type Alert struct {
	TsMs     int64  `json:"ts,omitempty"`
	Level    string `json:"level,omitempty"`
	Message  string `json:"message,omitempty"`
	Code     string `json:"code,omitempty"`
	Event    string `json:"event,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// LogTail holds the most recent stdout/stderr lines of the backend service.
type LogTail struct {
	Stdout []string `json:"stdout,omitempty"`
	Stderr []string `json:"stderr,omitempty"`
}
