package state

import (
	"sync"

	"opsflow/models"
)

// Default bounds for the rolling collections. Oldest entries are silently
// dropped once a cap is reached; there is no archival and no backpressure
// signal to the backend.
const (
	DefaultRiskEventCap   = 20
	DefaultRecentEventCap = 200
	DefaultAuditLogCap    = 1000
)

// Store holds the reconciled rolling state fed by the event transport and
// the pollers. It is safe for concurrent use; every mutator applies its
// whole update under one lock so readers never observe a partial event.
type Store struct {
	mu sync.RWMutex

	engine    *models.EngineState
	positions []models.Position
	risks     []models.RiskEvent
	recent    []models.Event
	audit     []models.AuditEntry
	health    *models.HealthSnapshot
	history   []models.HistoryPoint
	alerts    []models.Alert
	logs      models.LogTail

	connected bool

	riskCap   int
	recentCap int
	auditCap  int
}

// NewStore creates a store with the given list caps. Non-positive caps fall
// back to the defaults.
func NewStore(riskCap, recentCap, auditCap int) *Store {
	if riskCap <= 0 {
		riskCap = DefaultRiskEventCap
	}
	if recentCap <= 0 {
		recentCap = DefaultRecentEventCap
	}
	if auditCap <= 0 {
		auditCap = DefaultAuditLogCap
	}
	return &Store{riskCap: riskCap, recentCap: recentCap, auditCap: auditCap}
}

// SetEngineState replaces the engine snapshot wholesale.
func (s *Store) SetEngineState(st models.EngineState) {
	s.mu.Lock()
	s.engine = &st
	s.mu.Unlock()
}

// EngineState returns a copy of the current engine snapshot, or nil when
// none has been received yet.
func (s *Store) EngineState() *models.EngineState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return nil
	}
	out := *s.engine
	return &out
}

// UpsertPosition replaces the entry for the position's symbol and moves it
// to the front, so the collection stays ordered most-recently-updated
// first. Entries with an empty symbol are ignored.
func (s *Store) UpsertPosition(pos models.Position) {
	if pos.Symbol == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]models.Position, 0, len(s.positions)+1)
	filtered = append(filtered, pos)
	for _, existing := range s.positions {
		if existing.Symbol != pos.Symbol {
			filtered = append(filtered, existing)
		}
	}
	s.positions = filtered
}

// SetPositions replaces the whole position set (poll path).
func (s *Store) SetPositions(positions []models.Position) {
	s.mu.Lock()
	s.positions = append([]models.Position(nil), positions...)
	s.mu.Unlock()
}

// Positions returns a copy of the current position list.
func (s *Store) Positions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// AddRiskEvent prepends one risk event, truncating to the cap.
func (s *Store) AddRiskEvent(re models.RiskEvent) {
	s.mu.Lock()
	s.risks = prependRisk(s.risks, re, s.riskCap)
	s.mu.Unlock()
}

// SetRiskEvents replaces the risk history wholesale (poll path), still
// bounded by the cap.
func (s *Store) SetRiskEvents(events []models.RiskEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(events) > s.riskCap {
		events = events[:s.riskCap]
	}
	s.risks = append([]models.RiskEvent(nil), events...)
}

// RiskEvents returns a copy of the risk history, newest first.
func (s *Store) RiskEvents() []models.RiskEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RiskEvent, len(s.risks))
	copy(out, s.risks)
	return out
}

// AddRecentEvent prepends one event to the generic recent-events buffer.
func (s *Store) AddRecentEvent(ev models.Event) {
	s.mu.Lock()
	s.recent = prependEvent(s.recent, ev, s.recentCap)
	s.mu.Unlock()
}

// RecentEvents returns a copy of the recent-events buffer, newest first.
func (s *Store) RecentEvents() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Event, len(s.recent))
	copy(out, s.recent)
	return out
}

// AddAuditEntry prepends one audit line, truncating to the cap.
func (s *Store) AddAuditEntry(entry models.AuditEntry) {
	s.mu.Lock()
	s.audit = prependAudit(s.audit, entry, s.auditCap)
	s.mu.Unlock()
}

// AuditLog returns a copy of the audit log, newest first. When traceID is
// non-empty only entries of that trace are returned.
func (s *Store) AuditLog(traceID string) []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, 0, len(s.audit))
	for _, entry := range s.audit {
		if traceID != "" && entry.TraceID != traceID {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// SetHealth replaces the merged health snapshot wholesale. A failed poll
// must NOT call this; the previous snapshot is deliberately retained so a
// transient backend hiccup does not flicker the UI to DOWN.
func (s *Store) SetHealth(snap models.HealthSnapshot) {
	s.mu.Lock()
	s.health = &snap
	s.mu.Unlock()
}

// Health returns a copy of the last good health snapshot, or nil.
func (s *Store) Health() *models.HealthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.health == nil {
		return nil
	}
	out := *s.health
	return &out
}

// DataMode derives the freshness classification from the current health
// snapshot.
func (s *Store) DataMode() models.DataMode {
	return models.DeriveDataMode(s.Health())
}

// SetHistory replaces the runtime/progress series wholesale.
func (s *Store) SetHistory(points []models.HistoryPoint) {
	s.mu.Lock()
	s.history = append([]models.HistoryPoint(nil), points...)
	s.mu.Unlock()
}

// History returns a copy of the runtime/progress series.
func (s *Store) History() []models.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistoryPoint, len(s.history))
	copy(out, s.history)
	return out
}

// SetAlerts replaces the alert feed wholesale.
func (s *Store) SetAlerts(alerts []models.Alert) {
	s.mu.Lock()
	s.alerts = append([]models.Alert(nil), alerts...)
	s.mu.Unlock()
}

// Alerts returns a copy of the alert feed.
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// SetStdout replaces the stdout tail.
func (s *Store) SetStdout(lines []string) {
	s.mu.Lock()
	s.logs.Stdout = append([]string(nil), lines...)
	s.mu.Unlock()
}

// SetStderr replaces the stderr tail.
func (s *Store) SetStderr(lines []string) {
	s.mu.Lock()
	s.logs.Stderr = append([]string(nil), lines...)
	s.mu.Unlock()
}

// LogTail returns a copy of the stdout/stderr tails.
func (s *Store) LogTail() models.LogTail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.LogTail{
		Stdout: append([]string(nil), s.logs.Stdout...),
		Stderr: append([]string(nil), s.logs.Stderr...),
	}
}

// SetConnected records the transport connection state.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// Connected reports the transport connection state.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func prependEvent(list []models.Event, ev models.Event, limit int) []models.Event {
	out := make([]models.Event, 0, min(len(list)+1, limit))
	out = append(out, ev)
	for _, item := range list {
		if len(out) >= limit {
			break
		}
		out = append(out, item)
	}
	return out
}

func prependRisk(list []models.RiskEvent, re models.RiskEvent, limit int) []models.RiskEvent {
	out := make([]models.RiskEvent, 0, min(len(list)+1, limit))
	out = append(out, re)
	for _, item := range list {
		if len(out) >= limit {
			break
		}
		out = append(out, item)
	}
	return out
}

func prependAudit(list []models.AuditEntry, entry models.AuditEntry, limit int) []models.AuditEntry {
	out := make([]models.AuditEntry, 0, min(len(list)+1, limit))
	out = append(out, entry)
	for _, item := range list {
		if len(out) >= limit {
			break
		}
		out = append(out, item)
	}
	return out
}
