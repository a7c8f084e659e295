package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"opsflow/internal/backend"
	"opsflow/internal/journal"
	"opsflow/internal/metrics"
	"opsflow/internal/poller"
	"opsflow/internal/state"
	"opsflow/logger"
	"opsflow/models"
	"opsflow/processor"
	"opsflow/reader"
)

// Config parameterizes session-level behaviour: the kill-switch command
// budget and the CloudWatch publishing cadence.
type Config struct {
	TogglePerMinute    int
	ToggleBurst        int
	CloudWatchInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.TogglePerMinute <= 0 {
		c.TogglePerMinute = 6
	}
	if c.ToggleBurst <= 0 {
		c.ToggleBurst = 2
	}
	if c.CloudWatchInterval <= 0 {
		c.CloudWatchInterval = time.Minute
	}
}

// ErrToggleThrottled is returned when kill-switch commands exceed the
// configured budget.
var ErrToggleThrottled = fmt.Errorf("kill-switch toggle rate limit exceeded")

// Session ties the event transport, the pollers and the store together. It
// is the only writer of the store: stream events flow through the dispatch
// loop and poll results are applied by the poller it owns.
type Session struct {
	cfg       Config
	store     *state.Store
	transport *reader.Transport
	poller    *poller.Poller
	client    *backend.Client
	journal   *journal.Journal
	limiter   *rate.Limiter
	log       *logger.Log

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSession wires the components together. journal may be nil.
func NewSession(cfg Config, store *state.Store, transport *reader.Transport, p *poller.Poller, client *backend.Client, j *journal.Journal) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:       cfg,
		store:     store,
		transport: transport,
		poller:    p,
		client:    client,
		journal:   j,
		limiter:   rate.NewLimiter(rate.Limit(float64(cfg.TogglePerMinute)/60.0), cfg.ToggleBurst),
		log:       logger.GetLogger(),
	}
}

// Start launches the transport, the poller, the dispatch loop and the
// CloudWatch publisher.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("session already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.transport.OnConnect(func() {
		s.store.SetConnected(true)
		metrics.SetConnected(true)
	})
	s.transport.OnDisconnect(func() {
		s.store.SetConnected(false)
		metrics.SetConnected(false)
		metrics.IncrementReconnect()
	})
	if s.journal != nil {
		s.transport.OnFrame(s.journal.Append)
	}

	if err := s.transport.Start(s.ctx); err != nil {
		s.cancel()
		return fmt.Errorf("failed to start transport: %w", err)
	}
	if err := s.poller.Start(s.ctx); err != nil {
		s.transport.Stop()
		s.cancel()
		return fmt.Errorf("failed to start poller: %w", err)
	}

	s.running = true

	s.wg.Add(2)
	go s.dispatch()
	go s.publishLoop()

	s.log.WithComponent("session").Info("session started")
	return nil
}

// Stop tears everything down in order: transport first so no new events
// arrive, then poller, then the loops, then the journal.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.transport.Stop()
	s.poller.Stop()
	s.cancel()
	s.wg.Wait()

	if s.journal != nil {
		s.journal.Close()
	}
	s.log.WithComponent("session").Info("session stopped")
}

// Store exposes the session's store for read-only consumers.
func (s *Session) Store() *state.Store { return s.store }

func (s *Session) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.transport.Events():
			s.apply(ev)
		}
	}
}

// apply routes one stream event into the store. Every event lands in the
// recent feed; typed sections update only for their kind.
func (s *Session) apply(ev models.Event) {
	metrics.IncrementFrame(string(ev.Kind))
	s.store.AddRecentEvent(ev)

	switch {
	case ev.Kind == models.KindEngineState:
		s.store.SetEngineState(processor.EngineStateFromEvent(ev))
	case ev.Kind == models.KindPositionSnapshot:
		s.store.UpsertPosition(processor.PositionFromEvent(ev))
	case ev.Kind == models.KindRiskEvent:
		s.store.AddRiskEvent(processor.RiskEventFromEvent(ev))
	case ev.Kind.IsAuditKind():
		s.store.AddAuditEntry(processor.AuditEntryFromEvent(ev))
	}
}

func (s *Session) publishLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CloudWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			frames, reconnects, dropped, fallbacks := s.transport.Stats()
			metrics.PublishSnapshot(s.ctx, metrics.Snapshot{
				FramesTotal:     frames,
				ReconnectsTotal: reconnects,
				DroppedFrames:   dropped,
				DecodeFallbacks: fallbacks,
				Connected:       s.store.Connected(),
				DataMode:        string(s.store.DataMode()),
			})
		}
	}
}

// ToggleKillSwitch forwards a kill-switch command to the backend, subject
// to the command rate budget. The returned audit id identifies the action
// in the audit trail.
func (s *Session) ToggleKillSwitch(ctx context.Context, isOn bool, reason string) (string, error) {
	if !s.limiter.Allow() {
		metrics.IncrementKillToggle("throttled")
		return "", ErrToggleThrottled
	}

	auditID, err := s.client.ToggleKillSwitch(ctx, isOn, reason)
	if err != nil {
		metrics.IncrementKillToggle("rejected")
		return "", err
	}

	metrics.IncrementKillToggle("ok")
	s.log.WithComponent("session").WithFields(logger.Fields{
		"is_on":    isOn,
		"reason":   reason,
		"audit_id": auditID,
	}).Info("kill switch toggled")
	return auditID, nil
}

// Traces proxies the trace inspection list from the backend.
func (s *Session) Traces(ctx context.Context, query backend.TraceQuery) []models.TraceSummary {
	return s.client.Traces(ctx, query)
}

// TraceTimeline proxies one trace's ordered event list from the backend.
func (s *Session) TraceTimeline(ctx context.Context, traceID string) (models.TraceTimeline, bool) {
	return s.client.TraceTimeline(ctx, traceID)
}

// Summary proxies the windowed order-flow summary from the backend.
func (s *Session) Summary(ctx context.Context, windowSec int) (models.DashboardSummary, bool) {
	return s.client.DashboardSummary(ctx, windowSec)
}
