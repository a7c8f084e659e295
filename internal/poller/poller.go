package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsflow/internal/backend"
	"opsflow/internal/metrics"
	"opsflow/internal/state"
	"opsflow/logger"
	"opsflow/processor"
)

// Config parameterizes the polling cadence and per-endpoint query limits.
type Config struct {
	Interval     time.Duration
	HistoryHours int
	AlertsLimit  int
	LogLines     int
	RiskLimit    int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.HistoryHours <= 0 {
		c.HistoryHours = 168
	}
	if c.AlertsLimit <= 0 {
		c.AlertsLimit = 50
	}
	if c.LogLines <= 0 {
		c.LogLines = 200
	}
	if c.RiskLimit <= 0 {
		c.RiskLimit = 20
	}
}

// Poller refreshes the slow-moving store sections on a fixed interval. Every
// tick fetches all endpoints in parallel and waits for the whole batch before
// the next tick is considered. A failed endpoint leaves its store section
// untouched; other endpoints still apply. There is no backoff on poll
// failures, the next tick simply tries again.
type Poller struct {
	cfg     Config
	client  *backend.Client
	store   *state.Store
	log     *logger.Log
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewPoller creates a poller that applies fetched data to the given store.
func NewPoller(cfg Config, client *backend.Client, store *state.Store) *Poller {
	cfg.applyDefaults()
	return &Poller{
		cfg:    cfg,
		client: client,
		store:  store,
		log:    logger.GetLogger(),
	}
}

// Start launches the polling loop. The first cycle runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.log.WithComponent("poller").WithFields(logger.Fields{
		"interval": p.cfg.Interval.String(),
	}).Info("starting poller")

	p.wg.Add(1)
	go p.run()

	return nil
}

// Stop terminates the polling loop and waits for in-flight fetches.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("poller").Info("poller stopped")
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.RunCycle(p.ctx)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(p.ctx)
		}
	}
}

// RunCycle fetches every polled endpoint in parallel and applies the results
// that arrived. It returns once the whole batch has finished.
func (p *Poller) RunCycle(ctx context.Context) {
	tasks := []struct {
		name string
		fn   func(context.Context) bool
	}{
		{"health", p.pollHealth},
		{"history", p.pollHistory},
		{"alerts", p.pollAlerts},
		{"logs_stdout", p.pollStdout},
		{"logs_stderr", p.pollStderr},
		{"engine", p.pollEngine},
		{"positions", p.pollPositions},
		{"risks", p.pollRisks},
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(name string, fn func(context.Context) bool) {
			defer wg.Done()
			if fn(ctx) {
				metrics.IncrementPollSuccess(name)
			} else {
				metrics.IncrementPollError(name)
			}
		}(task.name, task.fn)
	}
	wg.Wait()

	// Stale responses must not overwrite state after shutdown.
	if ctx.Err() != nil {
		return
	}
	metrics.SetDataMode(string(p.store.DataMode()))
}

func (p *Poller) pollHealth(ctx context.Context) bool {
	rawHealth := p.client.Health(ctx)
	rawStatus := p.client.EvergreenStatus(ctx)
	if rawHealth == nil && rawStatus == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	p.store.SetHealth(processor.MergeHealth(rawHealth, rawStatus))
	return true
}

func (p *Poller) pollHistory(ctx context.Context) bool {
	points, ok := p.client.History(ctx, p.cfg.HistoryHours)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetHistory(points)
	return true
}

func (p *Poller) pollAlerts(ctx context.Context) bool {
	alerts, ok := p.client.Alerts(ctx, p.cfg.AlertsLimit)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetAlerts(alerts)
	return true
}

func (p *Poller) pollStdout(ctx context.Context) bool {
	lines, ok := p.client.LogTail(ctx, "stdout", p.cfg.LogLines)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetStdout(lines)
	return true
}

func (p *Poller) pollStderr(ctx context.Context) bool {
	lines, ok := p.client.LogTail(ctx, "stderr", p.cfg.LogLines)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetStderr(lines)
	return true
}

func (p *Poller) pollEngine(ctx context.Context) bool {
	engine, ok := p.client.EngineState(ctx)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetEngineState(engine)
	return true
}

func (p *Poller) pollPositions(ctx context.Context) bool {
	positions, ok := p.client.Positions(ctx)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetPositions(positions)
	return true
}

func (p *Poller) pollRisks(ctx context.Context) bool {
	risks, ok := p.client.RiskHistory(ctx, p.cfg.RiskLimit)
	if !ok || ctx.Err() != nil {
		return false
	}
	p.store.SetRiskEvents(risks)
	return true
}
