package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"opsflow/logger"
	"opsflow/models"
	"opsflow/processor"
)

const opsTokenHeader = "X-OPS-TOKEN"

// Config parameterizes the backend HTTP client.
type Config struct {
	BaseURL         string
	OpsToken        string
	Timeout         time.Duration
	MaxIdleConns    int
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
}

// Client talks to the trading backend's HTTP surface. All read paths are
// fail-silent: a network error, a 404 or any non-2xx status yields a nil
// body and the caller keeps its last good data. Only the kill-switch
// control action surfaces an error, because a deliberate operator command
// must not fail silently.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Log
}

// NewClient creates a backend client with a pooled transport.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 16
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 8
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:       cfg.MaxIdleConns,
		MaxConnsPerHost:    cfg.MaxConnsPerHost,
		IdleConnTimeout:    cfg.IdleConnTimeout,
		DisableCompression: false,
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:  logger.GetLogger(),
	}
}

// get performs a fail-silent GET and returns the decoded JSON body, or nil.
func (c *Client) get(ctx context.Context, path string, query url.Values) interface{} {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.log.WithComponent("backend").WithError(err).Debug("failed to build request")
		return nil
	}
	if c.cfg.OpsToken != "" {
		req.Header.Set(opsTokenHeader, c.cfg.OpsToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithComponent("backend").WithError(err).WithFields(logger.Fields{"path": path}).Debug("fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithComponent("backend").WithFields(logger.Fields{"path": path, "status": resp.StatusCode}).Debug("non-2xx response")
		return nil
	}

	var body interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.WithComponent("backend").WithError(err).WithFields(logger.Fields{"path": path}).Debug("failed to decode response")
		return nil
	}
	return body
}

// Health fetches /api/ops/health. Raw body; merged by processor.MergeHealth.
func (c *Client) Health(ctx context.Context) interface{} {
	return c.get(ctx, "/api/ops/health", nil)
}

// EvergreenStatus fetches /api/ops/evergreen/status.
func (c *Client) EvergreenStatus(ctx context.Context) interface{} {
	return c.get(ctx, "/api/ops/evergreen/status", nil)
}

// History fetches the runtime/progress series for the given window. The
// second return is false when the endpoint is unavailable.
func (c *Client) History(ctx context.Context, hours int) ([]models.HistoryPoint, bool) {
	q := url.Values{"hours": {strconv.Itoa(hours)}}
	body := c.get(ctx, "/api/ops/history", q)
	if body == nil {
		return nil, false
	}
	return processor.DecodeHistory(body), true
}

// Alerts fetches the recent alert feed. The second return is false when the
// endpoint is unavailable.
func (c *Client) Alerts(ctx context.Context, limit int) ([]models.Alert, bool) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	body := c.get(ctx, "/api/ops/alerts", q)
	if body == nil {
		return nil, false
	}
	return processor.DecodeAlerts(body), true
}

// LogTail fetches the stdout or stderr tail. The second return is false
// when the endpoint is unavailable, so the caller can keep its last lines.
func (c *Client) LogTail(ctx context.Context, stream string, limit int) ([]string, bool) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	body := c.get(ctx, "/api/ops/logs/"+stream, q)
	if body == nil {
		return nil, false
	}
	return processor.PickLines(body), true
}

// EngineState fetches /api/state/engine.
func (c *Client) EngineState(ctx context.Context) (models.EngineState, bool) {
	return processor.DecodeEngineState(c.get(ctx, "/api/state/engine", nil))
}

// Positions fetches /api/state/positions. The second return is false when
// the endpoint is unavailable.
func (c *Client) Positions(ctx context.Context) ([]models.Position, bool) {
	body := c.get(ctx, "/api/state/positions", nil)
	if body == nil {
		return nil, false
	}
	return processor.DecodePositions(body), true
}

// RiskHistory fetches /api/history/risks.
func (c *Client) RiskHistory(ctx context.Context, limit int) ([]models.RiskEvent, bool) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	body := c.get(ctx, "/api/history/risks", q)
	if body == nil {
		return nil, false
	}
	return processor.DecodeRiskHistory(body), true
}

// TraceQuery filters the trace summary list.
type TraceQuery struct {
	Limit     int
	EventType string
	SinceMs   int64
}

// Traces fetches the trace inspection list.
func (c *Client) Traces(ctx context.Context, query TraceQuery) []models.TraceSummary {
	q := url.Values{}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.EventType != "" {
		q.Set("event_type", query.EventType)
	}
	if query.SinceMs > 0 {
		q.Set("since_ms", strconv.FormatInt(query.SinceMs, 10))
	}
	return processor.DecodeTraceSummaries(c.get(ctx, "/api/dashboard/traces", q))
}

// TraceTimeline fetches the ordered event list of one trace.
func (c *Client) TraceTimeline(ctx context.Context, traceID string) (models.TraceTimeline, bool) {
	return processor.DecodeTraceTimeline(c.get(ctx, "/api/dashboard/orders/"+url.PathEscape(traceID), nil))
}

// DashboardSummary fetches the windowed order-flow summary.
func (c *Client) DashboardSummary(ctx context.Context, windowSec int) (models.DashboardSummary, bool) {
	q := url.Values{"window_sec": {strconv.Itoa(windowSec)}}
	return processor.DecodeDashboardSummary(c.get(ctx, "/api/dashboard/summary", q))
}

// ToggleKillSwitch flips the global kill switch. This is the one path that
// returns a real error: it is a deliberate operator action whose failure
// must be acknowledged, not swallowed.
func (c *Client) ToggleKillSwitch(ctx context.Context, isOn bool, reason string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{"is_on": isOn, "reason": reason})
	if err != nil {
		return "", fmt.Errorf("failed to encode kill-switch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/control/kill-switch", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build kill-switch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.OpsToken != "" {
		req.Header.Set(opsTokenHeader, c.cfg.OpsToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("kill-switch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("kill-switch toggle rejected with status %d", resp.StatusCode)
	}

	var body struct {
		AuditID string `json:"audit_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode kill-switch response: %w", err)
	}
	return body.AuditID, nil
}
