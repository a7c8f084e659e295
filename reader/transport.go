package reader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsflow/internal/metrics"
	"opsflow/logger"
	"opsflow/models"
	"opsflow/processor"
)

// ConnState is the transport's connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Reconnect policy defaults.
const (
	DefaultBackoffFloor      = 1000 * time.Millisecond
	DefaultBackoffCeiling    = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultFrameBuffer       = 256
)

// Config parameterizes one transport.
type Config struct {
	URL               string
	BackoffFloor      time.Duration
	BackoffCeiling    time.Duration
	BackoffMultiplier float64
	FrameBuffer       int
}

func (c *Config) applyDefaults() {
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = DefaultBackoffFloor
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = DefaultBackoffCeiling
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = DefaultFrameBuffer
	}
}

// Transport maintains one live socket subscription to the backend event
// stream. It reconnects with exponential backoff after any close, decodes
// frames in strict arrival order and delivers the normalized events on a
// buffered channel. All socket and timer callbacks funnel through one
// mutex-guarded state machine; Stop is terminal.
type Transport struct {
	cfg    Config
	dialer Dialer
	log    *logger.Log

	mu         sync.Mutex
	state      ConnState
	conn       Conn
	retryTimer *time.Timer
	backoff    time.Duration
	stopped    bool
	gen        int

	events chan models.Event
	done   chan struct{}
	wg     sync.WaitGroup

	onConnect    func()
	onDisconnect func()
	onFrame      func([]byte)

	framesTotal     int64
	reconnectsTotal int64
	droppedFrames   int64
	decodeFallbacks int64
}

// NewTransport creates a transport; it does not connect until Start.
func NewTransport(cfg Config, dialer Dialer) *Transport {
	cfg.applyDefaults()
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}
	return &Transport{
		cfg:     cfg,
		dialer:  dialer,
		log:     logger.GetLogger(),
		backoff: cfg.BackoffFloor,
		events:  make(chan models.Event, cfg.FrameBuffer),
		done:    make(chan struct{}),
	}
}

// OnConnect registers a callback fired after each successful open. Must be
// called before Start.
func (t *Transport) OnConnect(fn func()) { t.onConnect = fn }

// OnDisconnect registers a callback fired immediately on each close, before
// the reconnect is scheduled. Must be called before Start.
func (t *Transport) OnDisconnect(fn func()) { t.onDisconnect = fn }

// OnFrame registers a callback receiving every raw frame before decoding.
// Must be called before Start. The callback must not retain the slice.
func (t *Transport) OnFrame(fn func([]byte)) { t.onFrame = fn }

// Events is the normalized event stream, strict frame-arrival order.
func (t *Transport) Events() <-chan models.Event { return t.events }

// State returns the current connection state.
func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Backoff returns the delay the next reconnect would wait.
func (t *Transport) Backoff() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backoff
}

// Start begins connecting. The transport stops when ctx is cancelled or
// Stop is called, whichever comes first.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return fmt.Errorf("transport already stopped")
	}
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return fmt.Errorf("transport already running")
	}
	t.mu.Unlock()

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.done:
			}
		}()
	}

	t.log.WithComponent("transport").WithFields(logger.Fields{"url": t.cfg.URL}).Info("starting event transport")
	t.connect()
	return nil
}

// connect attempts to open a socket. It is a no-op while a socket is
// already connecting or connected, and after teardown; overlapping timer
// firings therefore cannot create duplicate sockets.
func (t *Transport) connect() {
	t.mu.Lock()
	if t.stopped || t.state == StateConnecting || t.state == StateConnected {
		t.mu.Unlock()
		return
	}
	t.state = StateConnecting
	gen := t.gen
	t.mu.Unlock()

	t.wg.Add(1)
	go t.dial(gen)
}

func (t *Transport) dial(gen int) {
	defer t.wg.Done()
	log := t.log.WithComponent("transport")

	conn, err := t.dialer.Dial(context.Background(), t.cfg.URL)

	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		// A failed dial drives the same transition a close would.
		log.WithError(err).Warn("failed to connect, scheduling retry")
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		return
	}

	t.conn = conn
	t.state = StateConnected
	t.backoff = t.cfg.BackoffFloor
	onConnect := t.onConnect
	t.mu.Unlock()

	log.Info("event stream connected")
	if onConnect != nil {
		onConnect()
	}

	t.wg.Add(1)
	go t.readLoop(conn, gen)
}

// readLoop consumes frames until the socket closes. Read errors alone do
// not drive the state machine; the loop exit (the close) does.
func (t *Transport) readLoop(conn Conn, gen int) {
	defer t.wg.Done()
	log := t.log.WithComponent("transport")

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(gen, err)
			return
		}

		if t.onFrame != nil {
			t.onFrame(frame)
		}

		ev, issues := processor.DecodeEvent(frame)
		t.mu.Lock()
		t.framesTotal++
		if len(issues) > 0 {
			t.decodeFallbacks++
		}
		t.mu.Unlock()
		if len(issues) > 0 {
			metrics.IncrementDecodeFallback()
		}
		processor.LogIssues(log.WithFields(logger.Fields{"kind": ev.Kind}), issues)

		select {
		case t.events <- ev:
		default:
			t.mu.Lock()
			t.droppedFrames++
			t.mu.Unlock()
			metrics.IncrementDroppedFrame()
			log.WithFields(logger.Fields{"kind": ev.Kind}).Warn("event channel is full, dropping frame")
		}
	}
}

func (t *Transport) handleClose(gen int, cause error) {
	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	onDisconnect := t.onDisconnect
	t.log.WithComponent("transport").WithError(cause).WithFields(logger.Fields{
		"retry_in": t.backoff.String(),
	}).Warn("event stream closed, reconnecting")
	t.scheduleReconnectLocked()
	t.mu.Unlock()

	// onDisconnect fires immediately on close, before the retry timer.
	if onDisconnect != nil {
		onDisconnect()
	}
}

// scheduleReconnectLocked arms the retry timer at the current backoff and
// grows the backoff for the next failure. Caller holds t.mu.
func (t *Transport) scheduleReconnectLocked() {
	t.state = StateReconnecting
	t.reconnectsTotal++

	delay := t.backoff
	next := time.Duration(float64(t.backoff) * t.cfg.BackoffMultiplier)
	if next > t.cfg.BackoffCeiling {
		next = t.cfg.BackoffCeiling
	}
	t.backoff = next

	t.retryTimer = time.AfterFunc(delay, t.connect)
}

// Stop tears the transport down: the pending retry timer is cancelled, the
// live socket is closed and no further reconnect may be scheduled. This is
// terminal; a stopped transport cannot be restarted.
func (t *Transport) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.gen++
	t.state = StateDisconnected
	close(t.done)
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.wg.Wait()
	t.log.WithComponent("transport").Info("event transport stopped")
}

// Stats reports transport counters for the metrics publisher.
func (t *Transport) Stats() (frames, reconnects, dropped, fallbacks int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesTotal, t.reconnectsTotal, t.droppedFrames, t.decodeFallbacks
}
