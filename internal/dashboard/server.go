package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"opsflow/internal/backend"
	"opsflow/internal/session"
	"opsflow/logger"
)

// Config parameterizes the dashboard HTTP server.
type Config struct {
	Enabled    bool
	ListenAddr string
}

// Server exposes the reconciled store and the backend proxies as a JSON API
// for the operator UI.
type Server struct {
	cfg        Config
	log        *logger.Log
	sess       *session.Session
	sampler    *resourceSampler
	httpServer *http.Server
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When the dashboard is disabled the returned server will be nil.
func NewServer(cfg Config, sess *session.Session) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.ListenAddr = normalizeAddress(cfg.ListenAddr)
	log := logger.GetLogger()

	return &Server{
		cfg:     cfg,
		log:     log,
		sess:    sess,
		sampler: newResourceSampler(120, 5*time.Second, "/", log),
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context
// is cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.sampler.start(ctx)
	defer s.sampler.stop()

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.buildRouter(),
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"addr": s.cfg.ListenAddr}).Info("starting dashboard server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to clear trusted proxies")
	}

	store := s.sess.Store()

	router.GET("/api/overview", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"data_mode": store.DataMode(),
			"connected": store.Connected(),
			"health":    store.Health(),
			"engine":    store.EngineState(),
		})
	})

	router.GET("/api/positions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"positions": store.Positions()})
	})

	router.GET("/api/risks", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"risks": store.RiskEvents()})
	})

	router.GET("/api/events", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": store.RecentEvents()})
	})

	router.GET("/api/audit", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"entries": store.AuditLog(c.Query("trace_id"))})
	})

	router.GET("/api/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"points": store.History()})
	})

	router.GET("/api/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alerts": store.Alerts()})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		tail := store.LogTail()
		switch c.Query("stream") {
		case "stdout":
			c.JSON(http.StatusOK, gin.H{"lines": tail.Stdout})
		case "stderr":
			c.JSON(http.StatusOK, gin.H{"lines": tail.Stderr})
		default:
			c.JSON(http.StatusOK, gin.H{"stdout": tail.Stdout, "stderr": tail.Stderr})
		}
	})

	router.GET("/api/traces", func(c *gin.Context) {
		query := backend.TraceQuery{
			Limit:     queryInt(c, "limit", 50),
			EventType: c.Query("event_type"),
			SinceMs:   queryInt64(c, "since_ms", 0),
		}
		c.JSON(http.StatusOK, gin.H{"traces": s.sess.Traces(c.Request.Context(), query)})
	})

	router.GET("/api/traces/:id", func(c *gin.Context) {
		timeline, ok := s.sess.TraceTimeline(c.Request.Context(), c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
			return
		}
		c.JSON(http.StatusOK, timeline)
	})

	router.GET("/api/summary", func(c *gin.Context) {
		summary, ok := s.sess.Summary(c.Request.Context(), queryInt(c, "window_sec", 3600))
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summary unavailable"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	router.POST("/api/kill-switch", func(c *gin.Context) {
		var req struct {
			IsOn   bool   `json:"is_on"`
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		auditID, err := s.sess.ToggleKillSwitch(c.Request.Context(), req.IsOn, req.Reason)
		if errors.Is(err, session.ErrToggleThrottled) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_id": auditID})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.sampler.snapshots()})
	})

	return router
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func queryInt64(c *gin.Context, name string, fallback int64) int64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// normalizeAddress accepts ":8080", "8080" and "host:8080" forms.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":8080"
	}
	if !strings.Contains(addr, ":") {
		return net.JoinHostPort("", addr)
	}
	return addr
}
