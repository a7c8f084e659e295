package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"opsflow/config"
	"opsflow/internal/backend"
	"opsflow/internal/dashboard"
	"opsflow/internal/journal"
	"opsflow/internal/metrics"
	"opsflow/internal/poller"
	"opsflow/internal/session"
	"opsflow/internal/state"
	"opsflow/logger"
	"opsflow/reader"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Opsflow.Name,
		"version": cfg.Opsflow.Version,
	}).Info("starting opsflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Prometheus.Enabled {
		metrics.Init(cfg.Metrics.Prometheus.ListenAddr)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	store := state.NewStore(cfg.Store.RiskEventCap, cfg.Store.RecentEventCap, cfg.Store.AuditLogCap)

	client := backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		OpsToken:        cfg.Backend.OpsToken,
		Timeout:         cfg.Backend.Timeout,
		MaxIdleConns:    cfg.Backend.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: cfg.Backend.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: cfg.Backend.ConnectionPool.IdleConnTimeout,
	})

	transport := reader.NewTransport(reader.Config{
		URL:               cfg.Stream.URL,
		BackoffFloor:      cfg.Stream.BackoffFloor,
		BackoffCeiling:    cfg.Stream.BackoffCeiling,
		BackoffMultiplier: cfg.Stream.BackoffMultiplier,
		FrameBuffer:       cfg.Stream.FrameBuffer,
	}, nil)

	p := poller.NewPoller(poller.Config{
		Interval:     cfg.Poller.Interval,
		HistoryHours: cfg.Poller.HistoryHours,
		AlertsLimit:  cfg.Poller.AlertsLimit,
		LogLines:     cfg.Poller.LogLines,
		RiskLimit:    cfg.Poller.RiskLimit,
	}, client, store)

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.NewJournal(journal.Config{
			Dir:             cfg.Journal.Dir,
			MaxSegmentBytes: cfg.Journal.MaxSegmentBytes,
			RotateInterval:  cfg.Journal.RotateInterval,
			S3Enabled:       cfg.Journal.S3.Enabled,
			S3Bucket:        cfg.Journal.S3.Bucket,
			S3Region:        cfg.Journal.S3.Region,
			S3Prefix:        cfg.Journal.S3.Prefix,
			AccessKeyID:     cfg.Journal.S3.AccessKeyID,
			SecretAccessKey: cfg.Journal.S3.SecretAccessKey,
		})
		if err != nil {
			log.WithError(err).Error("Failed to open frame journal")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("frame journal disabled")
	}

	sess := session.NewSession(session.Config{
		TogglePerMinute:    cfg.Control.TogglePerMinute,
		ToggleBurst:        cfg.Control.ToggleBurst,
		CloudWatchInterval: cfg.Metrics.CloudWatch.Interval,
	}, store, transport, p, client, j)

	if err := sess.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start session")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	dash, err := dashboard.NewServer(dashboard.Config{
		Enabled:    cfg.Dashboard.Enabled,
		ListenAddr: cfg.Dashboard.ListenAddr,
	}, sess)
	if err != nil {
		log.WithError(err).Error("Failed to create dashboard server")
		os.Exit(1)
	}
	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Warn("dashboard server failed")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()
	sess.Stop()
	wg.Wait()

	log.Info("opsflow stopped")
}
