package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Opsflow   OpsflowConfig   `yaml:"opsflow"`
	Backend   BackendConfig   `yaml:"backend"`
	Stream    StreamConfig    `yaml:"stream"`
	Poller    PollerConfig    `yaml:"poller"`
	Store     StoreConfig     `yaml:"store"`
	Control   ControlConfig   `yaml:"control"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type OpsflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type BackendConfig struct {
	BaseURL        string               `yaml:"base_url"`
	OpsToken       string               `yaml:"ops_token"`
	Timeout        time.Duration        `yaml:"timeout"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type StreamConfig struct {
	URL               string        `yaml:"url"`
	FrameBuffer       int           `yaml:"frame_buffer"`
	BackoffFloor      time.Duration `yaml:"backoff_floor"`
	BackoffCeiling    time.Duration `yaml:"backoff_ceiling"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	HistoryHours int           `yaml:"history_hours"`
	AlertsLimit  int           `yaml:"alerts_limit"`
	LogLines     int           `yaml:"log_lines"`
	RiskLimit    int           `yaml:"risk_limit"`
}

type StoreConfig struct {
	RiskEventCap   int `yaml:"risk_event_cap"`
	RecentEventCap int `yaml:"recent_event_cap"`
	AuditLogCap    int `yaml:"audit_log_cap"`
}

type ControlConfig struct {
	TogglePerMinute int `yaml:"toggle_per_minute"`
	ToggleBurst     int `yaml:"toggle_burst"`
}

type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type PrometheusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type CloudWatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Region    string        `yaml:"region"`
	Namespace string        `yaml:"namespace"`
	Interval  time.Duration `yaml:"interval"`
}

type JournalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Dir             string        `yaml:"dir"`
	MaxSegmentBytes int64         `yaml:"max_segment_bytes"`
	RotateInterval  time.Duration `yaml:"rotate_interval"`
	S3              S3Config      `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Stream: StreamConfig{
			FrameBuffer:       256,
			BackoffFloor:      time.Second,
			BackoffCeiling:    30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Poller: PollerConfig{
			Interval:     10 * time.Second,
			HistoryHours: 168,
			AlertsLimit:  50,
			LogLines:     200,
			RiskLimit:    20,
		},
		Store: StoreConfig{
			RiskEventCap:   20,
			RecentEventCap: 200,
			AuditLogCap:    1000,
		},
		Control: ControlConfig{
			TogglePerMinute: 6,
			ToggleBurst:     2,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override secrets from environment variables if available
	if v := os.Getenv("OPS_API_TOKEN"); v != "" {
		config.Backend.OpsToken = strings.TrimSpace(v)
	}
	if config.Journal.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Journal.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Journal.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Journal.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Journal.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(config.Backend.BaseURL), "/")
	config.Stream.URL = strings.TrimSpace(config.Stream.URL)
	config.Journal.S3.Bucket = strings.TrimSpace(config.Journal.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Opsflow.Name == "" {
		return fmt.Errorf("opsflow.name is required")
	}

	if cfg.Opsflow.Version == "" {
		return fmt.Errorf("opsflow.version is required")
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if cfg.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if !strings.HasPrefix(cfg.Stream.URL, "ws://") && !strings.HasPrefix(cfg.Stream.URL, "wss://") {
		return fmt.Errorf("stream.url must use the ws:// or wss:// scheme")
	}
	if cfg.Stream.BackoffFloor <= 0 {
		return fmt.Errorf("stream.backoff_floor must be greater than 0")
	}
	if cfg.Stream.BackoffCeiling < cfg.Stream.BackoffFloor {
		return fmt.Errorf("stream.backoff_ceiling must be at least stream.backoff_floor")
	}
	if cfg.Stream.BackoffMultiplier <= 1 {
		return fmt.Errorf("stream.backoff_multiplier must be greater than 1")
	}
	if cfg.Stream.FrameBuffer <= 0 {
		return fmt.Errorf("stream.frame_buffer must be greater than 0")
	}

	if cfg.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than 0")
	}

	if cfg.Store.RiskEventCap <= 0 {
		return fmt.Errorf("store.risk_event_cap must be greater than 0")
	}
	if cfg.Store.RecentEventCap <= 0 {
		return fmt.Errorf("store.recent_event_cap must be greater than 0")
	}
	if cfg.Store.AuditLogCap <= 0 {
		return fmt.Errorf("store.audit_log_cap must be greater than 0")
	}

	if cfg.Control.TogglePerMinute <= 0 {
		return fmt.Errorf("control.toggle_per_minute must be greater than 0")
	}
	if cfg.Control.ToggleBurst <= 0 {
		return fmt.Errorf("control.toggle_burst must be greater than 0")
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.ListenAddr == "" {
		return fmt.Errorf("dashboard.listen_addr is required when the dashboard is enabled")
	}

	if cfg.Metrics.Prometheus.Enabled && cfg.Metrics.Prometheus.ListenAddr == "" {
		return fmt.Errorf("metrics.prometheus.listen_addr is required when prometheus is enabled")
	}
	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Region == "" {
			return fmt.Errorf("metrics.cloudwatch.region is required when cloudwatch is enabled")
		}
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when cloudwatch is enabled")
		}
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.Dir == "" {
			return fmt.Errorf("journal.dir is required when the journal is enabled")
		}
		if cfg.Journal.S3.Enabled && cfg.Journal.S3.Bucket == "" {
			return fmt.Errorf("journal.s3.bucket is required when journal S3 upload is enabled")
		}
	}

	return nil
}
