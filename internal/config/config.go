package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the sentinel engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Detector DetectorConfig `yaml:"detector"`
	Severity SeverityConfig `yaml:"severity"`
	Alerting AlertingConfig `yaml:"alerting"`
	Notify   NotifyConfig   `yaml:"notify"`
	Probes   ProbesConfig   `yaml:"probes"`
	Store    StoreConfig    `yaml:"store"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DetectorConfig tunes the outlier ensemble and feature windows.
type DetectorConfig struct {
	NumTrees        int `yaml:"numTrees"`
	MaxSamples      int `yaml:"maxSamples"`
	MaxTreeDepth    int `yaml:"maxTreeDepth"`
	ShortWindow     int `yaml:"shortWindow"`
	LongWindow      int `yaml:"longWindow"`
	MinTrainSamples int `yaml:"minTrainSamples"`
	// RetrainInterval of zero means retrain after every ingestion cycle.
	RetrainInterval time.Duration `yaml:"retrainInterval"`
}

// SeverityConfig holds the score-to-tier thresholds. More negative scores are
// more anomalous, so CriticalThreshold must not exceed HighThreshold.
type SeverityConfig struct {
	CriticalThreshold float64 `yaml:"criticalThreshold"`
	HighThreshold     float64 `yaml:"highThreshold"`
}

// AlertingConfig controls the dispatcher gate and the digest reporter.
type AlertingConfig struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	DigestInterval time.Duration `yaml:"digestInterval"`
	Recipients     []string      `yaml:"recipients"`
	QueueSize      int           `yaml:"queueSize"`
	SendTimeout    time.Duration `yaml:"sendTimeout"`
	RetryBackoff   time.Duration `yaml:"retryBackoff"`
}

// NotifyConfig selects and configures the outbound notification transport.
type NotifyConfig struct {
	Kind    string        `yaml:"kind"`
	Webhook WebhookConfig `yaml:"webhook"`
	SMTP    SMTPConfig    `yaml:"smtp"`
}

// WebhookConfig configures the JSON POST transport.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// SMTPConfig configures the email transport.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// ProbesConfig configures the built-in HTTP prober. Targets may be empty when
// samples arrive exclusively through the ingest API.
type ProbesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Targets  []ProbeTarget `yaml:"targets"`
}

// ProbeTarget names one monitored endpoint.
type ProbeTarget struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// StoreConfig controls optional Valkey-backed persistence of anomaly events
// and alert state.
type StoreConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	RecentEvents int           `yaml:"recentEvents"`
	EventTTL     time.Duration `yaml:"eventTTL"`
}

// Load initialises Config from a YAML file and optional environment
// overrides, then validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. This is the
// only fatal error class in the engine.
func (c *Config) Validate() error {
	if c.Severity.CriticalThreshold > c.Severity.HighThreshold {
		return fmt.Errorf("severity: criticalThreshold %.4f must not exceed highThreshold %.4f",
			c.Severity.CriticalThreshold, c.Severity.HighThreshold)
	}
	if c.Severity.HighThreshold >= 0 {
		return fmt.Errorf("severity: highThreshold %.4f must be negative", c.Severity.HighThreshold)
	}
	if c.Detector.ShortWindow <= 0 || c.Detector.LongWindow <= 0 {
		return fmt.Errorf("detector: window sizes must be positive")
	}
	if c.Detector.ShortWindow > c.Detector.LongWindow {
		return fmt.Errorf("detector: shortWindow %d exceeds longWindow %d",
			c.Detector.ShortWindow, c.Detector.LongWindow)
	}
	if c.Detector.NumTrees <= 0 {
		return fmt.Errorf("detector: numTrees must be positive")
	}
	if c.Detector.MaxSamples <= 1 {
		return fmt.Errorf("detector: maxSamples must exceed 1")
	}
	if c.Detector.RetrainInterval < 0 {
		return fmt.Errorf("detector: retrainInterval must not be negative")
	}
	if c.Alerting.Cooldown <= 0 {
		return fmt.Errorf("alerting: cooldown must be positive")
	}
	if c.Alerting.DigestInterval <= 0 {
		return fmt.Errorf("alerting: digestInterval must be positive")
	}
	switch c.Notify.Kind {
	case "stdout", "webhook", "smtp":
	default:
		return fmt.Errorf("notify: unknown kind %q", c.Notify.Kind)
	}
	if c.Notify.Kind == "webhook" && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("notify: webhook.url is required")
	}
	if c.Notify.Kind == "smtp" && c.Notify.SMTP.Host == "" {
		return fmt.Errorf("notify: smtp.host is required")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Detector: DetectorConfig{
			NumTrees:        100,
			MaxSamples:      256,
			ShortWindow:     10,
			LongWindow:      60,
			MinTrainSamples: 256,
			RetrainInterval: time.Minute,
		},
		Severity: SeverityConfig{
			CriticalThreshold: -0.15,
			HighThreshold:     -0.05,
		},
		Alerting: AlertingConfig{
			Cooldown:       600 * time.Second,
			DigestInterval: 300 * time.Second,
			QueueSize:      256,
			SendTimeout:    10 * time.Second,
			RetryBackoff:   2 * time.Second,
		},
		Notify: NotifyConfig{
			Kind:    "stdout",
			Webhook: WebhookConfig{Timeout: 10 * time.Second},
			SMTP:    SMTPConfig{Port: 587},
		},
		Probes: ProbesConfig{
			Enabled:  false,
			Interval: 15 * time.Second,
			Timeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			RecentEvents: 200,
			EventTTL:     24 * time.Hour,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_NUM_TREES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.NumTrees = n
		}
	}
	if v := os.Getenv("SENTINEL_MAX_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.MaxSamples = n
		}
	}
	if v := os.Getenv("SENTINEL_RETRAIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.RetrainInterval = d
		}
	}
	if v := os.Getenv("SENTINEL_CRITICAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Severity.CriticalThreshold = f
		}
	}
	if v := os.Getenv("SENTINEL_HIGH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Severity.HighThreshold = f
		}
	}
	if v := os.Getenv("SENTINEL_ALERT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.Cooldown = d
		}
	}
	if v := os.Getenv("SENTINEL_DIGEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.DigestInterval = d
		}
	}
	if v := os.Getenv("SENTINEL_ALERT_RECIPIENTS"); v != "" {
		parts := strings.Split(v, ",")
		recipients := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				recipients = append(recipients, p)
			}
		}
		cfg.Alerting.Recipients = recipients
	}
	if v := os.Getenv("SENTINEL_NOTIFY_KIND"); v != "" {
		cfg.Notify.Kind = v
	}
	if v := os.Getenv("SENTINEL_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
	}
	if v := os.Getenv("SENTINEL_SMTP_HOST"); v != "" {
		cfg.Notify.SMTP.Host = v
	}
	if v := os.Getenv("SENTINEL_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Notify.SMTP.Port = n
		}
	}
	if v := os.Getenv("SENTINEL_SMTP_USERNAME"); v != "" {
		cfg.Notify.SMTP.Username = v
	}
	if v := os.Getenv("SENTINEL_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTP.Password = v
	}
	if v := os.Getenv("SENTINEL_SMTP_FROM"); v != "" {
		cfg.Notify.SMTP.From = v
	}
	if v := os.Getenv("SENTINEL_PROBES_ENABLED"); v != "" {
		cfg.Probes.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SENTINEL_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Probes.Interval = d
		}
	}
	if v := os.Getenv("SENTINEL_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SENTINEL_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("SENTINEL_STORE_USERNAME"); v != "" {
		cfg.Store.Username = v
	}
	if v := os.Getenv("SENTINEL_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("SENTINEL_STORE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_STORE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Store.TLS = true
	}
}
