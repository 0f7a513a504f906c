package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	PerPageTime      time.Duration `yaml:"per_page_time"`
	ColorMultiplier  float64       `yaml:"color_multiplier"`
	JobSetupTime     time.Duration `yaml:"job_setup_time"`
	FaultRetryBudget int           `yaml:"fault_retry_budget"`
}

type AlertsConfig struct {
	ScanInterval   time.Duration `yaml:"scan_interval"`
	LowPaperRatio  float64       `yaml:"low_paper_ratio"`
	LowInkPercent  float64       `yaml:"low_ink_percent"`
	CriticalInkPct float64       `yaml:"critical_ink_percent"`
	SLAGrace       time.Duration `yaml:"sla_grace"`
	SLACritical    time.Duration `yaml:"sla_critical"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type WebhooksConfig struct {
	RetryCount  int               `yaml:"retry_count"`
	RetryDelay  time.Duration     `yaml:"retry_delay"`
	Timeout     time.Duration     `yaml:"timeout"`
	WorkerCount int               `yaml:"worker_count"`
	QueueSize   int               `yaml:"queue_size"`
	Endpoints   []WebhookEndpoint `yaml:"endpoints"`
}

type WebhookEndpoint struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/fleet.db",
		},
		Scheduler: SchedulerConfig{
			PerPageTime:      4 * time.Second,
			ColorMultiplier:  1.5,
			JobSetupTime:     15 * time.Second,
			FaultRetryBudget: 1,
		},
		Alerts: AlertsConfig{
			ScanInterval:   15 * time.Second,
			LowPaperRatio:  0.10,
			LowInkPercent:  10,
			CriticalInkPct: 2,
			SLAGrace:       2 * time.Minute,
			SLACritical:    10 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Broker:      "localhost:1883",
			ClientID:    "fleetd",
			TopicPrefix: "printdesk/telemetry",
		},
		Webhooks: WebhooksConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 3,
			QueueSize:   100,
		},
		Auth: AuthConfig{
			TokenDuration: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLEET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("FLEET_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FLEET_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("FLEET_MQTT_BROKER"); v != "" {
		cfg.Telemetry.Broker = v
		cfg.Telemetry.Enabled = true
	}

	if v := os.Getenv("FLEET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Scheduler.PerPageTime <= 0 {
		return fmt.Errorf("per-page time must be positive")
	}

	if c.Scheduler.ColorMultiplier < 1 {
		return fmt.Errorf("color multiplier must be at least 1, got %.2f", c.Scheduler.ColorMultiplier)
	}

	if c.Scheduler.JobSetupTime < 0 {
		return fmt.Errorf("job setup time must be non-negative")
	}

	if c.Scheduler.FaultRetryBudget < 0 {
		return fmt.Errorf("fault retry budget must be non-negative")
	}

	if c.Alerts.ScanInterval <= 0 {
		return fmt.Errorf("alert scan interval must be positive")
	}

	if c.Alerts.LowPaperRatio <= 0 || c.Alerts.LowPaperRatio >= 1 {
		return fmt.Errorf("low paper ratio must be between 0 and 1, got %.2f", c.Alerts.LowPaperRatio)
	}

	if c.Alerts.CriticalInkPct > c.Alerts.LowInkPercent {
		return fmt.Errorf("critical ink threshold must not exceed the low ink threshold")
	}

	if c.Alerts.SLAGrace < 0 || c.Alerts.SLACritical < c.Alerts.SLAGrace {
		return fmt.Errorf("sla margins must satisfy 0 <= grace <= critical")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	if c.Telemetry.Enabled && c.Telemetry.Broker == "" {
		return fmt.Errorf("telemetry broker is required when telemetry is enabled")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}
