// Package config loads application configuration from a YAML file with
// environment variable overrides. A .env file, when present, is loaded
// before the environment is read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/platform/database"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	ReadTimeout       int      `yaml:"read_timeout_seconds"`
	WriteTimeout      int      `yaml:"write_timeout_seconds"`
}

// AuthConfig controls token issuance and the bootstrap account.
type AuthConfig struct {
	Secret            string `yaml:"secret"`
	TokenTTLMinutes   int    `yaml:"token_ttl_minutes"`
	BootstrapUser     string `yaml:"bootstrap_user"`
	BootstrapPassword string `yaml:"bootstrap_password"`
}

// AlertingConfig controls alert fan-out.
type AlertingConfig struct {
	RedisAddr          string `yaml:"redis_addr"`
	WebhookURL         string `yaml:"webhook_url"`
	DedupWindowMinutes int    `yaml:"dedup_window_minutes"`
}

// SchedulerConfig controls the polling intervals of the background runners.
type SchedulerConfig struct {
	RuleIntervalSeconds     int `yaml:"rule_interval_seconds"`
	PipelineIntervalSeconds int `yaml:"pipeline_interval_seconds"`
}

// LoggingConfig mirrors the logger package configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  database.Config `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the configuration used when no file or environment is
// provided. The auth secret has no default and must be supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerSecond: 50,
			Burst:             100,
			ReadTimeout:       30,
			WriteTimeout:      30,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 1440,
		},
		Alerting: AlertingConfig{
			DedupWindowMinutes: 15,
		},
		Scheduler: SchedulerConfig{
			RuleIntervalSeconds:     30,
			PipelineIntervalSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file at path, then applies environment
// overrides. An empty path skips the file and uses defaults plus
// environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the application cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth secret is required (BACKOFFICE_AUTH_SECRET)")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		return fmt.Errorf("database driver is required when dsn is set")
	}
	return nil
}

// TokenTTL returns the token lifetime as a duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// DedupWindow returns the alert suppression window.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.Alerting.DedupWindowMinutes) * time.Minute
}

// RuleInterval returns the rule scheduler polling interval.
func (c Config) RuleInterval() time.Duration {
	return time.Duration(c.Scheduler.RuleIntervalSeconds) * time.Second
}

// PipelineInterval returns the pipeline runner polling interval.
func (c Config) PipelineInterval() time.Duration {
	return time.Duration(c.Scheduler.PipelineIntervalSeconds) * time.Second
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "BACKOFFICE_ADDR")
	if v := os.Getenv("BACKOFFICE_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}
	setInt(&cfg.Server.RequestsPerSecond, "BACKOFFICE_RATE_LIMIT")
	setInt(&cfg.Server.Burst, "BACKOFFICE_RATE_BURST")

	setString(&cfg.Database.Driver, "BACKOFFICE_DB_DRIVER")
	setString(&cfg.Database.DSN, "BACKOFFICE_DB_DSN")
	setInt(&cfg.Database.MaxOpenConns, "BACKOFFICE_DB_MAX_OPEN")
	setInt(&cfg.Database.MaxIdleConns, "BACKOFFICE_DB_MAX_IDLE")

	setString(&cfg.Auth.Secret, "BACKOFFICE_AUTH_SECRET")
	setInt(&cfg.Auth.TokenTTLMinutes, "BACKOFFICE_TOKEN_TTL_MINUTES")
	setString(&cfg.Auth.BootstrapUser, "BACKOFFICE_BOOTSTRAP_USER")
	setString(&cfg.Auth.BootstrapPassword, "BACKOFFICE_BOOTSTRAP_PASSWORD")

	setString(&cfg.Alerting.RedisAddr, "BACKOFFICE_REDIS_ADDR")
	setString(&cfg.Alerting.WebhookURL, "BACKOFFICE_ALERT_WEBHOOK_URL")
	setInt(&cfg.Alerting.DedupWindowMinutes, "BACKOFFICE_ALERT_DEDUP_MINUTES")

	setInt(&cfg.Scheduler.RuleIntervalSeconds, "BACKOFFICE_RULE_INTERVAL_SECONDS")
	setInt(&cfg.Scheduler.PipelineIntervalSeconds, "BACKOFFICE_PIPELINE_INTERVAL_SECONDS")

	setString(&cfg.Logging.Level, "BACKOFFICE_LOG_LEVEL")
	setString(&cfg.Logging.Format, "BACKOFFICE_LOG_FORMAT")
	setString(&cfg.Logging.Output, "BACKOFFICE_LOG_OUTPUT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
