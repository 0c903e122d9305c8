package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // queue.timezone must resolve on minimal images

	"github.com/robfig/cron/v3"
)

type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Server        ServerConfig        `mapstructure:"server"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Email         EmailConfig         `mapstructure:"email"`
	SMS           SMSConfig           `mapstructure:"sms"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Nats          NatsConfig          `mapstructure:"nats"`
}

type NatsConfig struct {
	// URL may be left empty; reminders are then delivered in-process.
	URL string `mapstructure:"url" yaml:"url"`
}

type DatabaseConfig struct {
	Host       string                  `mapstructure:"host"`
	Port       int                     `mapstructure:"port"`
	User       string                  `mapstructure:"user"`
	Password   string                  `mapstructure:"password"`
	DBName     string                  `mapstructure:"dbname"`
	SSLMode    string                  `mapstructure:"sslmode"`
	Pool       DatabasePoolConfig      `mapstructure:"pool"`
	Migrations DatabaseMigrationConfig `mapstructure:"migrations"`
	Logging    DatabaseLoggingConfig   `mapstructure:"logging"`
}

type DatabasePoolConfig struct {
	MaxOpenConns       int `mapstructure:"max_open_conns"`
	MaxIdleConns       int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int `mapstructure:"conn_max_lifetime_minutes"`
}

type DatabaseMigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type DatabaseLoggingConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	SlowQueryThresholdMs int  `mapstructure:"slow_query_threshold_ms"`
}

type RedisConfig struct {
	Addr                string `mapstructure:"addr"`
	DB                  int    `mapstructure:"db"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	PoolSize            int    `mapstructure:"pool_size"`
	MinIdleConns        int    `mapstructure:"min_idle_conns"`
	DialTimeoutSeconds  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type ServerConfig struct {
	Port           int             `mapstructure:"port"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	Environment    string          `mapstructure:"environment"`
	Domain         string          `mapstructure:"domain"`
	Databases      []string        `mapstructure:"databases"`
	CORS           CORSConfig      `mapstructure:"cors"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAgeSeconds    int      `mapstructure:"max_age_seconds"`
}

// QueueConfig tunes the ticket allocator and the estimation engine.
type QueueConfig struct {
	Timezone               string `mapstructure:"timezone"`
	SlotMinutes            int    `mapstructure:"slot_minutes"`
	DefaultQuota           int    `mapstructure:"default_quota"`
	NumberPadding          int    `mapstructure:"number_padding"`
	LegacyAnchor           string `mapstructure:"legacy_anchor"` // "HH:MM"
	OverduePenaltyMinutes  int    `mapstructure:"overdue_penalty_minutes"`
	MaxExtraDelayMinutes   int    `mapstructure:"max_extra_delay_minutes"` // 0 = uncapped
	LockTimeoutMs          int    `mapstructure:"lock_timeout_ms"`
	LockBackend            string `mapstructure:"lock_backend"` // redis, local
	SweepEnabled           bool   `mapstructure:"sweep_enabled"`
	SweepCron              string `mapstructure:"sweep_cron"`
	ReminderTimeoutSeconds int    `mapstructure:"reminder_timeout_seconds"`
}

// LockTimeout returns the bounded wait for a scope lock.
func (c QueueConfig) LockTimeout() time.Duration {
	if c.LockTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

type EmailConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UseTLS         bool   `mapstructure:"use_tls"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SMSConfig struct {
	Enabled       bool        `mapstructure:"enabled"`
	DefaultRegion string      `mapstructure:"default_region"` // e.g. "IR"
	SMSIR         SMSIRConfig `mapstructure:"smsir"`
}

type SMSIRConfig struct {
	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	TemplateID string `mapstructure:"template_id"`
}

type ObservabilityConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string       `mapstructure:"level"`  // debug, info, warn, error
	Format string       `mapstructure:"format"` // text, json
	Output OutputConfig `mapstructure:"output"`
}

type OutputConfig struct {
	Stdout bool          `mapstructure:"stdout"`
	File   FileLogConfig `mapstructure:"file"`
	Loki   LokiConfig    `mapstructure:"loki"`
}

type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`        // e.g. "logs/app.log"
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // rotate after N MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LokiConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"` // e.g. "http://localhost:3100"
	Username string `mapstructure:"username"` // for Grafana Cloud basic auth
	Password string `mapstructure:"password"`
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if err := c.Queue.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SMS.Enabled && c.SMS.SMSIR.APIKey == "" {
		errs = append(errs, errors.New("sms.smsir.api_key is required when sms is enabled"))
	}
	if c.Email.Enabled && strings.TrimSpace(c.Email.From) == "" {
		errs = append(errs, errors.New("email.from is required when email is enabled"))
	}

	return errors.Join(errs...)
}

func (c QueueConfig) validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("queue.timezone: %w", err))
	}
	if c.SlotMinutes <= 0 {
		errs = append(errs, errors.New("queue.slot_minutes must be positive"))
	}
	if c.DefaultQuota <= 0 {
		errs = append(errs, errors.New("queue.default_quota must be positive"))
	}
	if c.NumberPadding < 1 || c.NumberPadding > 6 {
		errs = append(errs, errors.New("queue.number_padding must be between 1 and 6"))
	}
	if c.OverduePenaltyMinutes <= 0 {
		errs = append(errs, errors.New("queue.overdue_penalty_minutes must be positive"))
	}
	if c.MaxExtraDelayMinutes < 0 {
		errs = append(errs, errors.New("queue.max_extra_delay_minutes must not be negative"))
	}
	if !validClock(c.LegacyAnchor) {
		errs = append(errs, fmt.Errorf("queue.legacy_anchor %q is not HH:MM", c.LegacyAnchor))
	}
	switch c.LockBackend {
	case "redis", "local":
	default:
		errs = append(errs, fmt.Errorf("queue.lock_backend %q must be redis or local", c.LockBackend))
	}
	if c.SweepEnabled {
		if _, err := cron.ParseStandard(c.SweepCron); err != nil {
			errs = append(errs, fmt.Errorf("queue.sweep_cron: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validClock(s string) bool {
	t, err := time.Parse("15:04", s)
	return err == nil && t.Format("15:04") == s
}
