package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Alijeyrad/clinicq_backend/pkg/constants"
	"github.com/spf13/viper"
)

var GlobalConf *Config

func ReadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(constants.ConfigName)
	v.SetConfigType(constants.ConfigFormat)
	v.AddConfigPath(configPath)

	// Allow env vars to override config values.
	// e.g. CLINICQ_DATABASE_HOST overrides database.host
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Read the config file (optional in Docker environments)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %v", err)
		}
		if os.Getenv(constants.EnvPrefix+"_DATABASE_HOST") == "" {
			return nil, fmt.Errorf("config file not found in %q and no environment overrides set", configPath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func MustReadConfig(path string) *Config {
	config, err := ReadConfig(path)
	if err != nil {
		panic(err)
	}

	GlobalConf = config

	return config
}

// SetDefaults registers the values used when neither the file nor the
// environment provides one.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.rate_limit.requests_per_minute", 60)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("queue.timezone", "Asia/Tehran")
	v.SetDefault("queue.slot_minutes", 15)
	v.SetDefault("queue.default_quota", 20)
	v.SetDefault("queue.number_padding", 3)
	v.SetDefault("queue.legacy_anchor", "08:00")
	v.SetDefault("queue.overdue_penalty_minutes", 5)
	v.SetDefault("queue.max_extra_delay_minutes", 0)
	v.SetDefault("queue.lock_timeout_ms", 3000)
	v.SetDefault("queue.lock_backend", "redis")
	v.SetDefault("queue.sweep_enabled", true)
	v.SetDefault("queue.sweep_cron", "* * * * *")
	v.SetDefault("queue.reminder_timeout_seconds", 10)

	v.SetDefault("sms.default_region", "IR")

	v.SetDefault("observability.service_name", constants.AppName)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
