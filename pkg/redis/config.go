package redis

import (
	"cmp"
	"time"

	"github.com/Alijeyrad/clinicq_backend/config"
)

// Config holds Redis connection settings. The client backs the scope
// locks and the HTTP rate limiter.
type Config struct {
	Addr     string
	DB       int
	Username string
	Password string

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// FromCentralConfig converts central config.RedisConfig to package Config.
// Zero values fall back to DefaultConfig.
func FromCentralConfig(c config.RedisConfig) Config {
	def := DefaultConfig()
	return Config{
		Addr:         cmp.Or(c.Addr, def.Addr),
		DB:           c.DB,
		Username:     c.Username,
		Password:     c.Password,
		PoolSize:     cmp.Or(max(c.PoolSize, 0), def.PoolSize),
		MinIdleConns: cmp.Or(max(c.MinIdleConns, 0), def.MinIdleConns),
		DialTimeout:  cmp.Or(seconds(max(c.DialTimeoutSeconds, 0)), def.DialTimeout),
		ReadTimeout:  cmp.Or(seconds(max(c.ReadTimeoutSeconds, 0)), def.ReadTimeout),
		WriteTimeout: cmp.Or(seconds(max(c.WriteTimeoutSeconds, 0)), def.WriteTimeout),
	}
}
