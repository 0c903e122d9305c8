package redis

import (
	"testing"
	"time"

	"github.com/Alijeyrad/clinicq_backend/config"
)

func TestFromCentralConfig(t *testing.T) {
	tests := []struct {
		name string
		in   config.RedisConfig
		want Config
	}{
		{
			name: "defaults",
			in:   config.RedisConfig{},
			want: DefaultConfig(),
		},
		{
			name: "overrides",
			in: config.RedisConfig{
				Addr:               "redis:6380",
				DB:                 2,
				PoolSize:           50,
				DialTimeoutSeconds: 1,
				ReadTimeoutSeconds: -1,
			},
			want: Config{
				Addr:         "redis:6380",
				DB:           2,
				PoolSize:     50,
				MinIdleConns: 2,
				DialTimeout:  time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromCentralConfig(tt.in); got != tt.want {
				t.Errorf("FromCentralConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewRedis_EmptyAddr(t *testing.T) {
	if _, err := NewRedis(Config{}); err == nil {
		t.Error("expected error for empty addr")
	}
}
