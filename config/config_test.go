package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		t.Fatalf("unmarshal defaults: %v", err)
	}
	return &c
}

func TestDefaultsValidate(t *testing.T) {
	c := defaultConfig(t)
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if c.Queue.LockTimeout().Milliseconds() != 3000 {
		t.Errorf("LockTimeout = %v, want 3s", c.Queue.LockTimeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad timezone", func(c *Config) { c.Queue.Timezone = "Mars/Olympus" }, "queue.timezone"},
		{"zero slot", func(c *Config) { c.Queue.SlotMinutes = 0 }, "queue.slot_minutes"},
		{"padding too wide", func(c *Config) { c.Queue.NumberPadding = 7 }, "queue.number_padding"},
		{"negative max extra", func(c *Config) { c.Queue.MaxExtraDelayMinutes = -1 }, "queue.max_extra_delay_minutes"},
		{"legacy anchor", func(c *Config) { c.Queue.LegacyAnchor = "8am" }, "queue.legacy_anchor"},
		{"lock backend", func(c *Config) { c.Queue.LockBackend = "etcd" }, "queue.lock_backend"},
		{"sweep cron", func(c *Config) { c.Queue.SweepCron = "every minute" }, "queue.sweep_cron"},
		{"sms key", func(c *Config) { c.SMS.Enabled = true }, "sms.smsir.api_key"},
		{"email from", func(c *Config) { c.Email.Enabled = true }, "email.from"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig(t)
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
queue:
  slot_minutes: 10
  lock_backend: local
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CLINICQ_QUEUE_DEFAULT_QUOTA", "35")

	c, err := ReadConfig(dir)
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if c.Server.Port != 9090 || c.Queue.SlotMinutes != 10 || c.Queue.LockBackend != "local" {
		t.Errorf("file values not applied: %+v", c.Queue)
	}
	if c.Queue.DefaultQuota != 35 {
		t.Errorf("DefaultQuota = %d, want 35 from env", c.Queue.DefaultQuota)
	}
	if c.Queue.Timezone != "Asia/Tehran" {
		t.Errorf("Timezone = %q, want default", c.Queue.Timezone)
	}
}

func TestReadConfig_Missing(t *testing.T) {
	t.Setenv("CLINICQ_DATABASE_HOST", "")
	if _, err := ReadConfig(t.TempDir()); err == nil {
		t.Error("expected error without config file or env overrides")
	}
}
