package database

import (
	"strings"
	"testing"
	"time"

	"github.com/Alijeyrad/clinicq_backend/config"
)

func TestConfig_DSN(t *testing.T) {
	cfg := FromCentralConfig(config.DatabaseConfig{
		Host: "db", Port: 5433, User: "clinic", Password: "secret", DBName: "clinicq", SSLMode: "disable",
	})

	want := "host=db port=5433 user=clinic password=secret dbname=clinicq sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestConfig_Durations(t *testing.T) {
	var cfg Config
	if cfg.ConnMaxLifetime() != 5*time.Minute {
		t.Errorf("ConnMaxLifetime default = %v", cfg.ConnMaxLifetime())
	}
	if cfg.SlowQueryThreshold() != 200*time.Millisecond {
		t.Errorf("SlowQueryThreshold default = %v", cfg.SlowQueryThreshold())
	}

	cfg.ConnMaxLifetimeMin = 2
	cfg.SlowQueryThresholdMs = 50
	if cfg.ConnMaxLifetime() != 2*time.Minute || cfg.SlowQueryThreshold() != 50*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.ConnMaxLifetime(), cfg.SlowQueryThreshold())
	}
}

func TestMigrations_Embedded(t *testing.T) {
	names, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no embedded migrations")
	}

	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read %s: %v", names[0], err)
	}
	for _, table := range []string{"services", "sessions", "patients", "quotas", "tickets"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("first migration does not create %s", table)
		}
	}

	last := names[len(names)-1]
	body, err = ReadMigration(last)
	if err != nil {
		t.Fatalf("read %s: %v", last, err)
	}
	if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS scope_sequences") {
		t.Errorf("%s does not create scope_sequences", last)
	}
}
