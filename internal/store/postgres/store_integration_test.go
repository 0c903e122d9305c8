package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alijeyrad/clinicq_backend/internal/lock"
	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/pkg/database"
)

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := conn.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		conn.Close(ctx)
		t.Fatalf("create schema: %v", err)
	}
	conn.Close(ctx)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	names, err := database.Migrations()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	for _, name := range names {
		body, err := database.ReadMigration(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}

	t.Cleanup(func() {
		pool.Close()
		if conn, err := pgx.Connect(context.Background(), dsn); err == nil {
			_, _ = conn.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
			conn.Close(context.Background())
		}
	})
	return New(pool, time.UTC, 2*time.Second), pool
}

func TestConcurrentBookingIntegration(t *testing.T) {
	ctx := context.Background()
	st, pool := setupTestStore(t, ctx)

	serviceID, sessionID := uuid.New(), uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO services (id, name, prefix, padding) VALUES ($1, 'General', 'A', 3)`, serviceID); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO sessions (id, service_id, doctor_name, weekdays, start_minute, end_minute)
		VALUES ($1, $2, 'Dr. Rahimi', '{0,1,2,3,4,5,6}', 480, 720)
	`, sessionID, serviceID); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	date := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, time.UTC)
	if _, err := pool.Exec(ctx, `INSERT INTO quotas (id, session_id, date, total) VALUES ($1, $2, $3::date, 5)`,
		uuid.New(), sessionID, date.Format(time.DateOnly)); err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	opts := queue.DefaultOptions()
	svc := queue.New(st, lock.NewLocal(5*time.Second), queue.SystemClock{Location: time.UTC}, nil, opts)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool)
		full    int
	)
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := svc.Book(ctx, queue.BookRequest{ServiceID: serviceID, SessionID: &sessionID, Date: date})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if numbers[tk.Number] {
					t.Errorf("number %s issued twice", tk.Number)
				}
				numbers[tk.Number] = true
			case errors.Is(err, queue.ErrQuotaFull):
				full++
			default:
				t.Errorf("Book: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(numbers) != 5 || full != 7 {
		t.Fatalf("booked %d, full %d; want 5 and 7", len(numbers), full)
	}

	var used int
	if err := pool.QueryRow(ctx, `SELECT used FROM quotas WHERE session_id = $1`, sessionID).Scan(&used); err != nil {
		t.Fatalf("read quota: %v", err)
	}
	if used != 5 {
		t.Errorf("quota used = %d, want 5", used)
	}

	scope := queue.Scope{ServiceID: serviceID, SessionID: &sessionID, Date: date}
	var lastSeq int
	if err := pool.QueryRow(ctx, `SELECT last_seq FROM scope_sequences WHERE scope_key = $1`, scope.Key()).Scan(&lastSeq); err != nil {
		t.Fatalf("read scope sequence: %v", err)
	}
	if lastSeq != 5 {
		t.Errorf("last_seq = %d, want 5", lastSeq)
	}
}
