// Package postgres implements queue.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
)

// SQLSTATE codes that mean "someone else holds what we need".
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

const patientActiveIndex = "tickets_patient_active_idx"

type Store struct {
	pool        *pgxpool.Pool
	loc         *time.Location
	lockTimeout time.Duration
}

// New returns a Store over pool. Dates are interpreted in loc; lockTimeout
// bounds how long a unit of work waits on a row or advisory lock.
func New(pool *pgxpool.Pool, loc *time.Location, lockTimeout time.Duration) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{pool: pool, loc: loc, lockTimeout: lockTimeout}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo queue.Repository) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if s.lockTimeout > 0 {
		if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return mapError(err)
		}
	}

	if err = fn(ctx, &repo{tx: tx, loc: s.loc}); err != nil {
		return mapError(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
		return fmt.Errorf("%w: %s", queue.ErrBusy, pgErr.Message)
	case codeUniqueViolation:
		if pgErr.ConstraintName == patientActiveIndex {
			return queue.ErrDuplicateActiveTicket
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

type repo struct {
	tx  pgx.Tx
	loc *time.Location
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

// date converts a scanned DATE column to midnight in the clinic's zone.
func (r *repo) date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

func (r *repo) instant(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.In(r.loc)
	return &v
}

func (r *repo) GetService(ctx context.Context, id uuid.UUID) (queue.ClinicService, error) {
	var svc queue.ClinicService
	err := r.tx.QueryRow(ctx, `
		SELECT id, name, prefix, padding, active
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.Prefix, &svc.Padding, &svc.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.ClinicService{}, queue.ErrServiceNotFound
	}
	return svc, err
}

const sessionColumns = `id, service_id, doctor_name, weekdays, start_minute, end_minute, active`

func scanSession(row pgx.Row) (queue.Session, error) {
	var (
		s          queue.Session
		days       []int32
		start, end int
	)
	if err := row.Scan(&s.ID, &s.ServiceID, &s.DoctorName, &days, &start, &end, &s.Active); err != nil {
		return queue.Session{}, err
	}
	s.Days = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		s.Days = append(s.Days, time.Weekday(d))
	}
	s.Start = queue.TimeOfDayFromMinutes(start)
	s.End = queue.TimeOfDayFromMinutes(end)
	return s, nil
}

func (r *repo) GetSession(ctx context.Context, id uuid.UUID) (queue.Session, error) {
	s, err := scanSession(r.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Session{}, queue.ErrSessionNotFound
	}
	return s, err
}

func (r *repo) ListSessions(ctx context.Context) ([]queue.Session, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY start_minute, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repo) GetPatient(ctx context.Context, id uuid.UUID) (queue.Patient, error) {
	var p queue.Patient
	err := r.tx.QueryRow(ctx, `
		SELECT id, name, phone, email
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Phone, &p.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Patient{}, queue.ErrPatientNotFound
	}
	return p, err
}

// ---------------------------------------------------------------------------
// Quotas
// ---------------------------------------------------------------------------

const quotaColumns = `id, session_id, date, total, used, active`

func (r *repo) scanQuota(row pgx.Row) (queue.Quota, error) {
	var q queue.Quota
	if err := row.Scan(&q.ID, &q.SessionID, &q.Date, &q.Total, &q.Used, &q.Active); err != nil {
		return queue.Quota{}, err
	}
	q.Date = r.date(q.Date)
	return q, nil
}

func (r *repo) GetQuota(ctx context.Context, sessionID uuid.UUID, date time.Time) (queue.Quota, bool, error) {
	q, err := r.scanQuota(r.tx.QueryRow(ctx, `
		SELECT `+quotaColumns+`
		FROM quotas
		WHERE session_id = $1 AND date = $2::date
		FOR UPDATE
	`, sessionID, day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Quota{}, false, nil
	}
	if err != nil {
		return queue.Quota{}, false, err
	}
	return q, true, nil
}

func (r *repo) CreateQuota(ctx context.Context, q queue.Quota) (queue.Quota, error) {
	if _, err := r.tx.Exec(ctx, `
		INSERT INTO quotas (id, session_id, date, total, used, active)
		VALUES ($1, $2, $3::date, $4, $5, $6)
		ON CONFLICT (session_id, date) DO NOTHING
	`, q.ID, q.SessionID, day(q.Date), q.Total, q.Used, q.Active); err != nil {
		return queue.Quota{}, err
	}

	stored, found, err := r.GetQuota(ctx, q.SessionID, q.Date)
	if err != nil {
		return queue.Quota{}, err
	}
	if !found {
		return queue.Quota{}, fmt.Errorf("quota for session %s on %s vanished after insert", q.SessionID, day(q.Date))
	}
	return stored, nil
}

func (r *repo) UpdateQuota(ctx context.Context, q queue.Quota) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE quotas SET total = $2, used = $3, active = $4
		WHERE id = $1
	`, q.ID, q.Total, q.Used, q.Active)
	return err
}

func (r *repo) ListQuotas(ctx context.Context, date time.Time) ([]queue.Quota, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+quotaColumns+`
		FROM quotas
		WHERE date = $1::date
		ORDER BY session_id
	`, day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Quota
	for rows.Next() {
		q, err := r.scanQuota(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *repo) CountCountedTickets(ctx context.Context, sessionID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
		SELECT count(*)
		FROM tickets
		WHERE session_id = $1 AND date = $2::date AND status IN ('waiting', 'serving', 'finished')
	`, sessionID, day(date)).Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// Tickets
// ---------------------------------------------------------------------------

const ticketColumns = `id, serial, service_id, session_id, patient_id, counter_id, number, seq, date, status,
	estimated_call_at, extra_delay_minutes, created_at, called_at, served_at, finished_at, canceled_at`

func (r *repo) scanTicket(row pgx.Row) (queue.Ticket, error) {
	var t queue.Ticket
	if err := row.Scan(
		&t.ID, &t.Serial, &t.ServiceID, &t.SessionID, &t.PatientID, &t.CounterID,
		&t.Number, &t.Seq, &t.Date, &t.Status,
		&t.EstimatedCallAt, &t.ExtraDelayMinutes, &t.CreatedAt,
		&t.CalledAt, &t.ServedAt, &t.FinishedAt, &t.CanceledAt,
	); err != nil {
		return queue.Ticket{}, err
	}
	t.Date = r.date(t.Date)
	t.CreatedAt = t.CreatedAt.In(r.loc)
	t.EstimatedCallAt = r.instant(t.EstimatedCallAt)
	t.CalledAt = r.instant(t.CalledAt)
	t.ServedAt = r.instant(t.ServedAt)
	t.FinishedAt = r.instant(t.FinishedAt)
	t.CanceledAt = r.instant(t.CanceledAt)
	return t, nil
}

func (r *repo) queryTickets(ctx context.Context, sql string, args ...any) ([]queue.Ticket, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Ticket
	for rows.Next() {
		t, err := r.scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repo) GetTicket(ctx context.Context, id uuid.UUID) (queue.Ticket, error) {
	t, err := r.scanTicket(r.tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Ticket{}, queue.ErrTicketNotFound
	}
	return t, err
}

func (r *repo) ListScopeTickets(ctx context.Context, scope queue.Scope) ([]queue.Ticket, error) {
	return r.queryTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE service_id = $1 AND session_id IS NOT DISTINCT FROM $2::uuid AND date = $3::date
		ORDER BY serial
	`, scope.ServiceID, scope.SessionID, day(scope.Date))
}

func (r *repo) ListWaitingScopes(ctx context.Context, date time.Time) ([]queue.Scope, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT DISTINCT service_id, session_id
		FROM tickets
		WHERE date = $1::date AND status = 'waiting'
		ORDER BY service_id, session_id
	`, day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scopeDate := r.date(date)
	var out []queue.Scope
	for rows.Next() {
		sc := queue.Scope{Date: scopeDate}
		if err := rows.Scan(&sc.ServiceID, &sc.SessionID); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *repo) ListWaitingByService(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]queue.Ticket, error) {
	return r.queryTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE service_id = $1 AND date = $2::date AND status = 'waiting'
		ORDER BY serial
	`, serviceID, day(date))
}

func (r *repo) ListActiveByPatient(ctx context.Context, patientID uuid.UUID, date time.Time) ([]queue.Ticket, error) {
	return r.queryTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE patient_id = $1 AND date = $2::date AND status IN ('waiting', 'serving')
		ORDER BY serial
	`, patientID, day(date))
}

func (r *repo) InsertTicket(ctx context.Context, t queue.Ticket) (queue.Ticket, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO tickets (
			id, service_id, session_id, patient_id, counter_id, number, seq, date, status,
			estimated_call_at, extra_delay_minutes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10, $11, $12)
		RETURNING serial
	`, t.ID, t.ServiceID, t.SessionID, t.PatientID, t.CounterID, t.Number, t.Seq, day(t.Date), t.Status,
		t.EstimatedCallAt, t.ExtraDelayMinutes, t.CreatedAt,
	).Scan(&t.Serial)
	if err != nil {
		return queue.Ticket{}, err
	}
	return t, nil
}

func (r *repo) UpdateTicket(ctx context.Context, t queue.Ticket) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE tickets SET
			counter_id = $2, status = $3, estimated_call_at = $4, extra_delay_minutes = $5,
			called_at = $6, served_at = $7, finished_at = $8, canceled_at = $9
		WHERE id = $1
	`, t.ID, t.CounterID, t.Status, t.EstimatedCallAt, t.ExtraDelayMinutes,
		t.CalledAt, t.ServedAt, t.FinishedAt, t.CanceledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrTicketNotFound
	}
	return nil
}

func (r *repo) ReissueTicket(ctx context.Context, t queue.Ticket) (queue.Ticket, error) {
	err := r.tx.QueryRow(ctx, `
		UPDATE tickets SET
			serial = nextval(pg_get_serial_sequence('tickets', 'serial')),
			service_id = $2, session_id = $3, number = $4, seq = $5, date = $6::date,
			estimated_call_at = $7, extra_delay_minutes = $8
		WHERE id = $1
		RETURNING serial
	`, t.ID, t.ServiceID, t.SessionID, t.Number, t.Seq, day(t.Date),
		t.EstimatedCallAt, t.ExtraDelayMinutes,
	).Scan(&t.Serial)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Ticket{}, queue.ErrTicketNotFound
	}
	if err != nil {
		return queue.Ticket{}, err
	}
	return t, nil
}

func (r *repo) LastSequence(ctx context.Context, scope queue.Scope) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `SELECT last_seq FROM scope_sequences WHERE scope_key = $1`, scope.Key()).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (r *repo) SaveSequence(ctx context.Context, scope queue.Scope, seq int) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO scope_sequences (scope_key, last_seq) VALUES ($1, $2)
		ON CONFLICT (scope_key) DO UPDATE SET last_seq = EXCLUDED.last_seq
	`, scope.Key(), seq)
	return err
}

// LockScope takes a transaction-scoped advisory lock keyed by the scope.
func (r *repo) LockScope(ctx context.Context, scope queue.Scope) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, scope.Key())
	return err
}
