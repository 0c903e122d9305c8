package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type quotaManager struct {
	defaultTotal int
}

// Availability is the outcome of a capacity check. Quota is nil for legacy
// non-session bookings, which are never capacity limited.
type Availability struct {
	Available bool
	Quota     *Quota
}

// checkAvailability fetches or creates the quota of (session, date), brings
// Used in line with the tickets actually held, and reports whether one more
// booking fits.
func (m quotaManager) checkAvailability(ctx context.Context, repo Repository, sessionID *uuid.UUID, date time.Time) (Availability, error) {
	if sessionID == nil {
		return Availability{Available: true}, nil
	}

	q, err := m.getOrCreate(ctx, repo, *sessionID, date)
	if err != nil {
		return Availability{}, err
	}
	q, err = m.sync(ctx, repo, q)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Available: q.Available(), Quota: &q}, nil
}

func (m quotaManager) getOrCreate(ctx context.Context, repo Repository, sessionID uuid.UUID, date time.Time) (Quota, error) {
	q, found, err := repo.GetQuota(ctx, sessionID, date)
	if err != nil {
		return Quota{}, fmt.Errorf("get quota: %w", err)
	}
	if found {
		return q, nil
	}

	q, err = repo.CreateQuota(ctx, Quota{
		ID:        uuid.New(),
		SessionID: sessionID,
		Date:      date,
		Total:     m.defaultTotal,
		Active:    true,
	})
	if err != nil {
		return Quota{}, fmt.Errorf("create quota: %w", err)
	}
	return q, nil
}

// sync rewrites Used from the count of waiting, serving and finished tickets.
func (m quotaManager) sync(ctx context.Context, repo Repository, q Quota) (Quota, error) {
	n, err := repo.CountCountedTickets(ctx, q.SessionID, q.Date)
	if err != nil {
		return Quota{}, fmt.Errorf("count tickets: %w", err)
	}
	if n == q.Used {
		return q, nil
	}
	q.Used = n
	if err := repo.UpdateQuota(ctx, q); err != nil {
		return Quota{}, fmt.Errorf("update quota: %w", err)
	}
	return q, nil
}

// reserve re-checks capacity at reservation time and takes one slot.
func (m quotaManager) reserve(ctx context.Context, repo Repository, q *Quota) error {
	if q == nil {
		return nil
	}
	if !q.Available() {
		return ErrQuotaFull
	}
	q.Used++
	if err := repo.UpdateQuota(ctx, *q); err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}
	return nil
}

// release gives one slot of (session, date) back, never going below zero.
func (m quotaManager) release(ctx context.Context, repo Repository, sessionID *uuid.UUID, date time.Time) error {
	if sessionID == nil {
		return nil
	}
	q, found, err := repo.GetQuota(ctx, *sessionID, date)
	if err != nil {
		return fmt.Errorf("get quota: %w", err)
	}
	if !found {
		return nil
	}
	q.Used = max(0, q.Used-1)
	if err := repo.UpdateQuota(ctx, q); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// snapshot reads the capacity of (session, date) without creating anything.
func (m quotaManager) snapshot(ctx context.Context, repo Repository, sessionID uuid.UUID, date time.Time) (QuotaSnapshot, error) {
	total := m.defaultTotal
	active := true
	q, found, err := repo.GetQuota(ctx, sessionID, date)
	if err != nil {
		return QuotaSnapshot{}, fmt.Errorf("get quota: %w", err)
	}
	if found {
		total, active = q.Total, q.Active
	}

	used, err := repo.CountCountedTickets(ctx, sessionID, date)
	if err != nil {
		return QuotaSnapshot{}, fmt.Errorf("count tickets: %w", err)
	}

	remaining := max(0, total-used)
	if !active {
		remaining = 0
	}
	return QuotaSnapshot{
		Total:     total,
		Used:      used,
		Remaining: remaining,
		Status:    QuotaStatusOf(total, used),
	}, nil
}
