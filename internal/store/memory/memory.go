// Package memory is an in-process queue.Store. Every unit of work runs
// against a private copy of the state that replaces the shared state only
// when the work succeeds.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
)

type state struct {
	services map[uuid.UUID]queue.ClinicService
	sessions map[uuid.UUID]queue.Session
	patients map[uuid.UUID]queue.Patient
	quotas   map[string]queue.Quota
	tickets  map[uuid.UUID]queue.Ticket
	seqs     map[string]int
	serial   int64
}

func (s *state) clone() *state {
	return &state{
		services: maps.Clone(s.services),
		sessions: maps.Clone(s.sessions),
		patients: maps.Clone(s.patients),
		quotas:   maps.Clone(s.quotas),
		tickets:  maps.Clone(s.tickets),
		seqs:     maps.Clone(s.seqs),
		serial:   s.serial,
	}
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		services: make(map[uuid.UUID]queue.ClinicService),
		sessions: make(map[uuid.UUID]queue.Session),
		patients: make(map[uuid.UUID]queue.Patient),
		quotas:   make(map[string]queue.Quota),
		tickets:  make(map[uuid.UUID]queue.Ticket),
		seqs:     make(map[string]int),
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo queue.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &repo{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// ---------------------------------------------------------------------------
// Seeding
// ---------------------------------------------------------------------------

func (s *Store) PutService(svc queue.ClinicService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.services[svc.ID] = svc
}

func (s *Store) PutSession(session queue.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.sessions[session.ID] = session
}

func (s *Store) PutPatient(p queue.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.patients[p.ID] = p
}

// PutQuota stores q as is, replacing any quota of the same (session, date).
func (s *Store) PutQuota(q queue.Quota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.quotas[quotaKey(q.SessionID, q.Date)] = q
}

// Tickets returns every stored ticket in issue order.
func (s *Store) Tickets() []queue.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedTickets(s.st.tickets, func(queue.Ticket) bool { return true })
}

// Quota returns the stored quota of (session, date), if any.
func (s *Store) Quota(sessionID uuid.UUID, date time.Time) (queue.Quota, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.st.quotas[quotaKey(sessionID, date)]
	return q, ok
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

type repo struct {
	st *state
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

func quotaKey(sessionID uuid.UUID, date time.Time) string {
	return sessionID.String() + "|" + day(date)
}

func sortedTickets(all map[uuid.UUID]queue.Ticket, keep func(queue.Ticket) bool) []queue.Ticket {
	var out []queue.Ticket
	for _, t := range all {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b queue.Ticket) int { return cmp.Compare(a.Serial, b.Serial) })
	return out
}

func (r *repo) GetService(_ context.Context, id uuid.UUID) (queue.ClinicService, error) {
	svc, ok := r.st.services[id]
	if !ok {
		return queue.ClinicService{}, queue.ErrServiceNotFound
	}
	return svc, nil
}

func (r *repo) GetSession(_ context.Context, id uuid.UUID) (queue.Session, error) {
	s, ok := r.st.sessions[id]
	if !ok {
		return queue.Session{}, queue.ErrSessionNotFound
	}
	return s, nil
}

func (r *repo) ListSessions(context.Context) ([]queue.Session, error) {
	out := slices.Collect(maps.Values(r.st.sessions))
	slices.SortFunc(out, func(a, b queue.Session) int {
		if c := cmp.Compare(a.Start.Minutes(), b.Start.Minutes()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (r *repo) GetPatient(_ context.Context, id uuid.UUID) (queue.Patient, error) {
	p, ok := r.st.patients[id]
	if !ok {
		return queue.Patient{}, queue.ErrPatientNotFound
	}
	return p, nil
}

func (r *repo) GetQuota(_ context.Context, sessionID uuid.UUID, date time.Time) (queue.Quota, bool, error) {
	q, ok := r.st.quotas[quotaKey(sessionID, date)]
	return q, ok, nil
}

func (r *repo) CreateQuota(_ context.Context, q queue.Quota) (queue.Quota, error) {
	key := quotaKey(q.SessionID, q.Date)
	if existing, ok := r.st.quotas[key]; ok {
		return existing, nil
	}
	r.st.quotas[key] = q
	return q, nil
}

func (r *repo) UpdateQuota(_ context.Context, q queue.Quota) error {
	r.st.quotas[quotaKey(q.SessionID, q.Date)] = q
	return nil
}

func (r *repo) ListQuotas(_ context.Context, date time.Time) ([]queue.Quota, error) {
	var out []queue.Quota
	for _, q := range r.st.quotas {
		if day(q.Date) == day(date) {
			out = append(out, q)
		}
	}
	slices.SortFunc(out, func(a, b queue.Quota) int { return cmp.Compare(a.SessionID.String(), b.SessionID.String()) })
	return out, nil
}

func (r *repo) CountCountedTickets(_ context.Context, sessionID uuid.UUID, date time.Time) (int, error) {
	n := 0
	for _, t := range r.st.tickets {
		if t.SessionID != nil && *t.SessionID == sessionID && day(t.Date) == day(date) && t.Status.Counted() {
			n++
		}
	}
	return n, nil
}

func (r *repo) GetTicket(_ context.Context, id uuid.UUID) (queue.Ticket, error) {
	t, ok := r.st.tickets[id]
	if !ok {
		return queue.Ticket{}, queue.ErrTicketNotFound
	}
	return t, nil
}

func (r *repo) ListScopeTickets(_ context.Context, scope queue.Scope) ([]queue.Ticket, error) {
	return sortedTickets(r.st.tickets, scope.Contains), nil
}

func (r *repo) ListWaitingScopes(_ context.Context, date time.Time) ([]queue.Scope, error) {
	seen := make(map[string]queue.Scope)
	for _, t := range r.st.tickets {
		if t.Status == queue.StatusWaiting && day(t.Date) == day(date) {
			sc := queue.ScopeOf(t)
			seen[sc.Key()] = sc
		}
	}
	keys := slices.Sorted(maps.Keys(seen))
	out := make([]queue.Scope, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out, nil
}

func (r *repo) ListWaitingByService(_ context.Context, serviceID uuid.UUID, date time.Time) ([]queue.Ticket, error) {
	return sortedTickets(r.st.tickets, func(t queue.Ticket) bool {
		return t.ServiceID == serviceID && t.Status == queue.StatusWaiting && day(t.Date) == day(date)
	}), nil
}

func (r *repo) ListActiveByPatient(_ context.Context, patientID uuid.UUID, date time.Time) ([]queue.Ticket, error) {
	return sortedTickets(r.st.tickets, func(t queue.Ticket) bool {
		return t.PatientID != nil && *t.PatientID == patientID && t.Status.Active() && day(t.Date) == day(date)
	}), nil
}

func (r *repo) InsertTicket(_ context.Context, t queue.Ticket) (queue.Ticket, error) {
	r.st.serial++
	t.Serial = r.st.serial
	r.st.tickets[t.ID] = t
	return t, nil
}

func (r *repo) UpdateTicket(_ context.Context, t queue.Ticket) error {
	if _, ok := r.st.tickets[t.ID]; !ok {
		return queue.ErrTicketNotFound
	}
	r.st.tickets[t.ID] = t
	return nil
}

func (r *repo) ReissueTicket(_ context.Context, t queue.Ticket) (queue.Ticket, error) {
	if _, ok := r.st.tickets[t.ID]; !ok {
		return queue.Ticket{}, queue.ErrTicketNotFound
	}
	r.st.serial++
	t.Serial = r.st.serial
	r.st.tickets[t.ID] = t
	return t, nil
}

func (r *repo) LastSequence(_ context.Context, scope queue.Scope) (int, error) {
	return r.st.seqs[scope.Key()], nil
}

func (r *repo) SaveSequence(_ context.Context, scope queue.Scope, seq int) error {
	r.st.seqs[scope.Key()] = seq
	return nil
}

// LockScope is a no-op: WithinTx already runs one unit of work at a time.
func (r *repo) LockScope(context.Context, queue.Scope) error { return nil }
