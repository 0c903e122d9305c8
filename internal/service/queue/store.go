package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence view available inside one unit of work.
// Lookups of missing rows return the matching sentinel error
// (ErrServiceNotFound, ErrSessionNotFound, ErrPatientNotFound, ErrTicketNotFound).
type Repository interface {
	GetService(ctx context.Context, id uuid.UUID) (ClinicService, error)
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	GetPatient(ctx context.Context, id uuid.UUID) (Patient, error)

	// GetQuota locks the row for the rest of the unit of work.
	GetQuota(ctx context.Context, sessionID uuid.UUID, date time.Time) (Quota, bool, error)
	// CreateQuota inserts q unless one already exists for (session, date)
	// and returns the stored row either way.
	CreateQuota(ctx context.Context, q Quota) (Quota, error)
	UpdateQuota(ctx context.Context, q Quota) error
	ListQuotas(ctx context.Context, date time.Time) ([]Quota, error)
	CountCountedTickets(ctx context.Context, sessionID uuid.UUID, date time.Time) (int, error)

	GetTicket(ctx context.Context, id uuid.UUID) (Ticket, error)
	// ListScopeTickets returns every ticket of the scope, canceled ones
	// included, in issue order.
	ListScopeTickets(ctx context.Context, scope Scope) ([]Ticket, error)
	ListWaitingScopes(ctx context.Context, date time.Time) ([]Scope, error)
	ListWaitingByService(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]Ticket, error)
	ListActiveByPatient(ctx context.Context, patientID uuid.UUID, date time.Time) ([]Ticket, error)
	// InsertTicket stores t and returns it with its issue serial assigned.
	InsertTicket(ctx context.Context, t Ticket) (Ticket, error)
	UpdateTicket(ctx context.Context, t Ticket) error
	// ReissueTicket stores t with a fresh issue serial, placing it last in
	// its (possibly new) scope.
	ReissueTicket(ctx context.Context, t Ticket) (Ticket, error)

	// LastSequence returns the sequence most recently issued in the scope,
	// or 0 when it has issued none.
	LastSequence(ctx context.Context, scope Scope) (int, error)
	SaveSequence(ctx context.Context, scope Scope, seq int) error

	// LockScope serializes the rest of the unit of work against every other
	// unit of work that locks the same scope.
	LockScope(ctx context.Context, scope Scope) error
}

// Store runs fn inside one atomic unit of work. Any error returned by fn
// rolls back every write made through the Repository.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Locker hands out a per-key mutual exclusion with a bounded wait.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Reminder is everything a dispatcher needs to tell a patient when to come.
type Reminder struct {
	TicketID        uuid.UUID `json:"ticket_id"`
	Number          string    `json:"number"`
	ServiceName     string    `json:"service_name"`
	DoctorName      string    `json:"doctor_name,omitempty"`
	PatientName     string    `json:"patient_name"`
	Phone           string    `json:"phone,omitempty"`
	Email           string    `json:"email,omitempty"`
	Date            time.Time `json:"date"`
	EstimatedCallAt time.Time `json:"estimated_call_at"`
}

// Dispatcher delivers reminders. It reports success; it never fails the caller.
type Dispatcher interface {
	SendReminder(ctx context.Context, r Reminder) bool
}

type nopDispatcher struct{}

func (nopDispatcher) SendReminder(context.Context, Reminder) bool { return true }

// NopDispatcher drops every reminder.
func NopDispatcher() Dispatcher { return nopDispatcher{} }
