package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alijeyrad/clinicq_backend/internal/lock"
	"github.com/Alijeyrad/clinicq_backend/pkg/logs"
)

const instrumentationName = "github.com/Alijeyrad/clinicq_backend/internal/service/queue"

// maxScopeRetries bounds how often an operation re-reads a ticket that was
// moved to another scope while it waited for the lock.
const maxScopeRetries = 3

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type BookRequest struct {
	ServiceID uuid.UUID
	PatientID *uuid.UUID
	SessionID *uuid.UUID
	Date      time.Time // zero means today
}

type EditRequest struct {
	ServiceID    *uuid.UUID
	SessionID    *uuid.UUID
	ClearSession bool
	Date         *time.Time
}

type CallNextRequest struct {
	CounterID string
	ServiceID uuid.UUID
	Date      time.Time // zero means today
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	// Session catalog
	AvailableSessions(ctx context.Context, date time.Time) ([]SessionAvailability, error)
	ValidateSession(ctx context.Context, sessionID uuid.UUID, date time.Time) error
	PreviewSlots(ctx context.Context, sessionID uuid.UUID, date time.Time) (*SlotPreview, error)
	PreviewNextNumber(ctx context.Context, serviceID uuid.UUID, sessionID *uuid.UUID, date time.Time) (string, error)

	// Booking
	Book(ctx context.Context, req BookRequest) (*Ticket, error)
	Edit(ctx context.Context, ticketID uuid.UUID, req EditRequest) (*Ticket, error)
	Cancel(ctx context.Context, ticketID uuid.UUID) (*Ticket, error)
	Printable(ctx context.Context, ticketID uuid.UUID) (bool, error)

	// Queries
	GetTicket(ctx context.Context, ticketID uuid.UUID) (*TicketView, error)
	ActiveTicket(ctx context.Context, patientID uuid.UUID, date time.Time) (*TicketView, error)
	ListScope(ctx context.Context, scope Scope) ([]TicketView, error)

	// Counter operations
	CallNext(ctx context.Context, req CallNextRequest) (*Ticket, error)
	Finish(ctx context.Context, ticketID uuid.UUID) (*Ticket, error)

	// Administration
	SyncQuotas(ctx context.Context, date time.Time) (int, error)
	CreateDefaultQuotas(ctx context.Context, date time.Time) (int, error)
	RunOverdueSweep(ctx context.Context, date time.Time) (*SweepResult, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type queueService struct {
	store    Store
	locker   Locker
	clock    Clock
	notifier Dispatcher
	opts     Options

	catalog catalog
	quotas  quotaManager
	numbers numberGenerator
	est     estimator
	comp    compensator

	tracer   trace.Tracer
	bookings metric.Int64Counter
	sweeps   metric.Int64Counter
}

func New(store Store, locker Locker, clock Clock, notifier Dispatcher, opts Options) Service {
	if notifier == nil {
		notifier = NopDispatcher()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	est := newEstimator(opts)
	meter := otel.Meter(instrumentationName)
	bookings, _ := meter.Int64Counter("queue_bookings_total",
		metric.WithDescription("Bookings attempted, by outcome"))
	sweeps, _ := meter.Int64Counter("queue_overdue_compensations_total",
		metric.WithDescription("Scopes pushed back by the overdue sweep"))

	return &queueService{
		store:    store,
		locker:   locker,
		clock:    clock,
		notifier: notifier,
		opts:     opts,
		catalog:  catalog{clock: clock, loc: opts.Location},
		quotas:   quotaManager{defaultTotal: opts.DefaultQuota},
		numbers:  numberGenerator{defaultPadding: opts.DefaultPadding},
		est:      est,
		comp:     newCompensator(opts, est),
		tracer:   otel.Tracer(instrumentationName),
		bookings: bookings,
		sweeps:   sweeps,
	}
}

func (s *queueService) dateOrToday(date time.Time) time.Time {
	if date.IsZero() {
		return s.catalog.today()
	}
	return DateOf(date, s.opts.Location)
}

// withScopes takes the locks of every scope in key order, then runs fn in
// one unit of work that also holds the store-level scope locks.
func (s *queueService) withScopes(ctx context.Context, scopes []Scope, fn func(ctx context.Context, repo Repository) error) error {
	keys := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		keys = append(keys, sc.Key())
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	var releases []func()
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()
	for _, key := range keys {
		release, err := s.locker.Acquire(ctx, key)
		if err != nil {
			if errors.Is(err, lock.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				logs.FromContext(ctx).Warn("queue: scope lock timed out", "scope", key)
				return fmt.Errorf("%w: %s", ErrBusy, key)
			}
			return fmt.Errorf("acquire scope lock: %w", err)
		}
		releases = append(releases, release)
	}

	sorted := slices.Clone(scopes)
	slices.SortFunc(sorted, func(a, b Scope) int { return strings.Compare(a.Key(), b.Key()) })

	return s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		for _, sc := range sorted {
			if err := repo.LockScope(ctx, sc); err != nil {
				return err
			}
		}
		return fn(ctx, repo)
	})
}

// recomputeScope re-ranks every waiting ticket of scope and writes back the
// estimates that moved.
func (s *queueService) recomputeScope(ctx context.Context, repo Repository, scope Scope) error {
	tickets, err := repo.ListScopeTickets(ctx, scope)
	if err != nil {
		return fmt.Errorf("list scope tickets: %w", err)
	}
	session, err := sessionFor(ctx, repo, scope)
	if err != nil {
		return err
	}

	after := slices.Clone(tickets)
	s.est.recompute(scope, session, after, s.clock.Now())
	for _, t := range changedTickets(tickets, after) {
		if err := repo.UpdateTicket(ctx, t); err != nil {
			return fmt.Errorf("update estimate: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Session catalog
// ---------------------------------------------------------------------------

func (s *queueService) AvailableSessions(ctx context.Context, date time.Time) ([]SessionAvailability, error) {
	date = s.dateOrToday(date)
	if date.Before(s.catalog.today()) {
		return nil, ErrDateInPast
	}

	var out []SessionAvailability
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		sessions, err := s.catalog.practicing(ctx, repo, date)
		if err != nil {
			return err
		}
		for _, session := range sessions {
			snap, err := s.quotas.snapshot(ctx, repo, session.ID, date)
			if err != nil {
				return err
			}
			if snap.Remaining == 0 {
				continue
			}
			out = append(out, SessionAvailability{
				Session: session,
				Date:    date,
				StartAt: session.StartOn(date),
				EndAt:   session.EndOn(date),
				Quota:   snap,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *queueService) ValidateSession(ctx context.Context, sessionID uuid.UUID, date time.Time) error {
	date = s.dateOrToday(date)
	return s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		_, err := s.catalog.validate(ctx, repo, sessionID, date)
		return err
	})
}

func (s *queueService) PreviewSlots(ctx context.Context, sessionID uuid.UUID, date time.Time) (*SlotPreview, error) {
	date = s.dateOrToday(date)

	var preview SlotPreview
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		session, err := s.catalog.validate(ctx, repo, sessionID, date)
		if err != nil {
			return err
		}
		snap, err := s.quotas.snapshot(ctx, repo, sessionID, date)
		if err != nil {
			return err
		}

		scope := Scope{ServiceID: session.ServiceID, SessionID: &session.ID, Date: date}
		tickets, err := repo.ListScopeTickets(ctx, scope)
		if err != nil {
			return fmt.Errorf("list scope tickets: %w", err)
		}
		waiting := 0
		for _, t := range tickets {
			if t.Status == StatusWaiting {
				waiting++
			}
		}

		anchor := s.est.anchor(scope, &session, s.clock.Now())
		preview = SlotPreview{
			SessionID:           sessionID,
			Date:                date,
			Quota:               snap,
			NextPosition:        waiting + 1,
			NextEstimatedCallAt: s.est.at(anchor, waiting+1, baselineDelay(tickets)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &preview, nil
}

func (s *queueService) PreviewNextNumber(ctx context.Context, serviceID uuid.UUID, sessionID *uuid.UUID, date time.Time) (string, error) {
	date = s.dateOrToday(date)

	var number string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		svc, err := repo.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		if sessionID != nil {
			session, err := repo.GetSession(ctx, *sessionID)
			if err != nil {
				return err
			}
			if session.ServiceID != serviceID {
				return ErrSessionServiceMismatch
			}
		}
		scope := Scope{ServiceID: serviceID, SessionID: sessionID, Date: date}
		tickets, err := repo.ListScopeTickets(ctx, scope)
		if err != nil {
			return fmt.Errorf("list scope tickets: %w", err)
		}
		last, err := repo.LastSequence(ctx, scope)
		if err != nil {
			return fmt.Errorf("last sequence: %w", err)
		}
		_, number, err = s.numbers.next(svc, last, tickets)
		return err
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// ---------------------------------------------------------------------------
// Booking
// ---------------------------------------------------------------------------

func (s *queueService) Book(ctx context.Context, req BookRequest) (*Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "queue.Book")
	defer span.End()

	t, reminder, err := s.book(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
	}
	s.bookings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err != nil {
		return nil, err
	}

	if reminder != nil {
		s.dispatch(ctx, *reminder)
	}
	return t, nil
}

func (s *queueService) book(ctx context.Context, req BookRequest) (*Ticket, *Reminder, error) {
	date := s.dateOrToday(req.Date)
	if date.Before(s.catalog.today()) {
		return nil, nil, ErrDateInPast
	}

	var (
		svc     ClinicService
		session *Session
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		svc, err = repo.GetService(ctx, req.ServiceID)
		if err != nil {
			return err
		}
		if !svc.Active {
			return ErrServiceNotFound
		}
		if req.SessionID == nil {
			return nil
		}
		ses, err := s.catalog.validate(ctx, repo, *req.SessionID, date)
		if err != nil {
			return err
		}
		if ses.ServiceID != svc.ID {
			return ErrSessionServiceMismatch
		}
		session = &ses
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	scope := Scope{ServiceID: svc.ID, SessionID: req.SessionID, Date: date}

	var (
		ticket   Ticket
		reminder *Reminder
	)
	err = s.withScopes(ctx, []Scope{scope}, func(ctx context.Context, repo Repository) error {
		avail, err := s.quotas.checkAvailability(ctx, repo, req.SessionID, date)
		if err != nil {
			return err
		}
		if !avail.Available {
			return ErrQuotaFull
		}

		var patient *Patient
		if req.PatientID != nil {
			p, err := repo.GetPatient(ctx, *req.PatientID)
			if err != nil {
				return err
			}
			active, err := repo.ListActiveByPatient(ctx, p.ID, date)
			if err != nil {
				return fmt.Errorf("list active tickets: %w", err)
			}
			if len(active) > 0 {
				return ErrDuplicateActiveTicket
			}
			patient = &p
		}

		if err := s.quotas.reserve(ctx, repo, avail.Quota); err != nil {
			return err
		}

		siblings, err := repo.ListScopeTickets(ctx, scope)
		if err != nil {
			return fmt.Errorf("list scope tickets: %w", err)
		}
		seq, number, err := s.issueNumber(ctx, repo, svc, scope, siblings)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		draft := Ticket{
			ID:                uuid.New(),
			ServiceID:         svc.ID,
			SessionID:         req.SessionID,
			PatientID:         req.PatientID,
			Number:            number,
			Seq:               seq,
			Date:              date,
			Status:            StatusWaiting,
			ExtraDelayMinutes: baselineDelay(siblings),
			CreatedAt:         now,
		}
		waiting := 0
		for _, t := range siblings {
			if t.Status == StatusWaiting {
				waiting++
			}
		}
		at := s.est.at(s.est.anchor(scope, session, now), waiting+1, draft.ExtraDelayMinutes)
		draft.EstimatedCallAt = &at

		ticket, err = repo.InsertTicket(ctx, draft)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		if err := s.recomputeScope(ctx, repo, scope); err != nil {
			return err
		}

		// Re-read so the caller sees the estimate the recompute settled on.
		ticket, err = repo.GetTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}

		if patient != nil && ticket.EstimatedCallAt != nil {
			reminder = &Reminder{
				TicketID:        ticket.ID,
				Number:          ticket.Number,
				ServiceName:     svc.Name,
				PatientName:     patient.Name,
				Phone:           patient.Phone,
				Email:           patient.Email,
				Date:            ticket.Date,
				EstimatedCallAt: *ticket.EstimatedCallAt,
			}
			if session != nil {
				reminder.DoctorName = session.DoctorName
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logs.FromContext(ctx).Info("queue: ticket booked",
		"ticket_id", ticket.ID,
		"number", ticket.Number,
		"scope", scope.Key(),
	)
	return &ticket, reminder, nil
}

// issueNumber takes the next number of scope and records it as issued.
func (s *queueService) issueNumber(ctx context.Context, repo Repository, svc ClinicService, scope Scope, siblings []Ticket) (int, string, error) {
	last, err := repo.LastSequence(ctx, scope)
	if err != nil {
		return 0, "", fmt.Errorf("last sequence: %w", err)
	}
	seq, number, err := s.numbers.next(svc, last, siblings)
	if err != nil {
		return 0, "", err
	}
	if err := repo.SaveSequence(ctx, scope, seq); err != nil {
		return 0, "", fmt.Errorf("save sequence: %w", err)
	}
	return seq, number, nil
}

// dispatch sends the reminder without holding up the caller.
func (s *queueService) dispatch(ctx context.Context, r Reminder) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.opts.ReminderTimeout)
		defer cancel()
		if !s.notifier.SendReminder(ctx, r) {
			logs.FromContext(ctx).Warn("queue: reminder not delivered", "ticket_id", r.TicketID, "number", r.Number)
		}
	}()
}

func (s *queueService) Edit(ctx context.Context, ticketID uuid.UUID, req EditRequest) (*Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "queue.Edit")
	defer span.End()

	for range maxScopeRetries {
		var current Ticket
		err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			current, err = repo.GetTicket(ctx, ticketID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !ValidTransition(ActionEdit, current.Status) {
			logs.FromContext(ctx).Error("queue: invalid transition", "action", ActionEdit, "ticket_id", ticketID, "status", current.Status)
			return nil, ErrInvalidTransition
		}

		target := ScopeOf(current)
		if req.ServiceID != nil {
			target.ServiceID = *req.ServiceID
		}
		if req.ClearSession {
			target.SessionID = nil
		} else if req.SessionID != nil {
			target.SessionID = req.SessionID
		}
		if req.Date != nil {
			target.Date = DateOf(*req.Date, s.opts.Location)
		}

		from := ScopeOf(current)
		if target.Key() == from.Key() {
			return &current, nil
		}
		if target.Date.Before(s.catalog.today()) {
			return nil, ErrDateInPast
		}

		var (
			out   Ticket
			moved bool
		)
		err = s.withScopes(ctx, []Scope{from, target}, func(ctx context.Context, repo Repository) error {
			t, err := repo.GetTicket(ctx, ticketID)
			if err != nil {
				return err
			}
			if !from.Contains(t) {
				moved = true
				return nil
			}
			if !ValidTransition(ActionEdit, t.Status) {
				return ErrInvalidTransition
			}
			out, err = s.move(ctx, repo, t, from, target)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !moved {
			logs.FromContext(ctx).Info("queue: ticket moved",
				"ticket_id", out.ID,
				"number", out.Number,
				"from", from.Key(),
				"to", target.Key(),
			)
			return &out, nil
		}
	}
	return nil, ErrBusy
}

// move re-issues a waiting ticket into another scope: quota follows the
// ticket, the number is regenerated and both scopes are re-estimated.
func (s *queueService) move(ctx context.Context, repo Repository, t Ticket, from, to Scope) (Ticket, error) {
	svc, err := repo.GetService(ctx, to.ServiceID)
	if err != nil {
		return Ticket{}, err
	}
	if !svc.Active {
		return Ticket{}, ErrServiceNotFound
	}
	if to.SessionID != nil {
		session, err := s.catalog.validate(ctx, repo, *to.SessionID, to.Date)
		if err != nil {
			return Ticket{}, err
		}
		if session.ServiceID != svc.ID {
			return Ticket{}, ErrSessionServiceMismatch
		}
	}

	if t.PatientID != nil && !to.Date.Equal(from.Date) {
		active, err := repo.ListActiveByPatient(ctx, *t.PatientID, to.Date)
		if err != nil {
			return Ticket{}, fmt.Errorf("list active tickets: %w", err)
		}
		if len(active) > 0 {
			return Ticket{}, ErrDuplicateActiveTicket
		}
	}

	if err := s.quotas.release(ctx, repo, from.SessionID, from.Date); err != nil {
		return Ticket{}, err
	}
	avail, err := s.quotas.checkAvailability(ctx, repo, to.SessionID, to.Date)
	if err != nil {
		return Ticket{}, err
	}
	if !avail.Available {
		return Ticket{}, ErrQuotaFull
	}
	if err := s.quotas.reserve(ctx, repo, avail.Quota); err != nil {
		return Ticket{}, err
	}

	siblings, err := repo.ListScopeTickets(ctx, to)
	if err != nil {
		return Ticket{}, fmt.Errorf("list scope tickets: %w", err)
	}
	seq, number, err := s.issueNumber(ctx, repo, svc, to, siblings)
	if err != nil {
		return Ticket{}, err
	}

	t.ServiceID = to.ServiceID
	t.SessionID = to.SessionID
	t.Date = to.Date
	t.Seq = seq
	t.Number = number
	// Extra delay only grows while a ticket waits.
	t.ExtraDelayMinutes = max(t.ExtraDelayMinutes, baselineDelay(siblings))
	t.EstimatedCallAt = nil

	if _, err := repo.ReissueTicket(ctx, t); err != nil {
		return Ticket{}, fmt.Errorf("reissue ticket: %w", err)
	}
	if err := s.recomputeScope(ctx, repo, from); err != nil {
		return Ticket{}, err
	}
	if err := s.recomputeScope(ctx, repo, to); err != nil {
		return Ticket{}, err
	}
	return repo.GetTicket(ctx, t.ID)
}

func (s *queueService) Cancel(ctx context.Context, ticketID uuid.UUID) (*Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "queue.Cancel")
	defer span.End()

	t, err := s.mutateTicket(ctx, ticketID, ActionCancel, func(ctx context.Context, repo Repository, t *Ticket) error {
		now := s.clock.Now()
		t.Status = StatusCanceled
		t.CanceledAt = &now
		t.EstimatedCallAt = nil
		if err := repo.UpdateTicket(ctx, *t); err != nil {
			return fmt.Errorf("cancel ticket: %w", err)
		}
		if err := s.quotas.release(ctx, repo, t.SessionID, t.Date); err != nil {
			return err
		}
		return s.recomputeScope(ctx, repo, ScopeOf(*t))
	})
	if err != nil {
		return nil, err
	}

	logs.FromContext(ctx).Info("queue: ticket canceled", "ticket_id", t.ID, "number", t.Number, "scope", ScopeOf(*t).Key())
	return t, nil
}

func (s *queueService) Finish(ctx context.Context, ticketID uuid.UUID) (*Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "queue.Finish")
	defer span.End()

	return s.mutateTicket(ctx, ticketID, ActionFinish, func(ctx context.Context, repo Repository, t *Ticket) error {
		now := s.clock.Now()
		t.Status = StatusFinished
		t.FinishedAt = &now
		if err := repo.UpdateTicket(ctx, *t); err != nil {
			return fmt.Errorf("finish ticket: %w", err)
		}
		return nil
	})
}

// mutateTicket applies fn to a ticket under its scope lock, after checking
// that action is allowed from the ticket's current status.
func (s *queueService) mutateTicket(ctx context.Context, ticketID uuid.UUID, action Action, fn func(ctx context.Context, repo Repository, t *Ticket) error) (*Ticket, error) {
	for range maxScopeRetries {
		var current Ticket
		err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			current, err = repo.GetTicket(ctx, ticketID)
			return err
		})
		if err != nil {
			return nil, err
		}

		scope := ScopeOf(current)
		var (
			out   Ticket
			moved bool
		)
		err = s.withScopes(ctx, []Scope{scope}, func(ctx context.Context, repo Repository) error {
			t, err := repo.GetTicket(ctx, ticketID)
			if err != nil {
				return err
			}
			if !scope.Contains(t) {
				moved = true
				return nil
			}
			if !ValidTransition(action, t.Status) {
				logs.FromContext(ctx).Error("queue: invalid transition", "action", action, "ticket_id", ticketID, "status", t.Status)
				return ErrInvalidTransition
			}
			if err := fn(ctx, repo, &t); err != nil {
				return err
			}
			out = t
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !moved {
			return &out, nil
		}
	}
	return nil, ErrBusy
}

func (s *queueService) Printable(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	var t Ticket
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		t, err = repo.GetTicket(ctx, ticketID)
		return err
	})
	if err != nil {
		return false, err
	}
	return t.Status.Active() && !t.Date.Before(s.catalog.today()), nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (s *queueService) GetTicket(ctx context.Context, ticketID uuid.UUID) (*TicketView, error) {
	var view TicketView
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		t, err := repo.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		siblings, err := repo.ListScopeTickets(ctx, ScopeOf(t))
		if err != nil {
			return fmt.Errorf("list scope tickets: %w", err)
		}
		view = viewOf(t, siblings, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *queueService) ActiveTicket(ctx context.Context, patientID uuid.UUID, date time.Time) (*TicketView, error) {
	date = s.dateOrToday(date)

	var view TicketView
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		active, err := repo.ListActiveByPatient(ctx, patientID, date)
		if err != nil {
			return fmt.Errorf("list active tickets: %w", err)
		}
		if len(active) == 0 {
			return ErrTicketNotFound
		}
		t := active[0]
		siblings, err := repo.ListScopeTickets(ctx, ScopeOf(t))
		if err != nil {
			return fmt.Errorf("list scope tickets: %w", err)
		}
		view = viewOf(t, siblings, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *queueService) ListScope(ctx context.Context, scope Scope) ([]TicketView, error) {
	scope.Date = s.dateOrToday(scope.Date)

	var out []TicketView
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		tickets, err := repo.ListScopeTickets(ctx, scope)
		if err != nil {
			return fmt.Errorf("list scope tickets: %w", err)
		}
		now := s.clock.Now()
		out = make([]TicketView, 0, len(tickets))
		for _, t := range tickets {
			out = append(out, viewOf(t, tickets, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Counter operations
// ---------------------------------------------------------------------------

// nextCandidate picks the oldest unassigned waiting ticket of the service,
// preferring session-scoped tickets over legacy ones.
func nextCandidate(waiting []Ticket) (Ticket, bool) {
	var (
		best  Ticket
		found bool
	)
	for _, t := range waiting {
		if t.Status != StatusWaiting || t.CounterID != nil {
			continue
		}
		if !found {
			best, found = t, true
			continue
		}
		bestLegacy, tLegacy := best.SessionID == nil, t.SessionID == nil
		if bestLegacy != tLegacy {
			if !tLegacy {
				best = t
			}
			continue
		}
		if t.Serial < best.Serial {
			best = t
		}
	}
	return best, found
}

func (s *queueService) CallNext(ctx context.Context, req CallNextRequest) (*Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "queue.CallNext")
	defer span.End()

	date := s.dateOrToday(req.Date)
	counter := req.CounterID

	for range maxScopeRetries {
		var candidate Ticket
		err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
			waiting, err := repo.ListWaitingByService(ctx, req.ServiceID, date)
			if err != nil {
				return fmt.Errorf("list waiting tickets: %w", err)
			}
			t, ok := nextCandidate(waiting)
			if !ok {
				return ErrNoWaitingTicket
			}
			candidate = t
			return nil
		})
		if err != nil {
			return nil, err
		}

		scope := ScopeOf(candidate)
		var (
			out   Ticket
			taken bool
		)
		err = s.withScopes(ctx, []Scope{scope}, func(ctx context.Context, repo Repository) error {
			t, err := repo.GetTicket(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !scope.Contains(t) || t.Status != StatusWaiting || t.CounterID != nil {
				taken = true
				return nil
			}
			now := s.clock.Now()
			t.Status = StatusServing
			t.CalledAt = &now
			t.ServedAt = &now
			t.CounterID = &counter
			t.EstimatedCallAt = &now
			if err := repo.UpdateTicket(ctx, t); err != nil {
				return fmt.Errorf("call ticket: %w", err)
			}
			out = t
			return s.recomputeScope(ctx, repo, scope)
		})
		if err != nil {
			return nil, err
		}
		if !taken {
			logs.FromContext(ctx).Info("queue: ticket called", "ticket_id", out.ID, "number", out.Number, "counter_id", counter)
			return &out, nil
		}
	}
	return nil, ErrBusy
}

// ---------------------------------------------------------------------------
// Administration
// ---------------------------------------------------------------------------

func (s *queueService) SyncQuotas(ctx context.Context, date time.Time) (int, error) {
	date = s.dateOrToday(date)

	var quotas []Quota
	sessions := make(map[uuid.UUID]Session)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		quotas, err = repo.ListQuotas(ctx, date)
		if err != nil {
			return fmt.Errorf("list quotas: %w", err)
		}
		for _, q := range quotas {
			session, err := repo.GetSession(ctx, q.SessionID)
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}
			sessions[q.SessionID] = session
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	corrected := 0
	for _, q := range quotas {
		session := sessions[q.SessionID]
		scope := Scope{ServiceID: session.ServiceID, SessionID: &session.ID, Date: date}
		err := s.withScopes(ctx, []Scope{scope}, func(ctx context.Context, repo Repository) error {
			cur, found, err := repo.GetQuota(ctx, q.SessionID, date)
			if err != nil || !found {
				return err
			}
			synced, err := s.quotas.sync(ctx, repo, cur)
			if err != nil {
				return err
			}
			if synced.Used != cur.Used {
				corrected++
			}
			return nil
		})
		if err != nil {
			return corrected, err
		}
	}

	logs.FromContext(ctx).Info("queue: quotas synced", "date", date.Format(time.DateOnly), "quotas", len(quotas), "corrected", corrected)
	return corrected, nil
}

func (s *queueService) CreateDefaultQuotas(ctx context.Context, date time.Time) (int, error) {
	date = s.dateOrToday(date)

	var sessions []Session
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		all, err := repo.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		for _, session := range all {
			if session.Active && session.PracticesOn(date) {
				sessions = append(sessions, session)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	created := 0
	for _, session := range sessions {
		scope := Scope{ServiceID: session.ServiceID, SessionID: &session.ID, Date: date}
		err := s.withScopes(ctx, []Scope{scope}, func(ctx context.Context, repo Repository) error {
			_, found, err := repo.GetQuota(ctx, session.ID, date)
			if err != nil || found {
				return err
			}
			q, err := s.quotas.getOrCreate(ctx, repo, session.ID, date)
			if err != nil {
				return err
			}
			if _, err := s.quotas.sync(ctx, repo, q); err != nil {
				return err
			}
			created++
			return nil
		})
		if err != nil {
			return created, err
		}
	}

	logs.FromContext(ctx).Info("queue: default quotas created", "date", date.Format(time.DateOnly), "created", created)
	return created, nil
}

func (s *queueService) RunOverdueSweep(ctx context.Context, date time.Time) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "queue.RunOverdueSweep")
	defer span.End()

	date = s.dateOrToday(date)

	var scopes []Scope
	err := s.store.WithinTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		scopes, err = repo.ListWaitingScopes(ctx, date)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list waiting scopes: %w", err)
	}

	result := &SweepResult{ScopesScanned: len(scopes)}
	for _, scope := range scopes {
		var updated int
		err := s.withScopes(ctx, []Scope{scope}, func(ctx context.Context, repo Repository) error {
			tickets, err := repo.ListScopeTickets(ctx, scope)
			if err != nil {
				return fmt.Errorf("list scope tickets: %w", err)
			}
			session, err := sessionFor(ctx, repo, scope)
			if err != nil {
				return err
			}
			changed := s.comp.compensate(scope, session, tickets, s.clock.Now())
			for _, t := range changed {
				if err := repo.UpdateTicket(ctx, t); err != nil {
					return fmt.Errorf("update ticket: %w", err)
				}
			}
			updated = len(changed)
			return nil
		})
		if err != nil {
			return result, err
		}
		if updated > 0 {
			result.ScopesCompensated++
			result.TicketsUpdated += updated
			s.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.Bool("legacy", scope.Legacy())))
			logs.FromContext(ctx).Info("queue: overdue scope compensated", "scope", scope.Key(), "tickets", updated)
		}
	}
	return result, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrQuotaFull):
		return "quota_full"
	case errors.Is(err, ErrDuplicateActiveTicket):
		return "duplicate"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNotPracticingOnDate),
		errors.Is(err, ErrSessionEnded), errors.Is(err, ErrDateInPast),
		errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrSessionServiceMismatch),
		errors.Is(err, ErrPatientNotFound):
		return "invalid"
	default:
		return "error"
	}
}
