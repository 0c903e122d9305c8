// Package notify delivers queue reminders to patients, either directly or
// through a NATS subject consumed by reminder workers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/pkg/constants"
	"github.com/Alijeyrad/clinicq_backend/pkg/email"
	"github.com/Alijeyrad/clinicq_backend/pkg/sms"
)

// Deliverer pushes one reminder out to the patient.
type Deliverer interface {
	Deliver(ctx context.Context, r queue.Reminder) error
}

// Sender delivers reminders by SMS and email, whichever the patient has.
type Sender struct {
	sms  *sms.Client
	mail *email.Client
	loc  *time.Location
}

func NewSender(smsCli *sms.Client, mail *email.Client, loc *time.Location) *Sender {
	if loc == nil {
		loc = time.UTC
	}
	return &Sender{sms: smsCli, mail: mail, loc: loc}
}

func (s *Sender) Deliver(ctx context.Context, r queue.Reminder) error {
	at := r.EstimatedCallAt.In(s.loc)

	var errs []error
	if r.Phone != "" && s.sms != nil {
		err := s.sms.SendReminder(ctx, r.Phone, sms.ReminderParams{
			Number:  r.Number,
			Service: r.ServiceName,
			Time:    at.Format("15:04"),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}

	if r.Email != "" && s.mail != nil {
		msg := email.BuildReminderEmail(email.ReminderEmailData{
			PatientName: r.PatientName,
			Email:       r.Email,
			Number:      r.Number,
			ServiceName: r.ServiceName,
			DoctorName:  r.DoctorName,
			Date:        r.Date.Format(time.DateOnly),
			Time:        at.Format("15:04"),
			AppName:     constants.AppName,
		})
		err := s.mail.Send(ctx, msg)
		if err != nil && !errors.Is(err, email.ErrDisabled) {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Direct is a queue.Dispatcher that delivers in the calling process.
type Direct struct {
	d Deliverer
}

func NewDirect(d Deliverer) *Direct {
	return &Direct{d: d}
}

func (n *Direct) SendReminder(ctx context.Context, r queue.Reminder) bool {
	if err := n.d.Deliver(ctx, r); err != nil {
		slog.Warn("notify: reminder delivery failed", "ticket_id", r.TicketID, "error", err)
		return false
	}
	return true
}
