package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/pkg/constants"
)

// Publisher is a queue.Dispatcher that hands reminders to the workers.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

func (p *Publisher) SendReminder(_ context.Context, r queue.Reminder) bool {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("notify: marshal reminder failed", "ticket_id", r.TicketID, "error", err)
		return false
	}
	if err := p.nc.Publish(constants.SubjectReminderSend, data); err != nil {
		slog.Warn("notify: publish reminder failed", "ticket_id", r.TicketID, "error", err)
		return false
	}
	return true
}

// StartReminderWorker subscribes to reminder messages in a queue group so
// each reminder is delivered by exactly one replica.
func StartReminderWorker(nc *nats.Conn, d Deliverer, timeout time.Duration) (*nats.Subscription, error) {
	sub, err := nc.QueueSubscribe(constants.SubjectReminderSend, constants.QueueGroupReminder, reminderHandler(d, timeout))
	if err != nil {
		return nil, err
	}
	slog.Info("reminder_worker: started", "subject", constants.SubjectReminderSend)
	return sub, nil
}

func reminderHandler(d Deliverer, timeout time.Duration) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var r queue.Reminder
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			slog.Warn("reminder_worker: bad payload", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := d.Deliver(ctx, r); err != nil {
			slog.Warn("reminder_worker: delivery failed", "ticket_id", r.TicketID, "error", err)
			return
		}
		slog.Debug("reminder_worker: delivered", "ticket_id", r.TicketID, "number", r.Number)
	}
}
