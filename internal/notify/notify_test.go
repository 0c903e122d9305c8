package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Alijeyrad/clinicq_backend/config"
	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/pkg/email"
	"github.com/Alijeyrad/clinicq_backend/pkg/sms"
)

type fakeDeliverer struct {
	got []queue.Reminder
	err error
}

func (f *fakeDeliverer) Deliver(_ context.Context, r queue.Reminder) error {
	f.got = append(f.got, r)
	return f.err
}

func sampleReminder() queue.Reminder {
	return queue.Reminder{
		TicketID:        uuid.New(),
		Number:          "A004",
		ServiceName:     "General",
		PatientName:     "Reza",
		Phone:           "09121234567",
		Email:           "reza@example.com",
		Date:            time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EstimatedCallAt: time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC),
	}
}

func TestDirect_SendReminder(t *testing.T) {
	ok := &fakeDeliverer{}
	if !NewDirect(ok).SendReminder(context.Background(), sampleReminder()) {
		t.Error("expected success")
	}
	if len(ok.got) != 1 {
		t.Fatalf("delivered %d reminders, want 1", len(ok.got))
	}

	failing := &fakeDeliverer{err: errors.New("gateway down")}
	if NewDirect(failing).SendReminder(context.Background(), sampleReminder()) {
		t.Error("expected failure to be reported")
	}
}

func TestReminderHandler(t *testing.T) {
	d := &fakeDeliverer{}
	handle := reminderHandler(d, time.Second)

	want := sampleReminder()
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	handle(&nats.Msg{Data: []byte("{not json")})
	handle(&nats.Msg{Data: data})

	if len(d.got) != 1 {
		t.Fatalf("delivered %d reminders, want 1", len(d.got))
	}
	got := d.got[0]
	if got.TicketID != want.TicketID || got.Number != want.Number || !got.EstimatedCallAt.Equal(want.EstimatedCallAt) {
		t.Errorf("delivered %+v, want %+v", got, want)
	}
}

func TestSender_DisabledChannels(t *testing.T) {
	smsCli, err := sms.NewFromConfig(config.SMSConfig{Enabled: false})
	if err != nil {
		t.Fatalf("sms client: %v", err)
	}
	mail, err := email.New(email.Config{Enabled: false})
	if err != nil {
		t.Fatalf("email client: %v", err)
	}

	s := NewSender(smsCli, mail, time.UTC)
	if err := s.Deliver(context.Background(), sampleReminder()); err != nil {
		t.Errorf("Deliver with disabled channels: %v", err)
	}
}
