package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/clinicq_backend/internal/lock"
	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/internal/store/memory"
)

type testEnv struct {
	app     *fiber.App
	store   *memory.Store
	service queue.ClinicService
	session queue.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := memory.New()
	clk := queue.NewFixedClock(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC))

	service := queue.ClinicService{ID: uuid.New(), Name: "General", Prefix: "A", Padding: 3, Active: true}
	session := queue.Session{
		ID:        uuid.New(),
		ServiceID: service.ID,
		Days:      []time.Weekday{time.Monday, time.Tuesday},
		Start:     queue.TimeOfDay{Hour: 8},
		End:       queue.TimeOfDay{Hour: 12},
		Active:    true,
	}
	st.PutService(service)
	st.PutSession(session)

	svc := queue.New(st, lock.NewLocal(time.Second), clk, nil, queue.DefaultOptions())
	h := NewQueueHandler(svc, time.UTC)

	app := fiber.New()
	app.Get("/sessions/available", h.AvailableSessions)
	app.Get("/services/:id/next-number", h.PreviewNextNumber)
	app.Get("/services/:id/tickets", h.ListScope)
	app.Post("/tickets", h.Book)
	app.Get("/tickets/:id", h.Get)
	app.Patch("/tickets/:id/cancel", h.Cancel)
	app.Post("/counters/:cid/call-next", h.CallNext)

	return &testEnv{app: app, store: st, service: service, session: session}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]json.RawMessage) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func decodeTicket(t *testing.T, raw json.RawMessage) queue.Ticket {
	t.Helper()
	var tk queue.Ticket
	if err := json.Unmarshal(raw, &tk); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return tk
}

func TestQueueHandler_BookAndGet(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/tickets", fiber.Map{
		"service_id": env.service.ID.String(),
		"session_id": env.session.ID.String(),
	})
	if status != fiber.StatusCreated {
		t.Fatalf("book status = %d, body = %s", status, body["error"])
	}
	tk := decodeTicket(t, body["data"])
	if tk.Number != "A001" {
		t.Errorf("number = %q, want A001", tk.Number)
	}

	status, body = env.do(t, http.MethodGet, "/tickets/"+tk.ID.String(), nil)
	if status != fiber.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	var view queue.TicketView
	if err := json.Unmarshal(body["data"], &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Position != 1 {
		t.Errorf("position = %d, want 1", view.Position)
	}

	status, body = env.do(t, http.MethodGet, "/services/"+env.service.ID.String()+"/next-number?session_id="+env.session.ID.String(), nil)
	if status != fiber.StatusOK || string(body["data"]) != `{"number":"A002"}` {
		t.Errorf("next-number = %d %s", status, body["data"])
	}

	status, body = env.do(t, http.MethodGet, "/services/"+env.service.ID.String()+"/tickets?session_id="+env.session.ID.String(), nil)
	if status != fiber.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list []queue.TicketView
	if err := json.Unmarshal(body["data"], &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("scope holds %d tickets, want 1", len(list))
	}
}

func TestQueueHandler_BookErrors(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutQuota(queue.Quota{
		ID:        uuid.New(),
		SessionID: env.session.ID,
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Total:     1,
		Active:    true,
	})

	tomorrow := fiber.Map{
		"service_id": env.service.ID.String(),
		"session_id": env.session.ID.String(),
		"date":       "2026-03-10",
	}
	if status, _ := env.do(t, http.MethodPost, "/tickets", tomorrow); status != fiber.StatusCreated {
		t.Fatalf("first booking status = %d", status)
	}

	tests := []struct {
		name string
		body fiber.Map
		want int
	}{
		{"malformed service id", fiber.Map{"service_id": "nope"}, fiber.StatusBadRequest},
		{"malformed date", fiber.Map{"service_id": env.service.ID.String(), "date": "10/03/2026"}, fiber.StatusBadRequest},
		{"unknown service", fiber.Map{"service_id": uuid.NewString()}, fiber.StatusNotFound},
		{"unknown session", fiber.Map{"service_id": env.service.ID.String(), "session_id": uuid.NewString()}, fiber.StatusNotFound},
		{"date in past", fiber.Map{"service_id": env.service.ID.String(), "session_id": env.session.ID.String(), "date": "2026-03-02"}, fiber.StatusBadRequest},
		{"not practicing", fiber.Map{"service_id": env.service.ID.String(), "session_id": env.session.ID.String(), "date": "2026-03-11"}, fiber.StatusBadRequest},
		{"quota full", tomorrow, fiber.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/tickets", tt.body)
			if status != tt.want {
				t.Errorf("status = %d, want %d (error %s)", status, tt.want, body["error"])
			}
		})
	}
}

func TestQueueHandler_CancelTwice(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/tickets", fiber.Map{"service_id": env.service.ID.String()})
	tk := decodeTicket(t, body["data"])

	path := fmt.Sprintf("/tickets/%s/cancel", tk.ID)
	if status, _ := env.do(t, http.MethodPatch, path, nil); status != fiber.StatusOK {
		t.Fatalf("first cancel status = %d", status)
	}
	if status, _ := env.do(t, http.MethodPatch, path, nil); status != fiber.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", status)
	}
}

func TestQueueHandler_CallNext(t *testing.T) {
	env := newTestEnv(t)

	path := "/counters/c1/call-next"
	req := fiber.Map{"service_id": env.service.ID.String()}

	if status, _ := env.do(t, http.MethodPost, path, req); status != fiber.StatusNotFound {
		t.Fatalf("empty queue status = %d, want 404", status)
	}

	env.do(t, http.MethodPost, "/tickets", fiber.Map{"service_id": env.service.ID.String(), "session_id": env.session.ID.String()})

	status, body := env.do(t, http.MethodPost, path, req)
	if status != fiber.StatusOK {
		t.Fatalf("call-next status = %d", status)
	}
	tk := decodeTicket(t, body["data"])
	if tk.Status != queue.StatusServing || tk.CounterID == nil || *tk.CounterID != "c1" {
		t.Errorf("called ticket = %+v", tk)
	}
}

func TestMapQueueError(t *testing.T) {
	tests := []struct {
		err        error
		want       int
		retryAfter bool
	}{
		{queue.ErrDateInPast, fiber.StatusBadRequest, false},
		{queue.ErrSessionServiceMismatch, fiber.StatusBadRequest, false},
		{queue.ErrTicketNotFound, fiber.StatusNotFound, false},
		{queue.ErrNoWaitingTicket, fiber.StatusNotFound, false},
		{queue.ErrQuotaFull, fiber.StatusConflict, false},
		{fmt.Errorf("book: %w", queue.ErrDuplicateActiveTicket), fiber.StatusConflict, false},
		{queue.ErrInvalidTransition, fiber.StatusConflict, false},
		{queue.ErrBusy, fiber.StatusServiceUnavailable, true},
		{errors.New("boom"), fiber.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c fiber.Ctx) error { return mapQueueError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if got := resp.Header.Get(fiber.HeaderRetryAfter) != ""; got != tt.retryAfter {
				t.Errorf("Retry-After present = %v, want %v", got, tt.retryAfter)
			}
		})
	}
}
