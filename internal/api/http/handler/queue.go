package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
)

// retryAfterSeconds is sent with 503 responses when a scope lock could not
// be taken in time.
const retryAfterSeconds = "1"

type QueueHandler struct {
	svc queue.Service
	loc *time.Location
}

func NewQueueHandler(svc queue.Service, loc *time.Location) *QueueHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &QueueHandler{svc: svc, loc: loc}
}

func mapQueueError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, queue.ErrDateInPast),
		errors.Is(err, queue.ErrNotPracticingOnDate),
		errors.Is(err, queue.ErrSessionEnded),
		errors.Is(err, queue.ErrSessionServiceMismatch):
		return badRequest(c, err.Error())
	case errors.Is(err, queue.ErrSessionNotFound),
		errors.Is(err, queue.ErrServiceNotFound),
		errors.Is(err, queue.ErrPatientNotFound),
		errors.Is(err, queue.ErrTicketNotFound),
		errors.Is(err, queue.ErrNoWaitingTicket):
		return notFound(c, err.Error())
	case errors.Is(err, queue.ErrQuotaFull),
		errors.Is(err, queue.ErrDuplicateActiveTicket),
		errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, queue.ErrNumberSpaceExhausted):
		return conflict(c, err.Error())
	case errors.Is(err, queue.ErrBusy):
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
		return serviceUnavailable(c, err.Error())
	default:
		return internalError(c)
	}
}

// parseDate reads an optional YYYY-MM-DD value; empty means today.
func (h *QueueHandler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return queue.ParseDate(s, h.loc)
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ---------------------------------------------------------------------------
// Session catalog
// ---------------------------------------------------------------------------

// GET /sessions/available
func (h *QueueHandler) AvailableSessions(c fiber.Ctx) error {
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	sessions, err := h.svc.AvailableSessions(c.Context(), date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, sessions)
}

// GET /sessions/:id/preview
func (h *QueueHandler) PreviewSlots(c fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid session id")
	}
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	preview, err := h.svc.PreviewSlots(c.Context(), sessionID, date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, preview)
}

// GET /services/:id/next-number
func (h *QueueHandler) PreviewNextNumber(c fiber.Ctx) error {
	serviceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid service id")
	}

	var q struct {
		SessionID string `query:"session_id"`
		Date      string `query:"date"`
	}
	_ = c.Bind().Query(&q)

	sessionID, err := parseOptionalUUID(&q.SessionID)
	if err != nil {
		return badRequest(c, "invalid session_id")
	}
	date, err := h.parseDate(q.Date)
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	number, err := h.svc.PreviewNextNumber(c.Context(), serviceID, sessionID, date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, fiber.Map{"number": number})
}

// GET /services/:id/tickets
func (h *QueueHandler) ListScope(c fiber.Ctx) error {
	serviceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid service id")
	}

	var q struct {
		SessionID string `query:"session_id"`
		Date      string `query:"date"`
	}
	_ = c.Bind().Query(&q)

	sessionID, err := parseOptionalUUID(&q.SessionID)
	if err != nil {
		return badRequest(c, "invalid session_id")
	}
	date, err := h.parseDate(q.Date)
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	tickets, err := h.svc.ListScope(c.Context(), queue.Scope{ServiceID: serviceID, SessionID: sessionID, Date: date})
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, tickets)
}

// ---------------------------------------------------------------------------
// Tickets
// ---------------------------------------------------------------------------

// POST /tickets
func (h *QueueHandler) Book(c fiber.Ctx) error {
	var body struct {
		ServiceID string  `json:"service_id"`
		PatientID *string `json:"patient_id"`
		SessionID *string `json:"session_id"`
		Date      string  `json:"date"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	serviceID, err := uuid.Parse(body.ServiceID)
	if err != nil {
		return badRequest(c, "invalid service_id")
	}
	req := queue.BookRequest{ServiceID: serviceID}

	if req.PatientID, err = parseOptionalUUID(body.PatientID); err != nil {
		return badRequest(c, "invalid patient_id")
	}
	if req.SessionID, err = parseOptionalUUID(body.SessionID); err != nil {
		return badRequest(c, "invalid session_id")
	}
	if req.Date, err = h.parseDate(body.Date); err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	t, err := h.svc.Book(c.Context(), req)
	if err != nil {
		return mapQueueError(c, err)
	}

	return created(c, t)
}

// GET /tickets/:id
func (h *QueueHandler) Get(c fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid ticket id")
	}

	t, err := h.svc.GetTicket(c.Context(), ticketID)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, t)
}

// PATCH /tickets/:id
func (h *QueueHandler) Edit(c fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid ticket id")
	}

	var body struct {
		ServiceID    *string `json:"service_id"`
		SessionID    *string `json:"session_id"`
		ClearSession bool    `json:"clear_session"`
		Date         *string `json:"date"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	req := queue.EditRequest{ClearSession: body.ClearSession}
	if req.ServiceID, err = parseOptionalUUID(body.ServiceID); err != nil {
		return badRequest(c, "invalid service_id")
	}
	if req.SessionID, err = parseOptionalUUID(body.SessionID); err != nil {
		return badRequest(c, "invalid session_id")
	}
	if body.Date != nil {
		date, err := queue.ParseDate(*body.Date, h.loc)
		if err != nil {
			return badRequest(c, "invalid date, expected YYYY-MM-DD")
		}
		req.Date = &date
	}

	t, err := h.svc.Edit(c.Context(), ticketID, req)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, t)
}

// PATCH /tickets/:id/cancel
func (h *QueueHandler) Cancel(c fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid ticket id")
	}

	t, err := h.svc.Cancel(c.Context(), ticketID)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, t)
}

// PATCH /tickets/:id/finish
func (h *QueueHandler) Finish(c fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid ticket id")
	}

	t, err := h.svc.Finish(c.Context(), ticketID)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, t)
}

// GET /tickets/:id/printable
func (h *QueueHandler) Printable(c fiber.Ctx) error {
	ticketID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid ticket id")
	}

	printable, err := h.svc.Printable(c.Context(), ticketID)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, fiber.Map{"printable": printable})
}

// GET /patients/:pid/active-ticket
func (h *QueueHandler) ActiveTicket(c fiber.Ctx) error {
	patientID, err := uuid.Parse(c.Params("pid"))
	if err != nil {
		return badRequest(c, "invalid patient id")
	}
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	t, err := h.svc.ActiveTicket(c.Context(), patientID, date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, t)
}

// ---------------------------------------------------------------------------
// Counters
// ---------------------------------------------------------------------------

// POST /counters/:cid/call-next
func (h *QueueHandler) CallNext(c fiber.Ctx) error {
	counterID := c.Params("cid")
	if counterID == "" {
		return badRequest(c, "counter id is required")
	}

	var body struct {
		ServiceID string `json:"service_id"`
		Date      string `json:"date"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	serviceID, err := uuid.Parse(body.ServiceID)
	if err != nil {
		return badRequest(c, "invalid service_id")
	}
	date, err := h.parseDate(body.Date)
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	t, err := h.svc.CallNext(c.Context(), queue.CallNextRequest{
		CounterID: counterID,
		ServiceID: serviceID,
		Date:      date,
	})
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, t)
}

// ---------------------------------------------------------------------------
// Administration
// ---------------------------------------------------------------------------

// POST /quotas/sync
func (h *QueueHandler) SyncQuotas(c fiber.Ctx) error {
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	n, err := h.svc.SyncQuotas(c.Context(), date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, fiber.Map{"updated": n})
}

// POST /quotas/defaults
func (h *QueueHandler) CreateDefaultQuotas(c fiber.Ctx) error {
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	n, err := h.svc.CreateDefaultQuotas(c.Context(), date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return created(c, fiber.Map{"created": n})
}

// POST /sweeps/overdue
func (h *QueueHandler) RunOverdueSweep(c fiber.Ctx) error {
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	res, err := h.svc.RunOverdueSweep(c.Context(), date)
	if err != nil {
		return mapQueueError(c, err)
	}

	return ok(c, res)
}
