package queue

import "errors"

var (
	ErrDateInPast             = errors.New("date is in the past")
	ErrSessionNotFound        = errors.New("session not found")
	ErrNotPracticingOnDate    = errors.New("session does not practice on the requested date")
	ErrSessionEnded           = errors.New("session has already ended for today")
	ErrSessionServiceMismatch = errors.New("session does not belong to the requested service")
	ErrServiceNotFound        = errors.New("service not found")
	ErrPatientNotFound        = errors.New("patient not found")
	ErrQuotaFull              = errors.New("quota is full for this session and date")
	ErrDuplicateActiveTicket  = errors.New("patient already holds an active ticket for this date")
	ErrBusy                   = errors.New("queue is busy, retry later")
	ErrInvalidTransition      = errors.New("invalid ticket status transition")
	ErrTicketNotFound         = errors.New("ticket not found")
	ErrNoWaitingTicket        = errors.New("no waiting ticket for this service")
	ErrNumberSpaceExhausted   = errors.New("ticket number space exhausted for this scope")
)
