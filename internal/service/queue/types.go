package queue

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusServing  Status = "serving"
	StatusFinished Status = "finished"
	StatusCanceled Status = "canceled"
)

// Active reports whether the ticket still holds a place for its day.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusServing
}

// Counted reports whether the ticket consumes quota.
func (s Status) Counted() bool {
	return s == StatusWaiting || s == StatusServing || s == StatusFinished
}

// ---------------------------------------------------------------------------
// Calendar helpers
// ---------------------------------------------------------------------------

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hs, ms, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func TimeOfDayFromMinutes(minutes int) TimeOfDay {
	return TimeOfDay{Hour: minutes / 60, Minute: minutes % 60}
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Minutes() < o.Minutes() }

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, date.Location())
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseDate reads a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, loc)
}

// ---------------------------------------------------------------------------
// Catalog entities
// ---------------------------------------------------------------------------

// ClinicService is a polyclinic service desk; it owns the ticket prefix.
type ClinicService struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Prefix  string    `json:"prefix"`
	Padding int       `json:"padding"`
	Active  bool      `json:"active"`
}

// Session is a doctor's recurring practice slot.
type Session struct {
	ID         uuid.UUID      `json:"id"`
	ServiceID  uuid.UUID      `json:"service_id"`
	DoctorName string         `json:"doctor_name"`
	Days       []time.Weekday `json:"days"`
	Start      TimeOfDay      `json:"start"`
	End        TimeOfDay      `json:"end"`
	Active     bool           `json:"active"`
}

func (s Session) PracticesOn(date time.Time) bool {
	return slices.Contains(s.Days, date.Weekday())
}

func (s Session) StartOn(date time.Time) time.Time { return s.Start.On(date) }

func (s Session) EndOn(date time.Time) time.Time { return s.End.On(date) }

// Patient carries only what a reminder needs.
type Patient struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
	Email string    `json:"email"`
}

// ---------------------------------------------------------------------------
// Quota
// ---------------------------------------------------------------------------

type Quota struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Date      time.Time `json:"date"`
	Total     int       `json:"total"`
	Used      int       `json:"used"`
	Active    bool      `json:"active"`
}

func (q Quota) Remaining() int { return max(0, q.Total-q.Used) }

func (q Quota) Available() bool { return q.Active && q.Used < q.Total }

type QuotaStatus string

const (
	QuotaEmpty      QuotaStatus = "empty"
	QuotaAvailable  QuotaStatus = "available"
	QuotaNearlyFull QuotaStatus = "nearly_full"
	QuotaFull       QuotaStatus = "full"
)

// QuotaStatusOf classifies a quota for display; it never gates a booking.
func QuotaStatusOf(total, used int) QuotaStatus {
	switch {
	case used >= total:
		return QuotaFull
	case used == 0:
		return QuotaEmpty
	case used*5 >= total*4:
		return QuotaNearlyFull
	default:
		return QuotaAvailable
	}
}

// ---------------------------------------------------------------------------
// Ticket
// ---------------------------------------------------------------------------

type Ticket struct {
	ID                uuid.UUID  `json:"id"`
	Serial            int64      `json:"-"`
	ServiceID         uuid.UUID  `json:"service_id"`
	SessionID         *uuid.UUID `json:"session_id,omitempty"`
	PatientID         *uuid.UUID `json:"patient_id,omitempty"`
	CounterID         *string    `json:"counter_id,omitempty"`
	Number            string     `json:"number"`
	Seq               int        `json:"seq"`
	Date              time.Time  `json:"date"`
	Status            Status     `json:"status"`
	EstimatedCallAt   *time.Time `json:"estimated_call_at,omitempty"`
	ExtraDelayMinutes int        `json:"extra_delay_minutes"`
	CreatedAt         time.Time  `json:"created_at"`
	CalledAt          *time.Time `json:"called_at,omitempty"`
	ServedAt          *time.Time `json:"served_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
}

// TicketView is a ticket with its derived, never persisted, fields.
type TicketView struct {
	Ticket
	Position  int    `json:"position"`
	Overdue   bool   `json:"overdue"`
	Countdown string `json:"countdown"`
}

// ---------------------------------------------------------------------------
// Scope
// ---------------------------------------------------------------------------

// Scope is the unit within which numbers, positions, estimates and locks
// are computed. A nil SessionID marks a legacy non-session scope.
type Scope struct {
	ServiceID uuid.UUID
	SessionID *uuid.UUID
	Date      time.Time
}

func ScopeOf(t Ticket) Scope {
	return Scope{ServiceID: t.ServiceID, SessionID: t.SessionID, Date: t.Date}
}

func (s Scope) Legacy() bool { return s.SessionID == nil }

func (s Scope) Key() string {
	session := "none"
	if s.SessionID != nil {
		session = s.SessionID.String()
	}
	return fmt.Sprintf("svc:%s|ses:%s|%s", s.ServiceID, session, s.Date.Format(time.DateOnly))
}

func (s Scope) Contains(t Ticket) bool {
	return ScopeOf(t).Key() == s.Key()
}

// ---------------------------------------------------------------------------
// Views returned to callers
// ---------------------------------------------------------------------------

type QuotaSnapshot struct {
	Total     int         `json:"total"`
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"`
	Status    QuotaStatus `json:"status"`
}

type SessionAvailability struct {
	Session Session       `json:"session"`
	Date    time.Time     `json:"date"`
	StartAt time.Time     `json:"start_at"`
	EndAt   time.Time     `json:"end_at"`
	Quota   QuotaSnapshot `json:"quota"`
}

type SlotPreview struct {
	SessionID           uuid.UUID     `json:"session_id"`
	Date                time.Time     `json:"date"`
	Quota               QuotaSnapshot `json:"quota"`
	NextPosition        int           `json:"next_position"`
	NextEstimatedCallAt time.Time     `json:"next_estimated_call_at"`
}

type SweepResult struct {
	ScopesScanned     int `json:"scopes_scanned"`
	ScopesCompensated int `json:"scopes_compensated"`
	TicketsUpdated    int `json:"tickets_updated"`
}
