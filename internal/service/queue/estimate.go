package queue

import (
	"fmt"
	"time"
)

type estimator struct {
	slot         time.Duration
	legacyAnchor TimeOfDay
}

func newEstimator(opts Options) estimator {
	return estimator{
		slot:         time.Duration(opts.SlotMinutes) * time.Minute,
		legacyAnchor: opts.LegacyAnchor,
	}
}

// anchor is the instant position 0 would be called at. On the scope's own
// day it never lies in the past.
func (e estimator) anchor(scope Scope, session *Session, now time.Time) time.Time {
	start := e.legacyAnchor.On(scope.Date)
	if session != nil {
		start = session.StartOn(scope.Date)
	}

	now = now.In(scope.Date.Location())
	if DateOf(now, nil).Equal(scope.Date) {
		if now.After(start) {
			return now
		}
	}
	return start
}

func (e estimator) at(anchor time.Time, position, extraDelay int) time.Time {
	return anchor.Add(time.Duration(position)*e.slot + time.Duration(extraDelay)*time.Minute)
}

// recompute re-ranks the waiting tickets in place and rewrites their
// estimates. Estimates are clamped so they never decrease in issue order.
func (e estimator) recompute(scope Scope, session *Session, tickets []Ticket, now time.Time) {
	anchor := e.anchor(scope, session, now)

	var prev time.Time
	pos := 0
	for i := range tickets {
		if tickets[i].Status != StatusWaiting {
			continue
		}
		pos++
		at := e.at(anchor, pos, tickets[i].ExtraDelayMinutes)
		if at.Before(prev) {
			at = prev
		}
		prev = at
		tickets[i].EstimatedCallAt = &at
	}
}

// baselineDelay is the extra delay a newly issued ticket inherits.
func baselineDelay(tickets []Ticket) int {
	baseline := 0
	for _, t := range tickets {
		if t.Status == StatusWaiting {
			baseline = max(baseline, t.ExtraDelayMinutes)
		}
	}
	return baseline
}

// changedTickets returns the entries of after whose estimate or extra delay
// differ from before. Both slices hold the same tickets in the same order.
func changedTickets(before, after []Ticket) []Ticket {
	var out []Ticket
	for i := range after {
		if !sameEstimate(before[i].EstimatedCallAt, after[i].EstimatedCallAt) ||
			before[i].ExtraDelayMinutes != after[i].ExtraDelayMinutes {
			out = append(out, after[i])
		}
	}
	return out
}

func sameEstimate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// ---------------------------------------------------------------------------
// Derived views
// ---------------------------------------------------------------------------

// Position is the 1-based rank of t among the waiting tickets of its scope,
// or 0 when t is not waiting. scopeTickets must be in issue order.
func Position(t Ticket, scopeTickets []Ticket) int {
	if t.Status != StatusWaiting {
		return 0
	}
	pos := 0
	for _, other := range scopeTickets {
		if other.Status != StatusWaiting {
			continue
		}
		pos++
		if other.ID == t.ID {
			return pos
		}
	}
	return 0
}

func IsOverdue(t Ticket, now time.Time) bool {
	return t.Status == StatusWaiting && t.EstimatedCallAt != nil && t.EstimatedCallAt.Before(now)
}

// FormatCountdown renders the time left until the estimated call,
// e.g. "in 25 min", "in 1 h 5 min", "now", "overdue by 10 min".
func FormatCountdown(t Ticket, now time.Time) string {
	if t.Status != StatusWaiting || t.EstimatedCallAt == nil {
		return ""
	}

	d := t.EstimatedCallAt.Sub(now).Round(time.Minute)
	switch {
	case d == 0:
		return "now"
	case d > 0:
		return "in " + formatMinutes(int(d/time.Minute))
	default:
		return "overdue by " + formatMinutes(int(-d/time.Minute))
	}
}

func formatMinutes(m int) string {
	h, m := m/60, m%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d min", m)
	case m == 0:
		return fmt.Sprintf("%d h", h)
	default:
		return fmt.Sprintf("%d h %d min", h, m)
	}
}

func viewOf(t Ticket, scopeTickets []Ticket, now time.Time) TicketView {
	return TicketView{
		Ticket:    t,
		Position:  Position(t, scopeTickets),
		Overdue:   IsOverdue(t, now),
		Countdown: FormatCountdown(t, now),
	}
}
