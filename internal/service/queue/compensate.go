package queue

import (
	"slices"
	"time"
)

type compensator struct {
	penalty  int
	maxExtra int
	est      estimator
}

func newCompensator(opts Options, est estimator) compensator {
	return compensator{
		penalty:  opts.PenaltyMinutes,
		maxExtra: opts.MaxExtraDelayMinutes,
		est:      est,
	}
}

func (c compensator) bump(extra int) int {
	extra += c.penalty
	if c.maxExtra > 0 {
		extra = min(extra, c.maxExtra)
	}
	return extra
}

// compensate applies the overdue penalty to one scope and returns the
// tickets that need to be written back. It returns nil when no waiting
// ticket is overdue, which makes a repeated sweep a no-op.
func (c compensator) compensate(scope Scope, session *Session, tickets []Ticket, now time.Time) []Ticket {
	if !slices.ContainsFunc(tickets, func(t Ticket) bool { return IsOverdue(t, now) }) {
		return nil
	}

	after := slices.Clone(tickets)
	if scope.Legacy() {
		c.resetOverdue(after, now)
	} else {
		for i := range after {
			if after[i].Status == StatusWaiting {
				after[i].ExtraDelayMinutes = c.bump(after[i].ExtraDelayMinutes)
			}
		}
		c.est.recompute(scope, session, after, now)
	}
	return changedTickets(tickets, after)
}

// resetOverdue moves each overdue legacy ticket to now + penalty on its own,
// then pushes later tickets forward so no estimate precedes an earlier one.
func (c compensator) resetOverdue(tickets []Ticket, now time.Time) {
	target := now.Add(time.Duration(c.penalty) * time.Minute)

	var prev time.Time
	for i := range tickets {
		t := &tickets[i]
		if t.Status != StatusWaiting {
			continue
		}
		if IsOverdue(*t, now) {
			t.ExtraDelayMinutes = c.bump(t.ExtraDelayMinutes)
			at := target
			t.EstimatedCallAt = &at
		}
		if t.EstimatedCallAt == nil {
			continue
		}
		if t.EstimatedCallAt.Before(prev) {
			at := prev
			t.EstimatedCallAt = &at
		}
		prev = *t.EstimatedCallAt
	}
}
