package queue

import (
	"testing"
	"time"
)

func TestCompensator_SessionScope(t *testing.T) {
	opts := DefaultOptions()
	est := newEstimator(opts)
	comp := newCompensator(opts, est)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	session := sessionAt(TimeOfDay{Hour: 8}, TimeOfDay{Hour: 12})
	scope := Scope{SessionID: &session.ID, Date: date}

	tickets := waitingTickets(1)
	overdue := clock(date, 8, 15)
	tickets[0].EstimatedCallAt = &overdue

	now := clock(date, 8, 20)
	changed := comp.compensate(scope, session, tickets, now)
	if len(changed) != 1 {
		t.Fatalf("changed = %d tickets, want 1", len(changed))
	}

	// now + position*slot + penalty
	want := clock(date, 8, 40)
	if !changed[0].EstimatedCallAt.Equal(want) {
		t.Errorf("estimate = %v, want %v", changed[0].EstimatedCallAt, want)
	}
	if changed[0].ExtraDelayMinutes != 5 {
		t.Errorf("extra delay = %d, want 5", changed[0].ExtraDelayMinutes)
	}

	// Nothing is overdue any more, so a second pass changes nothing.
	if again := comp.compensate(scope, session, changed, now); again != nil {
		t.Errorf("second pass changed %d tickets, want none", len(again))
	}
}

func TestCompensator_KeepsSeconds(t *testing.T) {
	opts := DefaultOptions()
	comp := newCompensator(opts, newEstimator(opts))

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	session := sessionAt(TimeOfDay{Hour: 8}, TimeOfDay{Hour: 12})
	scope := Scope{SessionID: &session.ID, Date: date}

	tickets := waitingTickets(1)
	overdue := clock(date, 8, 15)
	tickets[0].EstimatedCallAt = &overdue

	now := clock(date, 8, 20).Add(40 * time.Second)
	changed := comp.compensate(scope, session, tickets, now)
	if len(changed) != 1 {
		t.Fatalf("changed = %d tickets, want 1", len(changed))
	}
	if want := now.Add(20 * time.Minute); !changed[0].EstimatedCallAt.Equal(want) {
		t.Errorf("estimate = %v, want %v", changed[0].EstimatedCallAt, want)
	}

	legacy := waitingTickets(1)
	legacy[0].EstimatedCallAt = &overdue
	changed = comp.compensate(Scope{Date: date}, nil, legacy, now)
	if len(changed) != 1 {
		t.Fatalf("legacy changed = %d tickets, want 1", len(changed))
	}
	if want := now.Add(5 * time.Minute); !changed[0].EstimatedCallAt.Equal(want) {
		t.Errorf("legacy estimate = %v, want %v", changed[0].EstimatedCallAt, want)
	}
}

func TestCompensator_BumpsWholeScope(t *testing.T) {
	opts := DefaultOptions()
	est := newEstimator(opts)
	comp := newCompensator(opts, est)

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	session := sessionAt(TimeOfDay{Hour: 8}, TimeOfDay{Hour: 12})
	scope := Scope{SessionID: &session.ID, Date: date}

	tickets := waitingTickets(3)
	est.recompute(scope, session, tickets, clock(date, 7, 0))

	changed := comp.compensate(scope, session, tickets, clock(date, 8, 16))
	if len(changed) != 3 {
		t.Fatalf("changed = %d tickets, want 3", len(changed))
	}
	for i, tk := range changed {
		if tk.ExtraDelayMinutes != 5 {
			t.Errorf("ticket %d extra = %d, want 5", i, tk.ExtraDelayMinutes)
		}
		want := clock(date, 8, 16).Add(time.Duration(15*(i+1)+5) * time.Minute)
		if !tk.EstimatedCallAt.Equal(want) {
			t.Errorf("ticket %d estimate = %v, want %v", i, tk.EstimatedCallAt, want)
		}
	}
}

func TestCompensator_MaxExtraCaps(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxExtraDelayMinutes = 12
	comp := newCompensator(opts, newEstimator(opts))

	extra := 0
	for range 5 {
		extra = comp.bump(extra)
	}
	if extra != 12 {
		t.Errorf("extra = %d, want capped at 12", extra)
	}
}

func TestCompensator_LegacyScope(t *testing.T) {
	opts := DefaultOptions()
	comp := newCompensator(opts, newEstimator(opts))

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	scope := Scope{Date: date}
	now := clock(date, 10, 0)

	first := clock(date, 9, 30)
	second := clock(date, 10, 2)
	third := clock(date, 11, 0)
	tickets := waitingTickets(3)
	tickets[0].EstimatedCallAt = &first
	tickets[1].EstimatedCallAt = &second
	tickets[2].EstimatedCallAt = &third

	changed := comp.compensate(scope, nil, tickets, now)
	if len(changed) != 2 {
		t.Fatalf("changed = %d tickets, want 2", len(changed))
	}

	// The overdue ticket moves to now + penalty; the next one is pushed
	// along so it does not come first; the last one is untouched.
	if !changed[0].EstimatedCallAt.Equal(clock(date, 10, 5)) || changed[0].ExtraDelayMinutes != 5 {
		t.Errorf("first = %v extra %d, want 10:05 extra 5", changed[0].EstimatedCallAt, changed[0].ExtraDelayMinutes)
	}
	if !changed[1].EstimatedCallAt.Equal(clock(date, 10, 5)) || changed[1].ExtraDelayMinutes != 0 {
		t.Errorf("second = %v extra %d, want 10:05 extra 0", changed[1].EstimatedCallAt, changed[1].ExtraDelayMinutes)
	}
}
