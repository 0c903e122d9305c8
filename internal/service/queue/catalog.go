package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type catalog struct {
	clock Clock
	loc   *time.Location
}

func (c catalog) today() time.Time {
	return DateOf(c.clock.Now(), c.loc)
}

// validate checks that the session can take a booking on date.
func (c catalog) validate(ctx context.Context, repo Repository, sessionID uuid.UUID, date time.Time) (Session, error) {
	session, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !session.Active {
		return Session{}, ErrSessionNotFound
	}

	today := c.today()
	if date.Before(today) {
		return Session{}, ErrDateInPast
	}
	if !session.PracticesOn(date) {
		return Session{}, ErrNotPracticingOnDate
	}
	if date.Equal(today) && !c.clock.Now().Before(session.EndOn(date)) {
		return Session{}, ErrSessionEnded
	}
	return session, nil
}

// practicing lists the active sessions that recur on date and, for today,
// have not yet ended.
func (c catalog) practicing(ctx context.Context, repo Repository, date time.Time) ([]Session, error) {
	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	isToday := date.Equal(c.today())
	now := c.clock.Now()

	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.Active || !s.PracticesOn(date) {
			continue
		}
		if isToday && !now.Before(s.EndOn(date)) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// sessionFor loads the session of a scope, or nil for a legacy scope.
func sessionFor(ctx context.Context, repo Repository, scope Scope) (*Session, error) {
	if scope.SessionID == nil {
		return nil, nil
	}
	s, err := repo.GetSession(ctx, *scope.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}
