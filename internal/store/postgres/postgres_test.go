package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
)

func TestMapError(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"lock timeout", &pgconn.PgError{Code: codeLockNotAvailable}, queue.ErrBusy},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, queue.ErrBusy},
		{"serialization", fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeSerializationFailure}), queue.ErrBusy},
		{"patient index", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: patientActiveIndex}, queue.ErrDuplicateActiveTicket},
		{"plain error", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapError = %v, want %v", got, tt.want)
			}
		})
	}

	other := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "tickets_active_number_idx"}
	if got := mapError(other); errors.Is(got, queue.ErrDuplicateActiveTicket) {
		t.Errorf("number collision mapped to duplicate patient: %v", got)
	}
}
