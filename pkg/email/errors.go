package email

import "errors"

var (
	// ErrDisabled is returned by Send when delivery is switched off.
	ErrDisabled = errors.New("email: delivery disabled")
	// ErrNoHost rejects an enabled client without an SMTP host.
	ErrNoHost = errors.New("email: smtp host is required when enabled")
)

// MissingFieldError names the part of a message that was left empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "email: message " + e.Field + " is required"
}
