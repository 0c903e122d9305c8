package email

import (
	"cmp"
	"time"

	"github.com/Alijeyrad/clinicq_backend/config"
)

// Config holds SMTP settings for outgoing reminder mail.
type Config struct {
	Enabled bool
	From    string

	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMTPUseTLS         bool
	SMTPTimeoutSeconds int
}

func DefaultConfig() Config {
	return Config{
		SMTPPort:           587,
		SMTPUseTLS:         true,
		SMTPTimeoutSeconds: 30,
	}
}

// SMTPTimeout returns the SMTP timeout as a duration
func (c Config) SMTPTimeout() time.Duration {
	if c.SMTPTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

// FromCentralConfig converts central config.EmailConfig to package Config,
// falling back to DefaultConfig for unset port and timeout.
func FromCentralConfig(c config.EmailConfig) Config {
	def := DefaultConfig()
	return Config{
		Enabled:            c.Enabled,
		From:               c.From,
		SMTPHost:           c.SMTP.Host,
		SMTPPort:           cmp.Or(c.SMTP.Port, def.SMTPPort),
		SMTPUsername:       c.SMTP.Username,
		SMTPPassword:       c.SMTP.Password,
		SMTPUseTLS:         c.SMTP.UseTLS,
		SMTPTimeoutSeconds: cmp.Or(c.SMTP.TimeoutSeconds, def.SMTPTimeoutSeconds),
	}
}
