package sms

import (
	"context"
	"fmt"

	"github.com/arsmn/go-smsir/smsir"
	"github.com/nyaruka/phonenumbers"

	"github.com/Alijeyrad/clinicq_backend/config"
)

// Client provides SMS sending functionality via sms.ir.
type Client struct {
	client        *smsir.Client
	enabled       bool
	templateID    string
	defaultRegion string
}

// NewFromConfig creates a new SMS client from the application configuration.
// If SMS is disabled, returns a client that no-ops on all operations.
func NewFromConfig(cfg config.SMSConfig) (*Client, error) {
	region := cfg.DefaultRegion
	if region == "" {
		region = "IR"
	}

	if !cfg.Enabled {
		return &Client{enabled: false, defaultRegion: region}, nil
	}

	if cfg.SMSIR.APIKey == "" {
		return nil, fmt.Errorf("sms.ir API key required when SMS enabled")
	}

	client := smsir.NewClient().WithAuthentication(cfg.SMSIR.APIKey, cfg.SMSIR.SecretKey)

	return &Client{
		client:        client,
		enabled:       true,
		templateID:    cfg.SMSIR.TemplateID,
		defaultRegion: region,
	}, nil
}

// ReminderParams fills the reminder template. The template must declare
// the parameters "number", "service" and "time".
type ReminderParams struct {
	Number  string
	Service string
	Time    string
}

// SendReminder sends a queue reminder using the configured template.
// If SMS is disabled, this is a no-op and returns nil.
func (c *Client) SendReminder(ctx context.Context, phoneNumber string, p ReminderParams) error {
	if !c.enabled {
		return nil
	}

	if c.templateID == "" {
		return fmt.Errorf("template ID is required")
	}
	if p.Number == "" || p.Time == "" {
		return fmt.Errorf("ticket number and time are required")
	}

	mobile, err := NormalizePhone(phoneNumber, c.defaultRegion)
	if err != nil {
		return err
	}

	req := &smsir.UltraFastSendRequest{
		Mobile:     mobile,
		TemplateID: c.templateID,
		Parameters: []smsir.UltraFastParameter{
			{Key: "number", Value: p.Number},
			{Key: "service", Value: p.Service},
			{Key: "time", Value: p.Time},
		},
	}

	if _, err := c.client.Verification.UltraFastSend(ctx, req); err != nil {
		return fmt.Errorf("sms.ir send failed: %w", err)
	}

	return nil
}

// NormalizePhone parses a local or international number and returns it in
// E.164 form. Local numbers are read in region.
func NormalizePhone(phoneNumber, region string) (string, error) {
	if phoneNumber == "" {
		return "", fmt.Errorf("phone number is required")
	}

	num, err := phonenumbers.Parse(phoneNumber, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", phoneNumber, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", phoneNumber)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// IsEnabled returns whether SMS sending is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}
