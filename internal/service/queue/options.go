package queue

import (
	"fmt"
	"time"

	"github.com/Alijeyrad/clinicq_backend/config"
)

// Options holds the allocator's tunables.
type Options struct {
	Location             *time.Location
	SlotMinutes          int
	DefaultQuota         int
	DefaultPadding       int
	LegacyAnchor         TimeOfDay
	PenaltyMinutes       int
	MaxExtraDelayMinutes int // 0 = uncapped
	ReminderTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		Location:        time.UTC,
		SlotMinutes:     15,
		DefaultQuota:    20,
		DefaultPadding:  3,
		LegacyAnchor:    TimeOfDay{Hour: 8},
		PenaltyMinutes:  5,
		ReminderTimeout: 10 * time.Second,
	}
}

// OptionsFromConfig converts central config.QueueConfig to Options.
func OptionsFromConfig(c config.QueueConfig) (Options, error) {
	opts := DefaultOptions()

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return Options{}, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	opts.Location = loc

	if c.LegacyAnchor != "" {
		anchor, err := ParseTimeOfDay(c.LegacyAnchor)
		if err != nil {
			return Options{}, err
		}
		opts.LegacyAnchor = anchor
	}
	if c.SlotMinutes > 0 {
		opts.SlotMinutes = c.SlotMinutes
	}
	if c.DefaultQuota > 0 {
		opts.DefaultQuota = c.DefaultQuota
	}
	if c.NumberPadding > 0 {
		opts.DefaultPadding = c.NumberPadding
	}
	if c.OverduePenaltyMinutes > 0 {
		opts.PenaltyMinutes = c.OverduePenaltyMinutes
	}
	opts.MaxExtraDelayMinutes = c.MaxExtraDelayMinutes
	if c.ReminderTimeoutSeconds > 0 {
		opts.ReminderTimeout = time.Duration(c.ReminderTimeoutSeconds) * time.Second
	}

	return opts, nil
}
