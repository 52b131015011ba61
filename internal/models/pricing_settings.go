package models

import "time"

// PricingSettings are the operator-tuned values this core consumes. They
// are maintained by a separate admin CRUD; scanners re-read them on every
// run so changes take effect on the next tick.
type PricingSettings struct {
	// Fraction of the captured amount kept by the platform (0.10 = 10%).
	PlatformFeeFraction float64 `json:"platform_fee_fraction"`

	// How long a submitted job waits for homeowner review before the
	// approval monitor auto-approves it.
	ApprovalWindow time.Duration `json:"approval_window"`

	// How far past the scheduled end an in-progress job may run before
	// the auto-complete monitor force-completes it.
	AutoCompleteGrace time.Duration `json:"auto_complete_grace"`

	// Minute offsets past the scheduled end at which overdue reminders
	// fire, each at most once.
	ReminderOffsetsMinutes []int32 `json:"reminder_offsets_minutes"`
}

func DefaultPricingSettings() *PricingSettings {
	return &PricingSettings{
		PlatformFeeFraction:    0.10,
		ApprovalWindow:         4 * time.Hour,
		AutoCompleteGrace:      4 * time.Hour,
		ReminderOffsetsMinutes: []int32{30, 60, 120, 180, 210},
	}
}
