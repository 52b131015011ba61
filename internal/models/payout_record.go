package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatusType defines the possible states of a cleaner payout record.
type PayoutStatusType string

const (
	PayoutStatusPending    PayoutStatusType = "PENDING"
	PayoutStatusHeld       PayoutStatusType = "HELD"
	PayoutStatusProcessing PayoutStatusType = "PROCESSING"
	PayoutStatusCompleted  PayoutStatusType = "COMPLETED"
	PayoutStatusFailed     PayoutStatusType = "FAILED"
)

// PayoutRecord is one cleaner's share of one appointment's captured amount.
// Created PENDING at assignment, HELD once the homeowner's payment is
// captured, PROCESSING/COMPLETED around the Stripe transfer, FAILED on
// transfer error (retried by the payout retry scanner).
type PayoutRecord struct {
	Versioned

	ID              uuid.UUID        `json:"id"`
	AppointmentID   uuid.UUID        `json:"appointment_id"`
	CleanerID       uuid.UUID        `json:"cleaner_id"`
	GrossShareCents int64            `json:"gross_share_cents"`
	Status          PayoutStatusType `json:"status"`

	PaymentCapturedAt *time.Time `json:"payment_captured_at,omitempty"`
	ReleasedAt        *time.Time `json:"released_at,omitempty"`

	TransferRef       *string    `json:"transfer_ref,omitempty"`
	LastFailureReason *string    `json:"last_failure_reason,omitempty"`
	RetryCount        int        `json:"retry_count"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt     *time.Time `json:"next_attempt_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PayoutRecord) GetID() string {
	return p.ID.String()
}
