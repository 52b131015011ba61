package models

import (
	"time"

	"github.com/google/uuid"
)

// CleanerCompletion is one cleaner's completion sub-record for one
// appointment. For multi-cleaner jobs the appointment aggregate submits
// only when every assigned cleaner's sub-record has submitted; the
// aggregate status is derived from these rows, never mutated on its own.
type CleanerCompletion struct {
	ID            uuid.UUID            `json:"id"`
	AppointmentID uuid.UUID            `json:"appointment_id"`
	CleanerID     uuid.UUID            `json:"cleaner_id"`
	Status        CompletionStatusType `json:"status"`
	SubmittedAt   *time.Time           `json:"submitted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
