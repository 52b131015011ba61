package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatusType string

const (
	PaymentStatusPending  PaymentStatusType = "PENDING"
	PaymentStatusCaptured PaymentStatusType = "CAPTURED"
	PaymentStatusFailed   PaymentStatusType = "FAILED"
)

type CompletionStatusType string

const (
	CompletionStatusInProgress   CompletionStatusType = "IN_PROGRESS"
	CompletionStatusSubmitted    CompletionStatusType = "SUBMITTED"
	CompletionStatusApproved     CompletionStatusType = "APPROVED"
	CompletionStatusAutoApproved CompletionStatusType = "AUTO_APPROVED"
)

// SystemApprover is the sentinel stored in CompletionApprovedBy when the
// approval monitor (not a person) approved the job.
const SystemApprover = "system"

// Appointment is one scheduled cleaning for a homeowner, carrying both the
// payment sub-state driven by the capture scanner and the completion
// sub-state driven by cleaners and the monitors.
type Appointment struct {
	Versioned

	ID          uuid.UUID `json:"id"`
	HomeownerID uuid.UUID `json:"homeowner_id"`

	ServiceDate        time.Time `json:"service_date"`
	ScheduledStartTime time.Time `json:"scheduled_start_time"`
	ScheduledEndTime   time.Time `json:"scheduled_end_time"`

	// Ordered; non-empty only after assignment.
	AssignedCleanerIDs []uuid.UUID `json:"assigned_cleaner_ids,omitempty"`

	// Payment sub-state
	PaymentStatus        PaymentStatusType `json:"payment_status"`
	PaymentIntentRef     *string           `json:"payment_intent_ref,omitempty"`
	PriceCents           int64             `json:"price_cents"`
	CapturedAmountCents  *int64            `json:"captured_amount_cents,omitempty"`
	Paid                 bool              `json:"paid"`
	CaptureFailed        bool              `json:"capture_failed"`
	CaptureFailureReason *string           `json:"capture_failure_reason,omitempty"`

	// Completion sub-state
	CompletionStatus      CompletionStatusType `json:"completion_status"`
	JobStartedAt          *time.Time           `json:"job_started_at,omitempty"`
	CompletionSubmittedAt *time.Time           `json:"completion_submitted_at,omitempty"`
	AutoApprovalDeadline  *time.Time           `json:"auto_approval_deadline,omitempty"`
	CompletionApprovedAt  *time.Time           `json:"completion_approved_at,omitempty"`
	CompletionApprovedBy  *string              `json:"completion_approved_by,omitempty"`
	AutoCompletedBySystem bool                 `json:"auto_completed_by_system"`

	// Minute offsets past ScheduledEndTime whose overdue reminder has
	// already been sent.
	RemindersSent []int32 `json:"reminders_sent,omitempty"`

	HomeownerFeedbackRequired bool `json:"homeowner_feedback_required"`

	// Cleaner id (string form) -> allocation fraction. Nil means equal split.
	SplitOverrides map[string]float64 `json:"split_overrides,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Appointment) GetID() string {
	return a.ID.String()
}

func (a *Appointment) IsMultiCleaner() bool {
	return len(a.AssignedCleanerIDs) > 1
}

// AutoCompleteDeadline is derived, not stored: the moment past which an
// in-progress job is force-completed by the auto-complete monitor.
func (a *Appointment) AutoCompleteDeadline(grace time.Duration) time.Time {
	return a.ScheduledEndTime.Add(grace)
}

// ReminderAlreadySent reports whether the overdue reminder for the given
// minute offset has already fired for this appointment.
func (a *Appointment) ReminderAlreadySent(offsetMinutes int32) bool {
	for _, m := range a.RemindersSent {
		if m == offsetMinutes {
			return true
		}
	}
	return false
}
