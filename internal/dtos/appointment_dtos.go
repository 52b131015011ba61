package dtos

import (
	"time"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

type AppointmentActionRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required,uuid4"`
}

// AppointmentResponse is the client-facing projection of an appointment's
// payment and completion state.
type AppointmentResponse struct {
	ID                    string     `json:"id"`
	HomeownerID           string     `json:"homeowner_id"`
	ServiceDate           string     `json:"service_date"`
	ScheduledStartTime    time.Time  `json:"scheduled_start_time"`
	ScheduledEndTime      time.Time  `json:"scheduled_end_time"`
	PaymentStatus         string     `json:"payment_status"`
	Paid                  bool       `json:"paid"`
	CaptureFailed         bool       `json:"capture_failed"`
	CompletionStatus      string     `json:"completion_status"`
	JobStartedAt          *time.Time `json:"job_started_at,omitempty"`
	CompletionSubmittedAt *time.Time `json:"completion_submitted_at,omitempty"`
	AutoApprovalDeadline  *time.Time `json:"auto_approval_deadline,omitempty"`
	CompletionApprovedAt  *time.Time `json:"completion_approved_at,omitempty"`
	CompletionApprovedBy  *string    `json:"completion_approved_by,omitempty"`
	AutoCompletedBySystem bool       `json:"auto_completed_by_system"`
}

func NewAppointmentResponse(a *models.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                    a.ID.String(),
		HomeownerID:           a.HomeownerID.String(),
		ServiceDate:           a.ServiceDate.Format("2006-01-02"),
		ScheduledStartTime:    a.ScheduledStartTime,
		ScheduledEndTime:      a.ScheduledEndTime,
		PaymentStatus:         string(a.PaymentStatus),
		Paid:                  a.Paid,
		CaptureFailed:         a.CaptureFailed,
		CompletionStatus:      string(a.CompletionStatus),
		JobStartedAt:          a.JobStartedAt,
		CompletionSubmittedAt: a.CompletionSubmittedAt,
		AutoApprovalDeadline:  a.AutoApprovalDeadline,
		CompletionApprovedAt:  a.CompletionApprovedAt,
		CompletionApprovedBy:  a.CompletionApprovedBy,
		AutoCompletedBySystem: a.AutoCompletedBySystem,
	}
}
