package utils

import (
	"errors"
	"net/http"
)

// Domain-level errors used by the service layer to provide
// fine-grained failure reasons.
var (
	ErrWrongStatus         = errors.New("wrong_status")
	ErrNotAssignedCleaner  = errors.New("not_assigned_cleaner")
	ErrNotHomeowner        = errors.New("not_appointment_homeowner")
	ErrAppointmentNotFound = errors.New("appointment_not_found")
	ErrNoPaymentMethod     = errors.New("no_payment_method")

	// Raised by the payout layer when a release is requested for an
	// appointment that is not both captured and approved. Should be
	// unreachable given the monitors' gating conditions.
	ErrPayoutNotReleasable = errors.New("payout_not_releasable")

	// For concurrency conflicts
	ErrRowVersionConflict = errors.New("row_version_conflict")
	ErrNoRowsUpdated      = errors.New("no_rows_updated")

	// For external service failures (Stripe, Twilio, SendGrid)
	ErrExternalServiceFailure = errors.New("external_service_failure")
)

// AppError for structured error handling from services to controllers.
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// HandleAppError centralizes responding to AppErrors.
func HandleAppError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		RespondErrorWithCode(w, appErr.StatusCode, appErr.Code, appErr.Message, nil, appErr.Err)
	} else {
		RespondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred", nil, err)
	}
}
