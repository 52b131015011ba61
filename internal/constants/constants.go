package constants

import "time"

const (
	BusinessTimezone = "America/New_York"
)

// Capture scanner
const (
	// Appointments with a service date within [today, today+N] are
	// eligible for capture.
	CaptureWindowDays      = 3
	ShortCaptureWindowDays = 1
)

// Scanner scheduling
const (
	CaptureScanCronSpec         = "15 6 * * *" // 06:15 UTC daily
	ApprovalMonitorCronSpec     = "@every 2m"
	AutoCompleteMonitorCronSpec = "@every 2m"
	PayoutRetryCronSpec         = "@every 30m"

	CaptureScanTimeout = 15 * time.Minute
	MonitorScanTimeout = 5 * time.Minute
)

// Payout retry policy
const (
	PayoutBaseRetryDelay = 1 * time.Hour
	PayoutMaxRetries     = 5
)

// Capture failure reasons (persisted on the appointment; a human clears
// capture_failed after fixing the underlying problem).
const (
	ReasonNoPaymentMethod   = "failed:no_payment_method"
	ReasonHomeownerNotFound = "failed:homeowner_not_found"
	ReasonNoStripeCustomer  = "failed:no_stripe_customer"
	ReasonGatewayError      = "failed:gateway_error"
	ReasonIntentNotCaptured = "failed:intent_not_captured"
)

// Payout failure reasons for non-Stripe-error-code scenarios.
const (
	ReasonCleanerNotFound      = "cleaner_record_not_found"
	ReasonMissingStripeID      = "cleaner_missing_stripe_connect_id"
	ReasonUnknownTransferError = "unknown_stripe_transfer_error"
)

// Notification content
const (
	EmailSubjectOverdueReminder   = "Reminder: your cleaning job is still open"
	EmailSubjectSubmissionReceived = "Your cleaning was submitted for review"
	EmailSubjectAutoApproved       = "Your cleaning was automatically approved"
	EmailSubjectCaptureFailed      = "Action Required: We could not charge your payment method"
)
