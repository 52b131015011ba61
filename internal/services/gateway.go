package services

import "context"

// CreateIntentRequest creates and confirms a payment intent off-session in
// one call. The idempotency key is derived from the appointment id so a
// crashed run retried by a later scan cannot double-charge.
type CreateIntentRequest struct {
	IdempotencyKey   string
	AmountCents      int64
	CustomerRef      string
	PaymentMethodRef string
	AppointmentID    string
	Description      string
}

// IntentOutcome is the gateway's view of an intent after create+confirm or
// after an explicit capture.
type IntentOutcome struct {
	IntentRef           string
	Captured            bool
	CapturedAmountCents int64
}

type TransferRequest struct {
	IdempotencyKey        string
	AmountCents           int64
	DestinationAccountRef string
	PayoutRecordID        string
	AppointmentID         string
}

// PaymentGateway wraps the payment provider. The orchestration layer only
// sees opaque references and captured amounts; provider types stay inside
// the implementation.
type PaymentGateway interface {
	// RetrieveDefaultPaymentMethod returns the customer's default payment
	// method reference, or "" when the customer has none on file.
	RetrieveDefaultPaymentMethod(ctx context.Context, customerRef string) (string, error)

	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentOutcome, error)

	// CaptureIntent captures a previously created intent. An intent that
	// already succeeded is reported as captured, not as an error, so a
	// re-scan after a crash converges instead of failing.
	CaptureIntent(ctx context.Context, intentRef string) (*IntentOutcome, error)

	// Transfer moves a cleaner's share to their connected account and
	// returns the provider transfer reference.
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}
