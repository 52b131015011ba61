package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/transfer"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

const stripeCallTimeout = 30 * time.Second

// stripeGateway implements PaymentGateway against Stripe. All Stripe types
// stay behind this file; callers only see references and cent amounts.
type stripeGateway struct{}

func NewStripeGateway(secretKey string) PaymentGateway {
	stripe.Key = secretKey
	return &stripeGateway{}
}

func (g *stripeGateway) RetrieveDefaultPaymentMethod(ctx context.Context, customerRef string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, stripeCallTimeout)
	defer cancel()

	custParams := &stripe.CustomerParams{}
	custParams.Context = ctx
	cust, err := customer.Get(customerRef, custParams)
	if err != nil {
		return "", fmt.Errorf("retrieving stripe customer %s: %w", customerRef, err)
	}
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		return cust.InvoiceSettings.DefaultPaymentMethod.ID, nil
	}

	// No explicit default; fall back to the most recently attached card.
	listParams := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerRef),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	listParams.Context = ctx
	iter := paymentmethod.List(listParams)
	for iter.Next() {
		return iter.PaymentMethod().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("listing payment methods for %s: %w", customerRef, err)
	}
	return "", nil
}

func (g *stripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, stripeCallTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("appointment_id", req.AppointmentID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}
	return outcomeFromIntent(pi), nil
}

func (g *stripeGateway) CaptureIntent(ctx context.Context, intentRef string) (*IntentOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, stripeCallTimeout)
	defer cancel()

	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := paymentintent.Get(intentRef, getParams)
	if err != nil {
		return nil, fmt.Errorf("retrieving payment intent %s: %w", intentRef, err)
	}

	// Already charged (for example by a run that crashed after the Stripe
	// call): report success so the scan converges.
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return outcomeFromIntent(pi), nil
	}

	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return outcomeFromIntent(pi), nil
	}

	capParams := &stripe.PaymentIntentCaptureParams{}
	capParams.Context = ctx
	pi, err = paymentintent.Capture(intentRef, capParams)
	if err != nil {
		return nil, fmt.Errorf("capturing payment intent %s: %w", intentRef, err)
	}
	return outcomeFromIntent(pi), nil
}

func (g *stripeGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, stripeCallTimeout)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(req.DestinationAccountRef),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payout_record_id", req.PayoutRecordID)
	params.AddMetadata("appointment_id", req.AppointmentID)

	t, err := transfer.New(params)
	if err != nil {
		return "", fmt.Errorf("creating transfer for payout %s: %w", req.PayoutRecordID, err)
	}
	return t.ID, nil
}

func outcomeFromIntent(pi *stripe.PaymentIntent) *IntentOutcome {
	return &IntentOutcome{
		IntentRef:           pi.ID,
		Captured:            pi.Status == stripe.PaymentIntentStatusSucceeded,
		CapturedAmountCents: pi.AmountReceived,
	}
}

// TransferFailureReason maps a gateway error to the string persisted on the
// payout record for operators.
func TransferFailureReason(err error) string {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.Code != "" {
			return string(sErr.Code)
		}
		return string(sErr.Type)
	}
	if errors.Is(err, utils.ErrExternalServiceFailure) {
		return "gateway_unavailable"
	}
	return "unknown_stripe_transfer_error"
}

// IsTransferFailureRecoverable reports whether the retry scanner should
// pick the payout up again after backoff. Network faults and transient
// Stripe conditions are retried; a bad destination account is not.
func IsTransferFailureRecoverable(err error) bool {
	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		// Timeouts and connection resets look the same from here.
		return true
	}
	switch sErr.Code {
	case stripe.ErrorCodeBalanceInsufficient,
		stripe.ErrorCodeLockTimeout,
		stripe.ErrorCodeRateLimit:
		return true
	case stripe.ErrorCodeAccountInvalid,
		stripe.ErrorCodeMissing,
		stripe.ErrorCodeAmountTooSmall:
		return false
	}
	return sErr.Type == stripe.ErrorTypeAPI
}
