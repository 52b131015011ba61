package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/constants"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// CaptureService is the daily scanner that charges homeowners ahead of
// their service date. Failures are isolated per appointment and flagged
// sticky so the next run never retries a card that needs human attention.
type CaptureService struct {
	apptRepo      repositories.AppointmentRepository
	homeownerRepo repositories.HomeownerRepository
	gateway       PaymentGateway
	payoutSvc     *PayoutService
	notifier      Notifier

	windowDays int
	nowFn      func() time.Time
}

func NewCaptureService(
	apptRepo repositories.AppointmentRepository,
	homeownerRepo repositories.HomeownerRepository,
	gateway PaymentGateway,
	payoutSvc *PayoutService,
	notifier Notifier,
	windowDays int,
) *CaptureService {
	if windowDays <= 0 {
		windowDays = constants.CaptureWindowDays
	}
	return &CaptureService{
		apptRepo:      apptRepo,
		homeownerRepo: homeownerRepo,
		gateway:       gateway,
		payoutSvc:     payoutSvc,
		notifier:      notifier,
		windowDays:    windowDays,
		nowFn:         time.Now,
	}
}

// RunCaptureScan processes every appointment whose service date falls
// within the look-ahead window, in business-timezone days.
func (s *CaptureService) RunCaptureScan(ctx context.Context) (CaptureTally, error) {
	var tally CaptureTally

	loc, err := time.LoadLocation(constants.BusinessTimezone)
	if err != nil {
		return tally, fmt.Errorf("loading business timezone: %w", err)
	}

	now := s.nowFn().In(loc)
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, s.windowDays)

	appts, err := s.apptRepo.ListDueForCapture(ctx, windowStart, windowEnd)
	if err != nil {
		return tally, fmt.Errorf("listing appointments due for capture: %w", err)
	}

	for _, appt := range appts {
		if ctx.Err() != nil {
			break
		}
		s.captureOne(ctx, appt, &tally)
	}

	utils.Logger.WithFields(logrus.Fields{
		"candidates": len(appts),
		"created":    tally.Created,
		"captured":   tally.Captured,
		"failed":     tally.Failed,
		"skipped":    tally.Skipped,
	}).Info("Capture scan finished")
	return tally, nil
}

func (s *CaptureService) captureOne(ctx context.Context, appt *models.Appointment, tally *CaptureTally) {
	if appt.PaymentIntentRef == nil {
		s.createAndCapture(ctx, appt, tally)
		return
	}

	// A previous run created the intent but never confirmed the charge.
	// Retrieve-then-capture converges whether or not that charge landed.
	outcome, err := s.gateway.CaptureIntent(ctx, *appt.PaymentIntentRef)
	if err != nil {
		s.markFailed(ctx, appt, constants.ReasonGatewayError, tally)
		return
	}
	if !outcome.Captured {
		s.markFailed(ctx, appt, constants.ReasonIntentNotCaptured, tally)
		return
	}
	s.markCaptured(ctx, appt, outcome.CapturedAmountCents, tally)
}

func (s *CaptureService) createAndCapture(ctx context.Context, appt *models.Appointment, tally *CaptureTally) {
	owner, err := s.homeownerRepo.GetByID(ctx, appt.HomeownerID)
	if err != nil || owner == nil {
		s.markFailed(ctx, appt, constants.ReasonHomeownerNotFound, tally)
		return
	}
	if owner.StripeCustomerID == nil || *owner.StripeCustomerID == "" {
		s.markFailed(ctx, appt, constants.ReasonNoStripeCustomer, tally)
		return
	}

	paymentMethod, err := s.gateway.RetrieveDefaultPaymentMethod(ctx, *owner.StripeCustomerID)
	if err != nil {
		s.markFailed(ctx, appt, constants.ReasonGatewayError, tally)
		return
	}
	if paymentMethod == "" {
		s.markFailed(ctx, appt, constants.ReasonNoPaymentMethod, tally)
		return
	}

	outcome, err := s.gateway.CreateIntent(ctx, CreateIntentRequest{
		IdempotencyKey:   fmt.Sprintf("appointment-capture-%s", appt.ID),
		AmountCents:      appt.PriceCents,
		CustomerRef:      *owner.StripeCustomerID,
		PaymentMethodRef: paymentMethod,
		AppointmentID:    appt.ID.String(),
		Description:      fmt.Sprintf("Cleaning on %s", appt.ServiceDate.Format("2006-01-02")),
	})
	if err != nil {
		s.markFailed(ctx, appt, constants.ReasonGatewayError, tally)
		return
	}
	tally.Created++

	// Persist the reference before acting on the outcome so a crash here
	// leaves a resumable trail instead of an orphaned intent.
	if _, err := s.apptRepo.SetPaymentIntentRef(ctx, appt.ID, outcome.IntentRef); err != nil {
		utils.Logger.WithFields(logrus.Fields{
			"appointment_id": appt.ID,
			"intent_ref":     outcome.IntentRef,
		}).WithError(err).Error("Failed to persist payment intent reference")
	}

	if !outcome.Captured {
		s.markFailed(ctx, appt, constants.ReasonIntentNotCaptured, tally)
		return
	}
	s.markCaptured(ctx, appt, outcome.CapturedAmountCents, tally)
}

func (s *CaptureService) markCaptured(ctx context.Context, appt *models.Appointment, capturedCents int64, tally *CaptureTally) {
	ok, err := s.apptRepo.MarkCaptured(ctx, appt.ID, capturedCents)
	if err != nil {
		tally.Failed++
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Error("Failed to mark appointment captured")
		return
	}
	if !ok {
		// Another run got here first.
		tally.Skipped++
		return
	}
	tally.Captured++

	if err := s.payoutSvc.OnPaymentCaptured(ctx, appt.ID); err != nil {
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Error("Failed to hold payouts after capture")
	}
}

func (s *CaptureService) markFailed(ctx context.Context, appt *models.Appointment, reason string, tally *CaptureTally) {
	tally.Failed++
	if err := s.apptRepo.MarkCaptureFailed(ctx, appt.ID, reason); err != nil {
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Error("Failed to flag capture failure")
		return
	}
	utils.Logger.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"reason":         reason,
	}).Warn("Capture failed; appointment flagged for support")

	s.notifier.CaptureFailed(ctx, appt, reason)
}
