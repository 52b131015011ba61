package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/constants"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// PayoutService owns the payout lifecycle for cleaner shares: PENDING at
// assignment, HELD after capture, PROCESSING/COMPLETED around the transfer,
// FAILED with backoff on transfer errors.
type PayoutService struct {
	apptRepo    repositories.AppointmentRepository
	payoutRepo  repositories.PayoutRecordRepository
	cleanerRepo repositories.CleanerRepository
	pricingRepo repositories.PricingRepository
	gateway     PaymentGateway

	nowFn func() time.Time
}

func NewPayoutService(
	apptRepo repositories.AppointmentRepository,
	payoutRepo repositories.PayoutRecordRepository,
	cleanerRepo repositories.CleanerRepository,
	pricingRepo repositories.PricingRepository,
	gateway PaymentGateway,
) *PayoutService {
	return &PayoutService{
		apptRepo:    apptRepo,
		payoutRepo:  payoutRepo,
		cleanerRepo: cleanerRepo,
		pricingRepo: pricingRepo,
		gateway:     gateway,
		nowFn:       time.Now,
	}
}

// OnPaymentCaptured moves every cleaner's payout record to HELD, re-stamping
// each gross share from the amount the gateway actually captured. Records
// missing their assignment-time creation are created here, so a capture is
// never lost to a partially assigned appointment.
func (s *PayoutService) OnPaymentCaptured(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("loading appointment %s: %w", appointmentID, err)
	}
	if appt == nil {
		return utils.ErrAppointmentNotFound
	}
	if !appt.Paid || appt.CapturedAmountCents == nil {
		utils.Logger.WithField("appointment_id", appointmentID).
			Error("OnPaymentCaptured called for an uncaptured appointment")
		return utils.ErrPayoutNotReleasable
	}

	settings, err := s.pricingRepo.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading pricing settings: %w", err)
	}

	shares := SplitShares(*appt.CapturedAmountCents, settings.PlatformFeeFraction,
		appt.AssignedCleanerIDs, appt.SplitOverrides)
	now := s.nowFn()

	for i, cleanerID := range appt.AssignedCleanerIDs {
		rec, err := s.payoutRepo.GetByAppointmentAndCleaner(ctx, appointmentID, cleanerID)
		if err != nil {
			return fmt.Errorf("loading payout record for cleaner %s: %w", cleanerID, err)
		}
		if rec == nil {
			if err := s.payoutRepo.CreateIfNotExists(ctx, &models.PayoutRecord{
				ID:              uuid.New(),
				AppointmentID:   appointmentID,
				CleanerID:       cleanerID,
				GrossShareCents: shares[i],
				Status:          models.PayoutStatusPending,
			}); err != nil {
				return fmt.Errorf("creating payout record for cleaner %s: %w", cleanerID, err)
			}
			rec, err = s.payoutRepo.GetByAppointmentAndCleaner(ctx, appointmentID, cleanerID)
			if err != nil || rec == nil {
				return fmt.Errorf("reloading payout record for cleaner %s: %w", cleanerID, err)
			}
		}

		held, err := s.payoutRepo.HoldIfPending(ctx, rec.ID, shares[i], now)
		if err != nil {
			return fmt.Errorf("holding payout %s: %w", rec.ID, err)
		}
		if !held {
			// Already past PENDING, nothing to do.
			continue
		}
	}

	utils.Logger.WithFields(logrus.Fields{
		"appointment_id": appointmentID,
		"cleaners":       len(appt.AssignedCleanerIDs),
		"captured_cents": *appt.CapturedAmountCents,
	}).Info("Payout records held for captured appointment")
	return nil
}

// ReleaseForAppointment transfers every HELD share for an approved
// appointment. Callers reach here only after an approval transition, so an
// unpaid or unapproved appointment indicates a bug upstream.
func (s *PayoutService) ReleaseForAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("loading appointment %s: %w", appointmentID, err)
	}
	if appt == nil {
		return utils.ErrAppointmentNotFound
	}

	approved := appt.CompletionStatus == models.CompletionStatusApproved ||
		appt.CompletionStatus == models.CompletionStatusAutoApproved
	if !appt.Paid || !approved {
		utils.Logger.WithFields(logrus.Fields{
			"appointment_id":    appointmentID,
			"paid":              appt.Paid,
			"completion_status": appt.CompletionStatus,
		}).Error("Release requested for an appointment that is not captured and approved")
		return utils.ErrPayoutNotReleasable
	}

	recs, err := s.payoutRepo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("listing payouts for appointment %s: %w", appointmentID, err)
	}

	now := s.nowFn()
	for _, rec := range recs {
		claimed, err := s.payoutRepo.ProcessIfHeld(ctx, rec.ID, now)
		if err != nil {
			utils.Logger.WithField("payout_id", rec.ID).WithError(err).
				Error("Failed to claim held payout")
			continue
		}
		if !claimed {
			continue
		}
		s.transferOne(ctx, appt, rec)
	}
	return nil
}

// RunPayoutRetryScan re-attempts FAILED payouts whose backoff has elapsed.
func (s *PayoutService) RunPayoutRetryScan(ctx context.Context) (ScanTally, error) {
	var tally ScanTally
	now := s.nowFn()

	recs, err := s.payoutRepo.ListFailedDueForRetry(ctx, now)
	if err != nil {
		return tally, fmt.Errorf("listing failed payouts: %w", err)
	}
	tally.Processed = len(recs)

	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}

		claimed, err := s.payoutRepo.ProcessIfFailedDue(ctx, rec.ID, now)
		if err != nil {
			tally.Failed++
			utils.Logger.WithField("payout_id", rec.ID).WithError(err).
				Error("Failed to claim payout for retry")
			continue
		}
		if !claimed {
			tally.Skipped++
			continue
		}

		appt, err := s.apptRepo.GetByID(ctx, rec.AppointmentID)
		if err != nil || appt == nil {
			tally.Failed++
			s.failPayout(ctx, rec.ID, "appointment_record_not_found", false)
			continue
		}
		if s.transferOne(ctx, appt, rec) {
			tally.Succeeded++
		} else {
			tally.Failed++
		}
	}

	utils.Logger.WithFields(logrus.Fields{
		"processed": tally.Processed,
		"succeeded": tally.Succeeded,
		"failed":    tally.Failed,
		"skipped":   tally.Skipped,
	}).Info("Payout retry scan finished")
	return tally, nil
}

// transferOne runs the gateway transfer for a record already claimed into
// PROCESSING. The idempotency key includes the retry count so Stripe does
// not replay a previous failed attempt's cached error.
func (s *PayoutService) transferOne(ctx context.Context, appt *models.Appointment, rec *models.PayoutRecord) bool {
	cleaner, err := s.cleanerRepo.GetByID(ctx, rec.CleanerID)
	if err != nil || cleaner == nil {
		s.failPayout(ctx, rec.ID, constants.ReasonCleanerNotFound, false)
		return false
	}
	if cleaner.StripeConnectAccountID == nil || *cleaner.StripeConnectAccountID == "" {
		s.failPayout(ctx, rec.ID, constants.ReasonMissingStripeID, false)
		return false
	}

	transferRef, err := s.gateway.Transfer(ctx, TransferRequest{
		IdempotencyKey:        fmt.Sprintf("payout-%s-attempt-%d", rec.ID, rec.RetryCount),
		AmountCents:           rec.GrossShareCents,
		DestinationAccountRef: *cleaner.StripeConnectAccountID,
		PayoutRecordID:        rec.ID.String(),
		AppointmentID:         appt.ID.String(),
	})
	if err != nil {
		utils.Logger.WithFields(logrus.Fields{
			"payout_id":  rec.ID,
			"cleaner_id": rec.CleanerID,
		}).WithError(err).Error("Stripe transfer failed")
		s.failPayout(ctx, rec.ID, TransferFailureReason(err), IsTransferFailureRecoverable(err))
		return false
	}

	done, err := s.payoutRepo.CompleteIfProcessing(ctx, rec.ID, transferRef, s.nowFn())
	if err != nil || !done {
		// The transfer went out; the record must not be retried even if
		// this update lost a race, so log loudly for reconciliation.
		utils.Logger.WithFields(logrus.Fields{
			"payout_id":    rec.ID,
			"transfer_ref": transferRef,
		}).WithError(err).Error("Transfer succeeded but payout record was not completed")
		return false
	}

	utils.Logger.WithFields(logrus.Fields{
		"payout_id":    rec.ID,
		"cleaner_id":   rec.CleanerID,
		"amount_cents": rec.GrossShareCents,
		"transfer_ref": transferRef,
	}).Info("Payout transfer completed")
	return true
}

// failPayout records the failure and schedules the next retry with
// exponential backoff. Non-recoverable failures get no next attempt and
// wait for manual intervention.
func (s *PayoutService) failPayout(ctx context.Context, payoutID uuid.UUID, reason string, recoverable bool) {
	err := s.payoutRepo.UpdateWithRetry(ctx, payoutID, func(p *models.PayoutRecord) error {
		if p.Status == models.PayoutStatusCompleted {
			return nil
		}
		now := s.nowFn()
		p.Status = models.PayoutStatusFailed
		p.LastFailureReason = utils.StrPtr(reason)
		p.RetryCount++
		p.LastAttemptAt = &now

		if !recoverable || p.RetryCount >= constants.PayoutMaxRetries {
			p.NextAttemptAt = nil
			return nil
		}
		delay := constants.PayoutBaseRetryDelay * time.Duration(1<<(p.RetryCount-1))
		next := now.Add(delay)
		p.NextAttemptAt = &next
		return nil
	})
	if err != nil {
		utils.Logger.WithField("payout_id", payoutID).WithError(err).
			Error("Failed to record payout failure")
	}
}
