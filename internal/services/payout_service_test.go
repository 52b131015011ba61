package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/constants"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

func TestOnPaymentCaptured_HoldsSharesPerCleaner(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	appt := capturedAppointment(alice, bob)

	f := newMonitorFixture(t, nil, appt)

	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	// 15000 captured, 10% fee: 13500 split two ways.
	for _, cleanerID := range []uuid.UUID{alice, bob} {
		rec, err := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleanerID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, models.PayoutStatusHeld, rec.Status)
		assert.Equal(t, int64(6750), rec.GrossShareCents)
		require.NotNil(t, rec.PaymentCapturedAt)
	}

	// Running again after the records are HELD changes nothing.
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))
	rec, _ := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, alice)
	assert.Equal(t, models.PayoutStatusHeld, rec.Status)
}

func TestOnPaymentCaptured_RestampsShareFromCapturedAmount(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CapturedAmountCents = utils.Ptr(int64(20000))

	f := newMonitorFixture(t, nil, appt)

	// Assignment-time record carries the estimate from the quoted price.
	require.NoError(t, f.payoutRepo.CreateIfNotExists(context.Background(), &models.PayoutRecord{
		ID:              uuid.New(),
		AppointmentID:   appt.ID,
		CleanerID:       cleaner,
		GrossShareCents: 13500,
		Status:          models.PayoutStatusPending,
	}))

	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	rec, err := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	require.NoError(t, err)
	assert.Equal(t, int64(18000), rec.GrossShareCents, "share must come from the captured amount, not the quote")
}

func TestOnPaymentCaptured_UncapturedRejected(t *testing.T) {
	cleaner := uuid.New()
	appt := pendingAppointment(uuid.New(), testNow, cleaner)

	f := newMonitorFixture(t, nil, appt)

	err := f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID)
	assert.ErrorIs(t, err, utils.ErrPayoutNotReleasable)
}

func TestReleaseForAppointment_TransfersHeldShares(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CompletionStatus = models.CompletionStatusApproved

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{
		ID:                     cleaner,
		StripeConnectAccountID: utils.StrPtr("acct_1"),
	})
	f := newMonitorFixture(t, cleanerRepo, appt)
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))

	rec, err := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, rec.Status)
	require.NotNil(t, rec.TransferRef)
	require.NotNil(t, rec.ReleasedAt)
	assert.Nil(t, rec.NextAttemptAt)

	require.Len(t, f.gateway.transferCalls, 1)
	call := f.gateway.transferCalls[0]
	assert.Equal(t, int64(13500), call.AmountCents)
	assert.Equal(t, "acct_1", call.DestinationAccountRef)
	assert.Contains(t, call.IdempotencyKey, rec.ID.String())
}

func TestReleaseForAppointment_UnapprovedRejected(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)

	f := newMonitorFixture(t, nil, appt)
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	err := f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID)
	assert.ErrorIs(t, err, utils.ErrPayoutNotReleasable)

	rec, _ := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	assert.Equal(t, models.PayoutStatusHeld, rec.Status, "held shares must not move without approval")
}

func TestReleaseForAppointment_SecondCallIsNoOp(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CompletionStatus = models.CompletionStatusApproved

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{
		ID:                     cleaner,
		StripeConnectAccountID: utils.StrPtr("acct_1"),
	})
	f := newMonitorFixture(t, cleanerRepo, appt)
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))
	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))

	assert.Len(t, f.gateway.transferCalls, 1, "a completed payout must not transfer twice")
}

func TestReleaseForAppointment_TransferFailureSchedulesRetry(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CompletionStatus = models.CompletionStatusApproved

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{
		ID:                     cleaner,
		StripeConnectAccountID: utils.StrPtr("acct_1"),
	})
	f := newMonitorFixture(t, cleanerRepo, appt)
	f.gateway.transferErr = errors.New("connection reset")
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))

	rec, err := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailed, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.LastFailureReason)
	require.NotNil(t, rec.NextAttemptAt)
	assert.Equal(t, testNow.Add(constants.PayoutBaseRetryDelay), *rec.NextAttemptAt)
}

func TestRunPayoutRetryScan_RetriesDueFailure(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CompletionStatus = models.CompletionStatusApproved

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{
		ID:                     cleaner,
		StripeConnectAccountID: utils.StrPtr("acct_1"),
	})
	f := newMonitorFixture(t, cleanerRepo, appt)
	f.gateway.transferErr = errors.New("connection reset")
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))
	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))

	// Backoff elapses, Stripe recovers.
	f.gateway.transferErr = nil
	f.payoutSvc.nowFn = func() time.Time { return testNow.Add(constants.PayoutBaseRetryDelay + time.Minute) }

	tally, err := f.payoutSvc.RunPayoutRetryScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanTally{Processed: 1, Succeeded: 1}, tally)

	rec, _ := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	assert.Equal(t, models.PayoutStatusCompleted, rec.Status)
	require.NotNil(t, rec.TransferRef)
	assert.Nil(t, rec.LastFailureReason)

	// The retry attempt used a fresh idempotency key.
	require.Len(t, f.gateway.transferCalls, 2)
	assert.NotEqual(t, f.gateway.transferCalls[0].IdempotencyKey, f.gateway.transferCalls[1].IdempotencyKey)
}

func TestRunPayoutRetryScan_BackoffNotElapsed(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CompletionStatus = models.CompletionStatusApproved

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{
		ID:                     cleaner,
		StripeConnectAccountID: utils.StrPtr("acct_1"),
	})
	f := newMonitorFixture(t, cleanerRepo, appt)
	f.gateway.transferErr = errors.New("connection reset")
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))
	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))

	tally, err := f.payoutSvc.RunPayoutRetryScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanTally{}, tally)
}

func TestTransferFailure_MissingConnectAccountNotRetried(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.CompletionStatus = models.CompletionStatusApproved

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{ID: cleaner})
	f := newMonitorFixture(t, cleanerRepo, appt)
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	require.NoError(t, f.payoutSvc.ReleaseForAppointment(context.Background(), appt.ID))

	rec, _ := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	assert.Equal(t, models.PayoutStatusFailed, rec.Status)
	require.NotNil(t, rec.LastFailureReason)
	assert.Equal(t, constants.ReasonMissingStripeID, *rec.LastFailureReason)
	assert.Nil(t, rec.NextAttemptAt, "non-recoverable failures wait for manual intervention")
	assert.Empty(t, f.gateway.transferCalls)
}
