package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

func inProgressPastEnd(endedAgo time.Duration, cleaners ...uuid.UUID) *models.Appointment {
	appt := capturedAppointment(cleaners...)
	appt.JobStartedAt = utils.Ptr(testNow.Add(-endedAgo - 3*time.Hour))
	appt.ScheduledStartTime = *appt.JobStartedAt
	appt.ScheduledEndTime = testNow.Add(-endedAgo)
	return appt
}

func newAutoCompleteService(f *monitorFixture) *AutoCompleteMonitorService {
	svc := NewAutoCompleteMonitorService(f.apptRepo, &fakePricingRepo{}, f.payoutSvc, f.notifier)
	svc.nowFn = func() time.Time { return testNow }
	return svc
}

func TestRunAutoCompleteScan_FiresDueReminders(t *testing.T) {
	cleaner := uuid.New()
	// 65 minutes past end, inside the 4h grace: the 30 and 60 minute
	// reminders are due, the later ones are not.
	appt := inProgressPastEnd(65*time.Minute, cleaner)

	f := newMonitorFixture(t, nil, appt)
	svc := newAutoCompleteService(f)

	tally, err := svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanTally{Processed: 1, Skipped: 1}, tally)

	assert.ElementsMatch(t, []int32{30, 60}, f.notifier.reminders)
	assert.ElementsMatch(t, []int32{30, 60}, f.apptRepo.get(appt.ID).RemindersSent)
	assert.Equal(t, models.CompletionStatusInProgress, f.apptRepo.get(appt.ID).CompletionStatus)
}

func TestRunAutoCompleteScan_RemindersFireAtMostOnce(t *testing.T) {
	cleaner := uuid.New()
	appt := inProgressPastEnd(65*time.Minute, cleaner)

	f := newMonitorFixture(t, nil, appt)
	svc := newAutoCompleteService(f)

	_, err := svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)
	_, err = svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []int32{30, 60}, f.notifier.reminders, "second run must not resend")
}

func TestRunAutoCompleteScan_ForceCompletesPastGrace(t *testing.T) {
	cleaner := uuid.New()
	// 4h grace plus one minute.
	appt := inProgressPastEnd(4*time.Hour+time.Minute, cleaner)

	cleanerRepo := newFakeCleanerRepo(&models.Cleaner{
		ID:                     cleaner,
		StripeConnectAccountID: utils.StrPtr("acct_1"),
	})
	f := newMonitorFixture(t, cleanerRepo, appt)
	require.NoError(t, f.payoutSvc.OnPaymentCaptured(context.Background(), appt.ID))

	svc := newAutoCompleteService(f)

	tally, err := svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanTally{Processed: 1, Succeeded: 1}, tally)

	got := f.apptRepo.get(appt.ID)
	assert.Equal(t, models.CompletionStatusAutoApproved, got.CompletionStatus)
	assert.True(t, got.AutoCompletedBySystem)
	assert.True(t, got.HomeownerFeedbackRequired)
	require.NotNil(t, got.CompletionApprovedBy)
	assert.Equal(t, models.SystemApprover, *got.CompletionApprovedBy)
	assert.Equal(t, 1, f.notifier.autoApprovals)

	rec, err := f.payoutRepo.GetByAppointmentAndCleaner(context.Background(), appt.ID, cleaner)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusCompleted, rec.Status)
}

func TestRunAutoCompleteScan_UnpaidJobNotForceCompleted(t *testing.T) {
	cleaner := uuid.New()
	appt := inProgressPastEnd(5*time.Hour, cleaner)
	appt.Paid = false
	appt.PaymentStatus = models.PaymentStatusPending
	appt.CapturedAmountCents = nil

	f := newMonitorFixture(t, nil, appt)
	svc := newAutoCompleteService(f)

	tally, err := svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Succeeded)
	assert.Equal(t, models.CompletionStatusInProgress, f.apptRepo.get(appt.ID).CompletionStatus)
}

func TestRunAutoCompleteScan_NotStartedExcluded(t *testing.T) {
	cleaner := uuid.New()
	appt := capturedAppointment(cleaner)
	appt.ScheduledEndTime = testNow.Add(-5 * time.Hour)
	appt.JobStartedAt = nil

	f := newMonitorFixture(t, nil, appt)
	svc := newAutoCompleteService(f)

	tally, err := svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanTally{}, tally)
}

func TestRunAutoCompleteScan_SubmissionWinsRace(t *testing.T) {
	cleaner := uuid.New()
	appt := inProgressPastEnd(5*time.Hour, cleaner)

	f := newMonitorFixture(t, nil, appt)

	// A cleaner submits between the monitor's list and its update.
	ok, err := f.apptRepo.SubmitIfInProgress(context.Background(), appt.ID, testNow, testNow.Add(4*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	svc := newAutoCompleteService(f)
	tally, err := svc.RunAutoCompleteScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, tally.Succeeded)
	assert.Equal(t, models.CompletionStatusSubmitted, f.apptRepo.get(appt.ID).CompletionStatus)
}
