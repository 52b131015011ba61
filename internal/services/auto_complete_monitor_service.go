package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// AutoCompleteMonitorService watches started jobs that run past their
// scheduled end without a submission. Inside the grace period it nags the
// assigned cleaners at configured offsets; past the grace period it
// force-completes the job.
type AutoCompleteMonitorService struct {
	apptRepo    repositories.AppointmentRepository
	pricingRepo repositories.PricingRepository
	payoutSvc   *PayoutService
	notifier    Notifier

	nowFn func() time.Time
}

func NewAutoCompleteMonitorService(
	apptRepo repositories.AppointmentRepository,
	pricingRepo repositories.PricingRepository,
	payoutSvc *PayoutService,
	notifier Notifier,
) *AutoCompleteMonitorService {
	return &AutoCompleteMonitorService{
		apptRepo:    apptRepo,
		pricingRepo: pricingRepo,
		payoutSvc:   payoutSvc,
		notifier:    notifier,
		nowFn:       time.Now,
	}
}

func (s *AutoCompleteMonitorService) RunAutoCompleteScan(ctx context.Context) (ScanTally, error) {
	var tally ScanTally

	settings, err := s.pricingRepo.GetSettings(ctx)
	if err != nil {
		return tally, fmt.Errorf("loading pricing settings: %w", err)
	}
	now := s.nowFn()

	appts, err := s.apptRepo.ListInProgressPastEnd(ctx, now)
	if err != nil {
		return tally, fmt.Errorf("listing overdue in-progress appointments: %w", err)
	}
	tally.Processed = len(appts)

	for _, appt := range appts {
		if ctx.Err() != nil {
			break
		}

		if now.Before(appt.AutoCompleteDeadline(settings.AutoCompleteGrace)) {
			s.fireReminders(ctx, appt, settings.ReminderOffsetsMinutes, now)
			tally.Skipped++
			continue
		}
		s.forceComplete(ctx, appt, now, &tally)
	}

	utils.Logger.WithFields(logrus.Fields{
		"processed": tally.Processed,
		"succeeded": tally.Succeeded,
		"failed":    tally.Failed,
		"skipped":   tally.Skipped,
	}).Info("Auto-complete scan finished")
	return tally, nil
}

// fireReminders sends each overdue reminder whose offset has elapsed, at
// most once per offset. The guarded append is what makes overlapping
// monitor runs safe; the notification only goes out when this run won the
// append.
func (s *AutoCompleteMonitorService) fireReminders(ctx context.Context, appt *models.Appointment, offsets []int32, now time.Time) {
	for _, offset := range offsets {
		fireAt := appt.ScheduledEndTime.Add(time.Duration(offset) * time.Minute)
		if now.Before(fireAt) {
			continue
		}
		if appt.ReminderAlreadySent(offset) {
			continue
		}

		claimed, err := s.apptRepo.MarkReminderSent(ctx, appt.ID, offset)
		if err != nil {
			utils.Logger.WithFields(logrus.Fields{
				"appointment_id": appt.ID,
				"offset_minutes": offset,
			}).WithError(err).Error("Failed to record overdue reminder")
			continue
		}
		if !claimed {
			continue
		}
		s.notifier.OverdueReminder(ctx, appt, offset)
	}
}

func (s *AutoCompleteMonitorService) forceComplete(ctx context.Context, appt *models.Appointment, now time.Time, tally *ScanTally) {
	if !appt.Paid {
		// Force-completing an unpaid job would release payouts with no
		// captured funds behind them. Leave it for support.
		tally.Skipped++
		utils.Logger.WithField("appointment_id", appt.ID).
			Warn("Job past auto-complete deadline but payment not captured; skipping")
		return
	}

	completed, err := s.apptRepo.AutoCompleteIfInProgress(ctx, appt.ID, now)
	if err != nil {
		tally.Failed++
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Error("Auto-complete update failed")
		return
	}
	if !completed {
		// A submission or an overlapping run beat us to it.
		tally.Skipped++
		return
	}
	tally.Succeeded++

	utils.Logger.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"scheduled_end":  appt.ScheduledEndTime,
	}).Warn("Job force-completed after grace period with no submission")

	fresh, err := s.apptRepo.GetByID(ctx, appt.ID)
	if err == nil && fresh != nil {
		s.notifier.AutoApprovalOccurred(ctx, fresh)
	}
	if err := s.payoutSvc.ReleaseForAppointment(ctx, appt.ID); err != nil {
		utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
			Error("Failed to release payouts after auto-complete")
	}
}
