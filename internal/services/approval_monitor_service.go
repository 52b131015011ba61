package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// ApprovalMonitorService auto-approves submitted jobs whose homeowner let
// the review window lapse. It runs on a short interval; the conditional
// update makes overlapping runs and racing human approvals safe.
type ApprovalMonitorService struct {
	apptRepo  repositories.AppointmentRepository
	payoutSvc *PayoutService
	notifier  Notifier

	nowFn func() time.Time
}

func NewApprovalMonitorService(
	apptRepo repositories.AppointmentRepository,
	payoutSvc *PayoutService,
	notifier Notifier,
) *ApprovalMonitorService {
	return &ApprovalMonitorService{
		apptRepo:  apptRepo,
		payoutSvc: payoutSvc,
		notifier:  notifier,
		nowFn:     time.Now,
	}
}

func (s *ApprovalMonitorService) RunApprovalScan(ctx context.Context) (ScanTally, error) {
	var tally ScanTally
	now := s.nowFn()

	appts, err := s.apptRepo.ListSubmittedPastDeadline(ctx, now)
	if err != nil {
		return tally, fmt.Errorf("listing appointments past approval deadline: %w", err)
	}
	tally.Processed = len(appts)

	for _, appt := range appts {
		if ctx.Err() != nil {
			break
		}

		approved, err := s.apptRepo.AutoApproveIfSubmitted(ctx, appt.ID, now)
		if err != nil {
			tally.Failed++
			utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
				Error("Auto-approval update failed")
			continue
		}
		if !approved {
			// The homeowner (or an overlapping run) got there first.
			tally.Skipped++
			continue
		}
		tally.Succeeded++

		utils.Logger.WithFields(logrus.Fields{
			"appointment_id": appt.ID,
			"deadline":       appt.AutoApprovalDeadline,
		}).Info("Appointment auto-approved after review window lapsed")

		fresh, err := s.apptRepo.GetByID(ctx, appt.ID)
		if err == nil && fresh != nil {
			s.notifier.AutoApprovalOccurred(ctx, fresh)
		}
		if err := s.payoutSvc.ReleaseForAppointment(ctx, appt.ID); err != nil {
			utils.Logger.WithField("appointment_id", appt.ID).WithError(err).
				Error("Failed to release payouts after auto-approval")
		}
	}

	utils.Logger.WithFields(logrus.Fields{
		"processed": tally.Processed,
		"succeeded": tally.Succeeded,
		"failed":    tally.Failed,
		"skipped":   tally.Skipped,
	}).Info("Approval scan finished")
	return tally, nil
}
