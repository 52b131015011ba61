package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/repositories"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// CompletionService handles the cleaner-facing start and submit operations
// and the homeowner-facing approval. State moves only through conditional
// updates, so concurrent requests and the monitors cannot double-apply a
// transition.
type CompletionService struct {
	apptRepo       repositories.AppointmentRepository
	completionRepo repositories.CleanerCompletionRepository
	pricingRepo    repositories.PricingRepository
	payoutSvc      *PayoutService
	notifier       Notifier

	nowFn func() time.Time
}

func NewCompletionService(
	apptRepo repositories.AppointmentRepository,
	completionRepo repositories.CleanerCompletionRepository,
	pricingRepo repositories.PricingRepository,
	payoutSvc *PayoutService,
	notifier Notifier,
) *CompletionService {
	return &CompletionService{
		apptRepo:       apptRepo,
		completionRepo: completionRepo,
		pricingRepo:    pricingRepo,
		payoutSvc:      payoutSvc,
		notifier:       notifier,
		nowFn:          time.Now,
	}
}

// StartJob records the first cleaner arriving on site. Calling it again,
// from any assigned cleaner, is a no-op success.
func (s *CompletionService) StartJob(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.Appointment, error) {
	appt, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("loading appointment %s: %w", appointmentID, err)
	}
	if appt == nil {
		return nil, utils.ErrAppointmentNotFound
	}
	if !isAssigned(appt, cleanerID) {
		return nil, utils.ErrNotAssignedCleaner
	}

	started, err := s.apptRepo.SetJobStarted(ctx, appointmentID, s.nowFn())
	if err != nil {
		return nil, fmt.Errorf("starting job %s: %w", appointmentID, err)
	}
	if !started {
		if appt.JobStartedAt != nil {
			// Already started; idempotent.
			return appt, nil
		}
		return nil, utils.ErrWrongStatus
	}

	// Make sure every assigned cleaner has a completion sub-record; a
	// race at assignment time may have skipped some.
	for _, id := range appt.AssignedCleanerIDs {
		if err := s.completionRepo.CreateIfNotExists(ctx, &models.CleanerCompletion{
			ID:            uuid.New(),
			AppointmentID: appointmentID,
			CleanerID:     id,
			Status:        models.CompletionStatusInProgress,
		}); err != nil {
			return nil, fmt.Errorf("creating completion record for cleaner %s: %w", id, err)
		}
	}

	utils.Logger.WithFields(logrus.Fields{
		"appointment_id": appointmentID,
		"cleaner_id":     cleanerID,
	}).Info("Job started")
	return s.apptRepo.GetByID(ctx, appointmentID)
}

// SubmitCompletion records one cleaner's submission. The appointment
// aggregate moves to SUBMITTED only once every assigned cleaner has
// submitted; a duplicate submit from the same cleaner is a no-op success.
func (s *CompletionService) SubmitCompletion(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.Appointment, error) {
	appt, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("loading appointment %s: %w", appointmentID, err)
	}
	if appt == nil {
		return nil, utils.ErrAppointmentNotFound
	}
	if !isAssigned(appt, cleanerID) {
		return nil, utils.ErrNotAssignedCleaner
	}

	switch appt.CompletionStatus {
	case models.CompletionStatusSubmitted:
		// Whole job already under review; tolerate the retry.
		return appt, nil
	case models.CompletionStatusApproved, models.CompletionStatusAutoApproved:
		// Too late, the job is closed (possibly force-completed).
		return nil, utils.ErrWrongStatus
	}

	if err := s.completionRepo.CreateIfNotExists(ctx, &models.CleanerCompletion{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		CleanerID:     cleanerID,
		Status:        models.CompletionStatusInProgress,
	}); err != nil {
		return nil, fmt.Errorf("creating completion record: %w", err)
	}

	now := s.nowFn()
	if _, err := s.completionRepo.SubmitIfInProgress(ctx, appointmentID, cleanerID, now); err != nil {
		return nil, fmt.Errorf("submitting completion for cleaner %s: %w", cleanerID, err)
	}

	allIn, err := s.allCleanersSubmitted(ctx, appt)
	if err != nil {
		return nil, err
	}
	if !allIn {
		utils.Logger.WithFields(logrus.Fields{
			"appointment_id": appointmentID,
			"cleaner_id":     cleanerID,
		}).Info("Cleaner submitted; waiting on remaining cleaners")
		return s.apptRepo.GetByID(ctx, appointmentID)
	}

	settings, err := s.pricingRepo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pricing settings: %w", err)
	}
	deadline := now.Add(settings.ApprovalWindow)

	submitted, err := s.apptRepo.SubmitIfInProgress(ctx, appointmentID, now, deadline)
	if err != nil {
		return nil, fmt.Errorf("submitting appointment %s: %w", appointmentID, err)
	}
	if !submitted {
		fresh, err := s.apptRepo.GetByID(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		if fresh != nil && fresh.CompletionStatus == models.CompletionStatusSubmitted {
			// Another cleaner's concurrent submit carried the aggregate.
			return fresh, nil
		}
		// The auto-complete monitor closed the job first.
		return nil, utils.ErrWrongStatus
	}

	utils.Logger.WithFields(logrus.Fields{
		"appointment_id":         appointmentID,
		"auto_approval_deadline": deadline,
	}).Info("Appointment submitted for homeowner review")

	fresh, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	s.notifier.SubmissionReceived(ctx, fresh)
	return fresh, nil
}

// ApproveCompletion is the homeowner's explicit approval. Winning the race
// against the approval monitor releases payouts exactly once; losing it
// surfaces a conflict.
func (s *CompletionService) ApproveCompletion(ctx context.Context, appointmentID uuid.UUID, approverID uuid.UUID) (*models.Appointment, error) {
	appt, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("loading appointment %s: %w", appointmentID, err)
	}
	if appt == nil {
		return nil, utils.ErrAppointmentNotFound
	}
	if appt.HomeownerID != approverID {
		return nil, utils.ErrNotHomeowner
	}
	if appt.CompletionStatus != models.CompletionStatusSubmitted {
		return nil, utils.ErrWrongStatus
	}

	approved, err := s.apptRepo.ApproveIfSubmitted(ctx, appointmentID, s.nowFn(), approverID.String())
	if err != nil {
		return nil, fmt.Errorf("approving appointment %s: %w", appointmentID, err)
	}
	if !approved {
		// The monitor auto-approved in the window between the read above
		// and this update, or the payment is not captured yet.
		return nil, utils.ErrWrongStatus
	}

	utils.Logger.WithFields(logrus.Fields{
		"appointment_id": appointmentID,
		"approved_by":    approverID,
	}).Info("Completion approved by homeowner")

	if err := s.payoutSvc.ReleaseForAppointment(ctx, appointmentID); err != nil {
		utils.Logger.WithField("appointment_id", appointmentID).WithError(err).
			Error("Failed to release payouts after approval")
	}
	return s.apptRepo.GetByID(ctx, appointmentID)
}

func (s *CompletionService) allCleanersSubmitted(ctx context.Context, appt *models.Appointment) (bool, error) {
	subs, err := s.completionRepo.ListByAppointment(ctx, appt.ID)
	if err != nil {
		return false, fmt.Errorf("listing completion records: %w", err)
	}
	return AllCleanersSubmitted(appt.AssignedCleanerIDs, subs), nil
}

// AllCleanersSubmitted reports whether every assigned cleaner has a
// SUBMITTED sub-record. Extra records from unassigned cleaners are ignored.
func AllCleanersSubmitted(assigned []uuid.UUID, subs []*models.CleanerCompletion) bool {
	if len(assigned) == 0 {
		return false
	}
	byCleaner := make(map[uuid.UUID]models.CompletionStatusType, len(subs))
	for _, c := range subs {
		byCleaner[c.CleanerID] = c.Status
	}
	for _, id := range assigned {
		if byCleaner[id] != models.CompletionStatusSubmitted {
			return false
		}
	}
	return true
}

func isAssigned(appt *models.Appointment, cleanerID uuid.UUID) bool {
	for _, id := range appt.AssignedCleanerIDs {
		if id == cleanerID {
			return true
		}
	}
	return false
}
