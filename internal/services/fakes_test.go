package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
	"github.com/Gkimbo/cleaningCompany-sub028/internal/utils"
)

// In-memory repository fakes with the same compare-and-transition
// semantics as the SQL layer, so the services' concurrency behavior can
// be exercised without a database.

var okTag = pgconn.CommandTag("UPDATE 1")

type fakeApptRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*models.Appointment
}

func newFakeApptRepo(appts ...*models.Appointment) *fakeApptRepo {
	r := &fakeApptRepo{appts: make(map[uuid.UUID]*models.Appointment)}
	for _, a := range appts {
		if a.RowVersion == 0 {
			a.RowVersion = 1
		}
		r.appts[a.ID] = a
	}
	return r
}

func (r *fakeApptRepo) get(id uuid.UUID) *models.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (r *fakeApptRepo) Create(ctx context.Context, appt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appts[appt.ID] = appt
	return nil
}

func (r *fakeApptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	return r.get(id), nil
}

func (r *fakeApptRepo) UpdateIfVersion(ctx context.Context, a *models.Appointment, expectedVersion int64) (pgconn.CommandTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.appts[a.ID]
	if !ok || cur.RowVersion != expectedVersion {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	cp := *a
	cp.RowVersion = expectedVersion + 1
	r.appts[a.ID] = &cp
	return okTag, nil
}

func (r *fakeApptRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.Appointment) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return utils.ErrAppointmentNotFound
	}
	if err := mutate(a); err != nil {
		return err
	}
	a.RowVersion++
	return nil
}

func (r *fakeApptRepo) ListDueForCapture(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appts {
		if a.PaymentStatus != models.PaymentStatusPending || a.Paid || a.CaptureFailed {
			continue
		}
		if len(a.AssignedCleanerIDs) == 0 {
			continue
		}
		if a.ServiceDate.Before(windowStart) || a.ServiceDate.After(windowEnd) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeApptRepo) SetPaymentIntentRef(ctx context.Context, id uuid.UUID, intentRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.PaymentIntentRef != nil {
		return false, nil
	}
	a.PaymentIntentRef = &intentRef
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) MarkCaptured(ctx context.Context, id uuid.UUID, capturedAmountCents int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	a.PaymentStatus = models.PaymentStatusCaptured
	a.Paid = true
	a.CapturedAmountCents = &capturedAmountCents
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) MarkCaptureFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Paid {
		return nil
	}
	a.CaptureFailed = true
	a.CaptureFailureReason = &reason
	a.RowVersion++
	return nil
}

func (r *fakeApptRepo) SetJobStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.JobStartedAt != nil || a.CompletionStatus != models.CompletionStatusInProgress {
		return false, nil
	}
	a.JobStartedAt = &at
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) SubmitIfInProgress(ctx context.Context, id uuid.UUID, submittedAt, deadline time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.CompletionStatus != models.CompletionStatusInProgress {
		return false, nil
	}
	a.CompletionStatus = models.CompletionStatusSubmitted
	a.CompletionSubmittedAt = &submittedAt
	a.AutoApprovalDeadline = &deadline
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) ApproveIfSubmitted(ctx context.Context, id uuid.UUID, approvedAt time.Time, approvedBy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.CompletionStatus != models.CompletionStatusSubmitted || !a.Paid {
		return false, nil
	}
	a.CompletionStatus = models.CompletionStatusApproved
	a.CompletionApprovedAt = &approvedAt
	a.CompletionApprovedBy = &approvedBy
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) ListSubmittedPastDeadline(ctx context.Context, now time.Time) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appts {
		if a.CompletionStatus != models.CompletionStatusSubmitted || !a.Paid {
			continue
		}
		if a.AutoApprovalDeadline == nil || a.AutoApprovalDeadline.After(now) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeApptRepo) AutoApproveIfSubmitted(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.CompletionStatus != models.CompletionStatusSubmitted || !a.Paid {
		return false, nil
	}
	a.CompletionStatus = models.CompletionStatusAutoApproved
	a.CompletionApprovedAt = &approvedAt
	a.CompletionApprovedBy = utils.StrPtr(models.SystemApprover)
	a.HomeownerFeedbackRequired = true
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) ListInProgressPastEnd(ctx context.Context, now time.Time) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Appointment
	for _, a := range r.appts {
		if a.CompletionStatus != models.CompletionStatusInProgress || a.JobStartedAt == nil {
			continue
		}
		if a.ScheduledEndTime.After(now) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeApptRepo) AutoCompleteIfInProgress(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.CompletionStatus != models.CompletionStatusInProgress || !a.Paid {
		return false, nil
	}
	a.CompletionStatus = models.CompletionStatusAutoApproved
	a.CompletionApprovedAt = &completedAt
	a.CompletionApprovedBy = utils.StrPtr(models.SystemApprover)
	a.AutoCompletedBySystem = true
	a.HomeownerFeedbackRequired = true
	a.RowVersion++
	return true, nil
}

func (r *fakeApptRepo) MarkReminderSent(ctx context.Context, id uuid.UUID, offsetMinutes int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.ReminderAlreadySent(offsetMinutes) {
		return false, nil
	}
	a.RemindersSent = append(a.RemindersSent, offsetMinutes)
	a.RowVersion++
	return true, nil
}

type completionKey struct {
	appointmentID uuid.UUID
	cleanerID     uuid.UUID
}

type fakeCompletionRepo struct {
	mu   sync.Mutex
	recs map[completionKey]*models.CleanerCompletion
}

func newFakeCompletionRepo() *fakeCompletionRepo {
	return &fakeCompletionRepo{recs: make(map[completionKey]*models.CleanerCompletion)}
}

func (r *fakeCompletionRepo) CreateIfNotExists(ctx context.Context, c *models.CleanerCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := completionKey{c.AppointmentID, c.CleanerID}
	if _, ok := r.recs[k]; ok {
		return nil
	}
	cp := *c
	r.recs[k] = &cp
	return nil
}

func (r *fakeCompletionRepo) GetByAppointmentAndCleaner(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.CleanerCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.recs[completionKey{appointmentID, cleanerID}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCompletionRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*models.CleanerCompletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CleanerCompletion
	for k, c := range r.recs {
		if k.appointmentID == appointmentID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCompletionRepo) SubmitIfInProgress(ctx context.Context, appointmentID, cleanerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.recs[completionKey{appointmentID, cleanerID}]
	if !ok || c.Status != models.CompletionStatusInProgress {
		return false, nil
	}
	c.Status = models.CompletionStatusSubmitted
	c.SubmittedAt = &at
	return true, nil
}

type fakePayoutRepo struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*models.PayoutRecord
}

func newFakePayoutRepo(recs ...*models.PayoutRecord) *fakePayoutRepo {
	r := &fakePayoutRepo{recs: make(map[uuid.UUID]*models.PayoutRecord)}
	for _, p := range recs {
		if p.RowVersion == 0 {
			p.RowVersion = 1
		}
		r.recs[p.ID] = p
	}
	return r
}

func (r *fakePayoutRepo) CreateIfNotExists(ctx context.Context, p *models.PayoutRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.recs {
		if existing.AppointmentID == p.AppointmentID && existing.CleanerID == p.CleanerID {
			return nil
		}
	}
	cp := *p
	cp.RowVersion = 1
	r.recs[p.ID] = &cp
	return nil
}

func (r *fakePayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePayoutRepo) GetByAppointmentAndCleaner(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.PayoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.recs {
		if p.AppointmentID == appointmentID && p.CleanerID == cleanerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePayoutRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*models.PayoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PayoutRecord
	for _, p := range r.recs {
		if p.AppointmentID == appointmentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePayoutRepo) UpdateIfVersion(ctx context.Context, p *models.PayoutRecord, expectedVersion int64) (pgconn.CommandTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.recs[p.ID]
	if !ok || cur.RowVersion != expectedVersion {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	cp := *p
	cp.RowVersion = expectedVersion + 1
	r.recs[p.ID] = &cp
	return okTag, nil
}

func (r *fakePayoutRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.PayoutRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.recs[id]
	if !ok {
		return fmt.Errorf("payout %s not found", id)
	}
	if err := mutate(p); err != nil {
		return err
	}
	p.RowVersion++
	return nil
}

func (r *fakePayoutRepo) HoldIfPending(ctx context.Context, id uuid.UUID, grossShareCents int64, capturedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.recs[id]
	if !ok || p.Status != models.PayoutStatusPending {
		return false, nil
	}
	p.Status = models.PayoutStatusHeld
	p.GrossShareCents = grossShareCents
	p.PaymentCapturedAt = &capturedAt
	p.RowVersion++
	return true, nil
}

func (r *fakePayoutRepo) ProcessIfHeld(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.recs[id]
	if !ok || p.Status != models.PayoutStatusHeld {
		return false, nil
	}
	p.Status = models.PayoutStatusProcessing
	p.LastAttemptAt = &at
	p.RowVersion++
	return true, nil
}

func (r *fakePayoutRepo) ProcessIfFailedDue(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.recs[id]
	if !ok || p.Status != models.PayoutStatusFailed {
		return false, nil
	}
	if p.NextAttemptAt == nil || p.NextAttemptAt.After(at) {
		return false, nil
	}
	p.Status = models.PayoutStatusProcessing
	p.LastAttemptAt = &at
	p.RowVersion++
	return true, nil
}

func (r *fakePayoutRepo) CompleteIfProcessing(ctx context.Context, id uuid.UUID, transferRef string, releasedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.recs[id]
	if !ok || p.Status != models.PayoutStatusProcessing {
		return false, nil
	}
	p.Status = models.PayoutStatusCompleted
	p.TransferRef = &transferRef
	p.ReleasedAt = &releasedAt
	p.LastFailureReason = nil
	p.NextAttemptAt = nil
	p.RowVersion++
	return true, nil
}

func (r *fakePayoutRepo) ListFailedDueForRetry(ctx context.Context, now time.Time) ([]*models.PayoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PayoutRecord
	for _, p := range r.recs {
		if p.Status != models.PayoutStatusFailed || p.NextAttemptAt == nil || p.NextAttemptAt.After(now) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type fakeHomeownerRepo struct {
	owners map[uuid.UUID]*models.Homeowner
}

func newFakeHomeownerRepo(owners ...*models.Homeowner) *fakeHomeownerRepo {
	r := &fakeHomeownerRepo{owners: make(map[uuid.UUID]*models.Homeowner)}
	for _, h := range owners {
		r.owners[h.ID] = h
	}
	return r
}

func (r *fakeHomeownerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Homeowner, error) {
	return r.owners[id], nil
}

type fakeCleanerRepo struct {
	cleaners map[uuid.UUID]*models.Cleaner
}

func newFakeCleanerRepo(cleaners ...*models.Cleaner) *fakeCleanerRepo {
	r := &fakeCleanerRepo{cleaners: make(map[uuid.UUID]*models.Cleaner)}
	for _, c := range cleaners {
		r.cleaners[c.ID] = c
	}
	return r
}

func (r *fakeCleanerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Cleaner, error) {
	return r.cleaners[id], nil
}

type fakePricingRepo struct {
	settings *models.PricingSettings
}

func (r *fakePricingRepo) GetSettings(ctx context.Context) (*models.PricingSettings, error) {
	if r.settings != nil {
		return r.settings, nil
	}
	return models.DefaultPricingSettings(), nil
}

// fakeGateway scripts intent and transfer outcomes per test.
type fakeGateway struct {
	mu sync.Mutex

	defaultPaymentMethod string
	paymentMethodErr     error

	createOutcome *IntentOutcome
	createErr     error
	createCalls   []CreateIntentRequest

	captureOutcome *IntentOutcome
	captureErr     error
	captureCalls   []string

	transferErr   error
	transferCalls []TransferRequest
	transferSeq   int
}

func (g *fakeGateway) RetrieveDefaultPaymentMethod(ctx context.Context, customerRef string) (string, error) {
	return g.defaultPaymentMethod, g.paymentMethodErr
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls = append(g.createCalls, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createOutcome, nil
}

func (g *fakeGateway) CaptureIntent(ctx context.Context, intentRef string) (*IntentOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls = append(g.captureCalls, intentRef)
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return g.captureOutcome, nil
}

func (g *fakeGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transferCalls = append(g.transferCalls, req)
	if g.transferErr != nil {
		return "", g.transferErr
	}
	g.transferSeq++
	return fmt.Sprintf("tr_%d", g.transferSeq), nil
}

// fakeNotifier records trigger invocations.
type fakeNotifier struct {
	mu            sync.Mutex
	reminders     []int32
	submissions   int
	autoApprovals int
	captureFails  []string
}

func (n *fakeNotifier) OverdueReminder(ctx context.Context, appt *models.Appointment, offsetMinutes int32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, offsetMinutes)
}

func (n *fakeNotifier) SubmissionReceived(ctx context.Context, appt *models.Appointment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submissions++
}

func (n *fakeNotifier) AutoApprovalOccurred(ctx context.Context, appt *models.Appointment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoApprovals++
}

func (n *fakeNotifier) CaptureFailed(ctx context.Context, appt *models.Appointment, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.captureFails = append(n.captureFails, reason)
}
