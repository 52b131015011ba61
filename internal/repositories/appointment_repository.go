package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appt *models.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	UpdateIfVersion(ctx context.Context, a *models.Appointment, expectedVersion int64) (pgconn.CommandTag, error)
	UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.Appointment) error) error

	// Capture scanner
	ListDueForCapture(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Appointment, error)
	SetPaymentIntentRef(ctx context.Context, id uuid.UUID, intentRef string) (bool, error)
	MarkCaptured(ctx context.Context, id uuid.UUID, capturedAmountCents int64) (bool, error)
	MarkCaptureFailed(ctx context.Context, id uuid.UUID, reason string) error

	// Completion transitions (all compare-and-transition; false = row was
	// no longer in the expected prior state, which callers treat as a
	// benign no-op, not an error)
	SetJobStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SubmitIfInProgress(ctx context.Context, id uuid.UUID, submittedAt, deadline time.Time) (bool, error)
	ApproveIfSubmitted(ctx context.Context, id uuid.UUID, approvedAt time.Time, approvedBy string) (bool, error)

	// Monitors
	ListSubmittedPastDeadline(ctx context.Context, now time.Time) ([]*models.Appointment, error)
	AutoApproveIfSubmitted(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error)
	ListInProgressPastEnd(ctx context.Context, now time.Time) ([]*models.Appointment, error)
	AutoCompleteIfInProgress(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, offsetMinutes int32) (bool, error)
}

type appointmentRepo struct {
	*BaseVersionedRepo[*models.Appointment]
	db DB
}

func NewAppointmentRepository(db DB) AppointmentRepository {
	r := &appointmentRepo{db: db}
	r.BaseVersionedRepo = NewBaseRepo(db, baseSelectAppointment()+" WHERE id = $1", scanAppointment)
	return r
}

func baseSelectAppointment() string {
	return `
        SELECT
            id, homeowner_id, service_date, scheduled_start_time, scheduled_end_time,
            assigned_cleaner_ids,
            payment_status, payment_intent_ref, price_cents, captured_amount_cents,
            paid, capture_failed, capture_failure_reason,
            completion_status, job_started_at, completion_submitted_at,
            auto_approval_deadline, completion_approved_at, completion_approved_by,
            auto_completed_by_system, reminders_sent, homeowner_feedback_required,
            split_overrides, row_version, created_at, updated_at
        FROM appointments
    `
}

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	var a models.Appointment
	var cleaners []uuid.UUID
	var reminders []int32
	var overridesJSON []byte
	err := row.Scan(
		&a.ID,
		&a.HomeownerID,
		&a.ServiceDate,
		&a.ScheduledStartTime,
		&a.ScheduledEndTime,
		&cleaners,
		&a.PaymentStatus,
		&a.PaymentIntentRef,
		&a.PriceCents,
		&a.CapturedAmountCents,
		&a.Paid,
		&a.CaptureFailed,
		&a.CaptureFailureReason,
		&a.CompletionStatus,
		&a.JobStartedAt,
		&a.CompletionSubmittedAt,
		&a.AutoApprovalDeadline,
		&a.CompletionApprovedAt,
		&a.CompletionApprovedBy,
		&a.AutoCompletedBySystem,
		&reminders,
		&a.HomeownerFeedbackRequired,
		&overridesJSON,
		&a.RowVersion,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.AssignedCleanerIDs = cleaners
	a.RemindersSent = reminders
	if len(overridesJSON) > 0 {
		if err := json.Unmarshal(overridesJSON, &a.SplitOverrides); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *appointmentRepo) Create(ctx context.Context, appt *models.Appointment) error {
	var overridesJSON []byte
	if appt.SplitOverrides != nil {
		b, err := json.Marshal(appt.SplitOverrides)
		if err != nil {
			return err
		}
		overridesJSON = b
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO appointments (
            id, homeowner_id, service_date, scheduled_start_time, scheduled_end_time,
            assigned_cleaner_ids, payment_status, payment_intent_ref, price_cents,
            paid, capture_failed, completion_status,
            auto_completed_by_system, reminders_sent, homeowner_feedback_required,
            split_overrides, created_at, updated_at, row_version
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE,FALSE,$10,FALSE,'{}',FALSE,$11,NOW(),NOW(),1
        )
    `,
		appt.ID,
		appt.HomeownerID,
		appt.ServiceDate,
		appt.ScheduledStartTime,
		appt.ScheduledEndTime,
		appt.AssignedCleanerIDs,
		appt.PaymentStatus,
		appt.PaymentIntentRef,
		appt.PriceCents,
		appt.CompletionStatus,
		overridesJSON,
	)
	return err
}

func (r *appointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	return r.BaseVersionedRepo.GetByID(ctx, id.String())
}

// UpdateIfVersion persists the capture and completion sub-state fields
// guarded by the optimistic row_version check.
func (r *appointmentRepo) UpdateIfVersion(ctx context.Context, a *models.Appointment, expectedVersion int64) (pgconn.CommandTag, error) {
	return r.db.Exec(ctx, `
        UPDATE appointments SET
            payment_status = $1,
            payment_intent_ref = $2,
            captured_amount_cents = $3,
            paid = $4,
            capture_failed = $5,
            capture_failure_reason = $6,
            completion_status = $7,
            job_started_at = $8,
            completion_submitted_at = $9,
            auto_approval_deadline = $10,
            completion_approved_at = $11,
            completion_approved_by = $12,
            auto_completed_by_system = $13,
            homeowner_feedback_required = $14,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $15 AND row_version = $16
    `,
		a.PaymentStatus, a.PaymentIntentRef, a.CapturedAmountCents, a.Paid,
		a.CaptureFailed, a.CaptureFailureReason,
		a.CompletionStatus, a.JobStartedAt, a.CompletionSubmittedAt,
		a.AutoApprovalDeadline, a.CompletionApprovedAt, a.CompletionApprovedBy,
		a.AutoCompletedBySystem, a.HomeownerFeedbackRequired,
		a.ID, expectedVersion)
}

func (r *appointmentRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.Appointment) error) error {
	return r.BaseVersionedRepo.UpdateWithRetry(ctx, id.String(), mutate, r.UpdateIfVersion)
}

func (r *appointmentRepo) ListDueForCapture(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Appointment, error) {
	q := baseSelectAppointment() + `
        WHERE payment_status = 'PENDING'
          AND paid = FALSE
          AND capture_failed = FALSE
          AND cardinality(assigned_cleaner_ids) > 0
          AND service_date >= $1
          AND service_date <= $2
        ORDER BY service_date, created_at
    `
	return r.listAppointments(ctx, q, windowStart, windowEnd)
}

func (r *appointmentRepo) SetPaymentIntentRef(ctx context.Context, id uuid.UUID, intentRef string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            payment_intent_ref = $2,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND payment_intent_ref IS NULL
    `, id, intentRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepo) MarkCaptured(ctx context.Context, id uuid.UUID, capturedAmountCents int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            payment_status = 'CAPTURED',
            paid = TRUE,
            captured_amount_cents = $2,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND payment_status = 'PENDING'
    `, id, capturedAmountCents)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCaptureFailed sets the sticky failure flag. The appointment stays
// PENDING so a human can clear the flag and let a later scan retry.
func (r *appointmentRepo) MarkCaptureFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            capture_failed = TRUE,
            capture_failure_reason = $2,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND paid = FALSE
    `, id, reason)
	return err
}

func (r *appointmentRepo) SetJobStarted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            job_started_at = $2,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND job_started_at IS NULL AND completion_status = 'IN_PROGRESS'
    `, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepo) SubmitIfInProgress(ctx context.Context, id uuid.UUID, submittedAt, deadline time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            completion_status = 'SUBMITTED',
            completion_submitted_at = $2,
            auto_approval_deadline = $3,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND completion_status = 'IN_PROGRESS'
    `, id, submittedAt, deadline)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ApproveIfSubmitted is the human-approval path. It is gated on paid so a
// payout can never release ahead of capture.
func (r *appointmentRepo) ApproveIfSubmitted(ctx context.Context, id uuid.UUID, approvedAt time.Time, approvedBy string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            completion_status = 'APPROVED',
            completion_approved_at = $2,
            completion_approved_by = $3,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND completion_status = 'SUBMITTED' AND paid = TRUE
    `, id, approvedAt, approvedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepo) ListSubmittedPastDeadline(ctx context.Context, now time.Time) ([]*models.Appointment, error) {
	q := baseSelectAppointment() + `
        WHERE completion_status = 'SUBMITTED'
          AND auto_approval_deadline IS NOT NULL
          AND auto_approval_deadline <= $1
          AND paid = TRUE
        ORDER BY auto_approval_deadline
    `
	return r.listAppointments(ctx, q, now)
}

func (r *appointmentRepo) AutoApproveIfSubmitted(ctx context.Context, id uuid.UUID, approvedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            completion_status = 'AUTO_APPROVED',
            completion_approved_at = $2,
            completion_approved_by = 'system',
            homeowner_feedback_required = TRUE,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND completion_status = 'SUBMITTED' AND paid = TRUE
    `, id, approvedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepo) ListInProgressPastEnd(ctx context.Context, now time.Time) ([]*models.Appointment, error) {
	q := baseSelectAppointment() + `
        WHERE completion_status = 'IN_PROGRESS'
          AND job_started_at IS NOT NULL
          AND scheduled_end_time <= $1
        ORDER BY scheduled_end_time
    `
	return r.listAppointments(ctx, q, now)
}

func (r *appointmentRepo) AutoCompleteIfInProgress(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            completion_status = 'AUTO_APPROVED',
            completion_approved_at = $2,
            completion_approved_by = 'system',
            auto_completed_by_system = TRUE,
            homeowner_feedback_required = TRUE,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND completion_status = 'IN_PROGRESS' AND paid = TRUE
    `, id, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReminderSent appends the offset only if it is not already present,
// so concurrent monitor runs fire each reminder at most once.
func (r *appointmentRepo) MarkReminderSent(ctx context.Context, id uuid.UUID, offsetMinutes int32) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE appointments SET
            reminders_sent = array_append(reminders_sent, $2),
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND NOT ($2 = ANY(reminders_sent))
    `, id, offsetMinutes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepo) listAppointments(ctx context.Context, q string, args ...interface{}) ([]*models.Appointment, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
