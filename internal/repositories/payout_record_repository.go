package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

// PayoutRecordRepository defines the interface for payout data operations.
type PayoutRecordRepository interface {
	CreateIfNotExists(ctx context.Context, p *models.PayoutRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error)
	GetByAppointmentAndCleaner(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.PayoutRecord, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*models.PayoutRecord, error)
	UpdateIfVersion(ctx context.Context, p *models.PayoutRecord, expectedVersion int64) (pgconn.CommandTag, error)
	UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.PayoutRecord) error) error

	HoldIfPending(ctx context.Context, id uuid.UUID, grossShareCents int64, capturedAt time.Time) (bool, error)
	ProcessIfHeld(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ProcessIfFailedDue(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CompleteIfProcessing(ctx context.Context, id uuid.UUID, transferRef string, releasedAt time.Time) (bool, error)

	ListFailedDueForRetry(ctx context.Context, now time.Time) ([]*models.PayoutRecord, error)
}

type payoutRecordRepo struct {
	*BaseVersionedRepo[*models.PayoutRecord]
	db DB
}

// NewPayoutRecordRepository creates a new instance of the repository.
func NewPayoutRecordRepository(db DB) PayoutRecordRepository {
	r := &payoutRecordRepo{db: db}
	r.BaseVersionedRepo = NewBaseRepo(db, baseSelectPayoutRecord()+" WHERE id = $1", scanPayoutRecord)
	return r
}

func baseSelectPayoutRecord() string {
	return `
        SELECT
            id, appointment_id, cleaner_id, gross_share_cents, status,
            payment_captured_at, released_at, transfer_ref, last_failure_reason,
            retry_count, last_attempt_at, next_attempt_at,
            row_version, created_at, updated_at
        FROM payout_records
    `
}

func scanPayoutRecord(row pgx.Row) (*models.PayoutRecord, error) {
	var p models.PayoutRecord
	err := row.Scan(
		&p.ID, &p.AppointmentID, &p.CleanerID, &p.GrossShareCents, &p.Status,
		&p.PaymentCapturedAt, &p.ReleasedAt, &p.TransferRef, &p.LastFailureReason,
		&p.RetryCount, &p.LastAttemptAt, &p.NextAttemptAt,
		&p.RowVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *payoutRecordRepo) CreateIfNotExists(ctx context.Context, p *models.PayoutRecord) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO payout_records (
            id, appointment_id, cleaner_id, gross_share_cents, status,
            retry_count, created_at, updated_at, row_version
        ) VALUES ($1,$2,$3,$4,$5,0,NOW(),NOW(),1)
        ON CONFLICT (appointment_id, cleaner_id) DO NOTHING
    `, p.ID, p.AppointmentID, p.CleanerID, p.GrossShareCents, p.Status)
	return err
}

func (r *payoutRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	return r.BaseVersionedRepo.GetByID(ctx, id.String())
}

func (r *payoutRecordRepo) GetByAppointmentAndCleaner(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.PayoutRecord, error) {
	row := r.db.QueryRow(ctx,
		baseSelectPayoutRecord()+" WHERE appointment_id = $1 AND cleaner_id = $2",
		appointmentID, cleanerID)
	return scanPayoutRecord(row)
}

func (r *payoutRecordRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*models.PayoutRecord, error) {
	rows, err := r.db.Query(ctx,
		baseSelectPayoutRecord()+" WHERE appointment_id = $1 ORDER BY created_at",
		appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PayoutRecord
	for rows.Next() {
		p, err := scanPayoutRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *payoutRecordRepo) UpdateIfVersion(ctx context.Context, p *models.PayoutRecord, expectedVersion int64) (pgconn.CommandTag, error) {
	return r.db.Exec(ctx, `
        UPDATE payout_records SET
            gross_share_cents = $1,
            status = $2,
            payment_captured_at = $3,
            released_at = $4,
            transfer_ref = $5,
            last_failure_reason = $6,
            retry_count = $7,
            last_attempt_at = $8,
            next_attempt_at = $9,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $10 AND row_version = $11
    `,
		p.GrossShareCents, p.Status, p.PaymentCapturedAt, p.ReleasedAt,
		p.TransferRef, p.LastFailureReason, p.RetryCount,
		p.LastAttemptAt, p.NextAttemptAt,
		p.ID, expectedVersion)
}

func (r *payoutRecordRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.PayoutRecord) error) error {
	return r.BaseVersionedRepo.UpdateWithRetry(ctx, id.String(), mutate, r.UpdateIfVersion)
}

// HoldIfPending re-stamps the gross share from the gateway-reported
// captured amount; the share computed at assignment time from the quoted
// price is only an estimate.
func (r *payoutRecordRepo) HoldIfPending(ctx context.Context, id uuid.UUID, grossShareCents int64, capturedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE payout_records SET
            status = 'HELD',
            gross_share_cents = $2,
            payment_captured_at = $3,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND status = 'PENDING'
    `, id, grossShareCents, capturedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *payoutRecordRepo) ProcessIfHeld(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE payout_records SET
            status = 'PROCESSING',
            last_attempt_at = $2,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND status = 'HELD'
    `, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ProcessIfFailedDue is the retry scanner's claim step: only a FAILED
// record whose backoff has elapsed may be re-processed.
func (r *payoutRecordRepo) ProcessIfFailedDue(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE payout_records SET
            status = 'PROCESSING',
            last_attempt_at = $2,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND status = 'FAILED'
          AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2
    `, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *payoutRecordRepo) CompleteIfProcessing(ctx context.Context, id uuid.UUID, transferRef string, releasedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE payout_records SET
            status = 'COMPLETED',
            transfer_ref = $2,
            released_at = $3,
            last_failure_reason = NULL,
            next_attempt_at = NULL,
            updated_at = NOW(),
            row_version = row_version + 1
        WHERE id = $1 AND status = 'PROCESSING'
    `, id, transferRef, releasedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *payoutRecordRepo) ListFailedDueForRetry(ctx context.Context, now time.Time) ([]*models.PayoutRecord, error) {
	rows, err := r.db.Query(ctx, baseSelectPayoutRecord()+`
        WHERE status = 'FAILED'
          AND next_attempt_at IS NOT NULL
          AND next_attempt_at <= $1
        ORDER BY next_attempt_at
    `, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PayoutRecord
	for rows.Next() {
		p, err := scanPayoutRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
