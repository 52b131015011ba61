package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

type CleanerCompletionRepository interface {
	CreateIfNotExists(ctx context.Context, c *models.CleanerCompletion) error
	GetByAppointmentAndCleaner(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.CleanerCompletion, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*models.CleanerCompletion, error)
	SubmitIfInProgress(ctx context.Context, appointmentID, cleanerID uuid.UUID, at time.Time) (bool, error)
}

type cleanerCompletionRepo struct {
	db DB
}

func NewCleanerCompletionRepository(db DB) CleanerCompletionRepository {
	return &cleanerCompletionRepo{db: db}
}

func baseSelectCleanerCompletion() string {
	return `
        SELECT id, appointment_id, cleaner_id, status, submitted_at, created_at, updated_at
        FROM cleaner_completions
    `
}

func scanCleanerCompletion(row pgx.Row) (*models.CleanerCompletion, error) {
	var c models.CleanerCompletion
	err := row.Scan(
		&c.ID, &c.AppointmentID, &c.CleanerID, &c.Status, &c.SubmittedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cleanerCompletionRepo) CreateIfNotExists(ctx context.Context, c *models.CleanerCompletion) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO cleaner_completions (
            id, appointment_id, cleaner_id, status, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,NOW(),NOW())
        ON CONFLICT (appointment_id, cleaner_id) DO NOTHING
    `, c.ID, c.AppointmentID, c.CleanerID, c.Status)
	return err
}

func (r *cleanerCompletionRepo) GetByAppointmentAndCleaner(ctx context.Context, appointmentID, cleanerID uuid.UUID) (*models.CleanerCompletion, error) {
	row := r.db.QueryRow(ctx,
		baseSelectCleanerCompletion()+" WHERE appointment_id = $1 AND cleaner_id = $2",
		appointmentID, cleanerID)
	return scanCleanerCompletion(row)
}

func (r *cleanerCompletionRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*models.CleanerCompletion, error) {
	rows, err := r.db.Query(ctx,
		baseSelectCleanerCompletion()+" WHERE appointment_id = $1 ORDER BY created_at",
		appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CleanerCompletion
	for rows.Next() {
		c, err := scanCleanerCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SubmitIfInProgress is idempotent against client retries: a second submit
// finds the row already SUBMITTED and affects zero rows.
func (r *cleanerCompletionRepo) SubmitIfInProgress(ctx context.Context, appointmentID, cleanerID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE cleaner_completions SET
            status = 'SUBMITTED',
            submitted_at = $3,
            updated_at = NOW()
        WHERE appointment_id = $1 AND cleaner_id = $2 AND status = 'IN_PROGRESS'
    `, appointmentID, cleanerID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
