package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

// CleanerRepository is read-only here; onboarding and the Stripe Connect
// flow live in the accounts service.
type CleanerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Cleaner, error)
}

type cleanerRepo struct {
	db DB
}

func NewCleanerRepository(db DB) CleanerRepository {
	return &cleanerRepo{db: db}
}

func (r *cleanerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Cleaner, error) {
	row := r.db.QueryRow(ctx, `
        SELECT id, first_name, last_name, email, phone_number, stripe_connect_account_id,
               created_at, updated_at
        FROM cleaners WHERE id = $1
    `, id)

	var c models.Cleaner
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
		&c.StripeConnectAccountID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
