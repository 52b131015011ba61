package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/Gkimbo/cleaningCompany-sub028/internal/models"
)

// HomeownerRepository is read-only from this core's perspective; account
// management belongs to another service.
type HomeownerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Homeowner, error)
}

type homeownerRepo struct {
	db DB
}

func NewHomeownerRepository(db DB) HomeownerRepository {
	return &homeownerRepo{db: db}
}

func (r *homeownerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Homeowner, error) {
	row := r.db.QueryRow(ctx, `
        SELECT id, first_name, last_name, email, phone_number, stripe_customer_id,
               created_at, updated_at
        FROM homeowners WHERE id = $1
    `, id)

	var h models.Homeowner
	err := row.Scan(
		&h.ID, &h.FirstName, &h.LastName, &h.Email, &h.PhoneNumber,
		&h.StripeCustomerID, &h.CreatedAt, &h.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}
