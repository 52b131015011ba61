package models

import (
	"time"

	"github.com/google/uuid"
)

// Homeowner is the paying side of an appointment. Account management lives
// elsewhere; this core only reads the Stripe customer reference and the
// contact fields used by notifications.
type Homeowner struct {
	ID               uuid.UUID `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phone_number"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
