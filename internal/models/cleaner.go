package models

import (
	"time"

	"github.com/google/uuid"
)

// Cleaner is the earning side of an appointment. Onboarding and the Stripe
// Connect flow live elsewhere; payouts only need the connected account id
// and contact fields for failure notifications.
type Cleaner struct {
	ID                     uuid.UUID `json:"id"`
	FirstName              string    `json:"first_name"`
	LastName               string    `json:"last_name"`
	Email                  string    `json:"email"`
	PhoneNumber            string    `json:"phone_number"`
	StripeConnectAccountID *string   `json:"stripe_connect_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
