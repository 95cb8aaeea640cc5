package models

import (
	"time"

	"github.com/google/uuid"
)

// Payer links an external identity to the gateway customer objects that own
// vaulted payment methods.
type Payer struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReferenceID      string    `gorm:"column:reference_id;not null;unique"`
	Country          string    `gorm:"column:country;not null;default:'US'"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;unique"`
	SquareCustomerID *string   `gorm:"column:square_customer_id;unique"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
