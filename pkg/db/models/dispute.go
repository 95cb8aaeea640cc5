package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// Dispute annotates a charge with an out-of-band chargeback event. Disputes
// never mutate payment amounts; they are keyed by the gateway's dispute id
// so replayed webhook deliveries update in place.
type Dispute struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GatewayDisputeID string              `gorm:"column:gateway_dispute_id;not null;unique"`
	ChargeID         uuid.UUID           `gorm:"column:charge_id;type:uuid;not null;index"`
	AmountCents      int64               `gorm:"column:amount_cents;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	Reason           string              `gorm:"column:reason;not null"`
	Status           enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
