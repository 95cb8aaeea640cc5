package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// GatewayPaymentIntent shadows the gateway's view of a payment intent so
// drift can be detected without a network round trip. Advisory only: amount
// invariants are enforced against the local PaymentIntent, never this row.
type GatewayPaymentIntent struct {
	ID                      uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentIntentID         uuid.UUID         `gorm:"column:payment_intent_id;type:uuid;not null;unique"`
	Gateway                 enums.GatewayKind `gorm:"column:gateway;type:gateway_kind;not null"`
	ResourceID              string            `gorm:"column:resource_id;not null;index"`
	Status                  string            `gorm:"column:status;not null"`
	PaymentMethodResourceID string            `gorm:"column:payment_method_resource_id;not null"`
	AmountCents             int64             `gorm:"column:amount_cents;not null"`
	AmountCapturableCents   int64             `gorm:"column:amount_capturable_cents;not null;default:0"`
	AmountReceivedCents     int64             `gorm:"column:amount_received_cents;not null;default:0"`
	Currency                string            `gorm:"column:currency;not null"`
	CreatedAt               time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
