package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// Charge records captured funds for a payment intent. A charge is terminal
// once amount_refunded_cents reaches amount_cents.
type Charge struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentIntentID     uuid.UUID          `gorm:"column:payment_intent_id;type:uuid;not null;index"`
	AmountCents         int64              `gorm:"column:amount_cents;not null"`
	AmountRefundedCents int64              `gorm:"column:amount_refunded_cents;not null;default:0"`
	ApplicationFeeCents int64              `gorm:"column:application_fee_cents;not null;default:0"`
	Currency            string             `gorm:"column:currency;not null;default:'usd'"`
	Status              enums.ChargeStatus `gorm:"column:status;type:charge_status;not null;default:'pending'"`
	IdempotencyKey      string             `gorm:"column:idempotency_key;not null;unique"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// UnrefundedCents returns the remainder still eligible for refund.
func (c Charge) UnrefundedCents() int64 {
	return c.AmountCents - c.AmountRefundedCents
}
