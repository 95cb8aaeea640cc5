package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentAdjustment is the append-only audit log of accepted amount changes.
// Rows are never mutated or deleted; a replayed adjustment idempotency key
// returns the historical row instead of re-executing.
type PaymentAdjustment struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentIntentID     uuid.UUID `gorm:"column:payment_intent_id;type:uuid;not null;index"`
	Sequence            int       `gorm:"column:sequence;not null"`
	AmountOriginalCents int64     `gorm:"column:amount_original_cents;not null"`
	AmountDeltaCents    int64     `gorm:"column:amount_delta_cents;not null"`
	AmountCents         int64     `gorm:"column:amount_cents;not null"`
	IdempotencyKey      string    `gorm:"column:idempotency_key;not null;unique"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}
