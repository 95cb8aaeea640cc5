package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CartPayment is the caller-visible aggregate root. Exactly one active
// (non-deleted) row may exist per (payer_id, idempotency_key); a partial
// unique index enforces this.
type CartPayment struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayerID           uuid.UUID       `gorm:"column:payer_id;type:uuid;not null;index"`
	AmountCents       int64           `gorm:"column:amount_cents;not null"`
	Currency          string          `gorm:"column:currency;not null;default:'usd'"`
	DelayCapture      bool            `gorm:"column:delay_capture;not null;default:false"`
	IdempotencyKey    string          `gorm:"column:idempotency_key;not null"`
	ClientDescription *string         `gorm:"column:client_description"`
	Metadata          json.RawMessage `gorm:"column:metadata;type:jsonb"`
	Intents           []PaymentIntent `gorm:"foreignKey:CartPaymentID"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         *time.Time      `gorm:"column:deleted_at"`
}
