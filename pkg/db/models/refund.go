package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// Refund returns funds against a charge. The amount is bounded by the
// charge's unrefunded remainder at creation time.
type Refund struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChargeID       uuid.UUID          `gorm:"column:charge_id;type:uuid;not null;index"`
	AmountCents    int64              `gorm:"column:amount_cents;not null"`
	Reason         string             `gorm:"column:reason;not null"`
	Status         enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'pending'"`
	IdempotencyKey string             `gorm:"column:idempotency_key;not null;unique"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
