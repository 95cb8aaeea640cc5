package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// PaymentIntent is one authorization attempt for a cart payment. A cart
// payment owns an ordered sequence of intents; at most one is non-terminal
// at a time. The idempotency key doubles as the gateway-native idempotency
// token and is unique across all intents, which blocks duplicate gateway
// submission even across cart payments.
//
// Invariant: AmountReceivedCents + AmountCapturableCents <= AmountCents.
type PaymentIntent struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartPaymentID         uuid.UUID           `gorm:"column:cart_payment_id;type:uuid;not null;index"`
	AmountInitiatedCents  int64               `gorm:"column:amount_initiated_cents;not null"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	AmountCapturableCents int64               `gorm:"column:amount_capturable_cents;not null;default:0"`
	AmountReceivedCents   int64               `gorm:"column:amount_received_cents;not null;default:0"`
	ApplicationFeeCents   int64               `gorm:"column:application_fee_cents;not null;default:0"`
	Currency              string              `gorm:"column:currency;not null;default:'usd'"`
	Status                enums.IntentStatus  `gorm:"column:status;type:intent_status;not null;default:'initiated'"`
	CaptureMethod         enums.CaptureMethod `gorm:"column:capture_method;type:capture_method;not null;default:'automatic'"`
	CaptureAfter          *time.Time          `gorm:"column:capture_after"`
	IdempotencyKey        string              `gorm:"column:idempotency_key;not null;unique"`
	AdjustmentCount       int                 `gorm:"column:adjustment_count;not null;default:0"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	CapturedAt            *time.Time          `gorm:"column:captured_at"`
	CancelledAt           *time.Time          `gorm:"column:cancelled_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
