package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// PaymentCreatedEvent signals a new cart payment with its initial intent.
type PaymentCreatedEvent struct {
	CartPaymentID   uuid.UUID          `json:"cart_payment_id"`
	PaymentIntentID uuid.UUID          `json:"payment_intent_id"`
	PayerID         uuid.UUID          `json:"payer_id"`
	AmountCents     int64              `json:"amount_cents"`
	Currency        string             `json:"currency"`
	DelayCapture    bool               `json:"delay_capture"`
	Status          enums.IntentStatus `json:"status"`
	CaptureAfter    *time.Time         `json:"capture_after,omitempty"`
}

// PaymentCapturedEvent is emitted once funds settle for an intent.
type PaymentCapturedEvent struct {
	CartPaymentID       uuid.UUID `json:"cart_payment_id"`
	PaymentIntentID     uuid.UUID `json:"payment_intent_id"`
	AmountReceivedCents int64     `json:"amount_received_cents"`
	Currency            string    `json:"currency"`
	CapturedAt          time.Time `json:"captured_at"`
}

// PaymentAdjustedEvent reports an amount change and how it was resolved.
type PaymentAdjustedEvent struct {
	CartPaymentID   uuid.UUID `json:"cart_payment_id"`
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	AdjustmentID    uuid.UUID `json:"adjustment_id"`
	Sequence        int       `json:"sequence"`
	AmountOriginal  int64     `json:"amount_original_cents"`
	AmountDelta     int64     `json:"amount_delta_cents"`
	AmountCents     int64     `json:"amount_cents"`
	Resolution      string    `json:"resolution"`
}

// PaymentRefundedEvent is emitted when a refund settles against a charge.
type PaymentRefundedEvent struct {
	CartPaymentID uuid.UUID `json:"cart_payment_id"`
	ChargeID      uuid.UUID `json:"charge_id"`
	RefundID      uuid.UUID `json:"refund_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
}

// PaymentCancelledEvent reports a voided intent.
type PaymentCancelledEvent struct {
	CartPaymentID   uuid.UUID `json:"cart_payment_id"`
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	CancelledAt     time.Time `json:"cancelled_at"`
	Reason          string    `json:"reason,omitempty"`
}

// PaymentFailedEvent reports a declined or errored intent creation.
type PaymentFailedEvent struct {
	CartPaymentID   uuid.UUID `json:"cart_payment_id"`
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	Reason          string    `json:"reason"`
	ProviderCode    string    `json:"provider_code,omitempty"`
}

// DisputeReceivedEvent annotates a charge with a gateway dispute.
type DisputeReceivedEvent struct {
	DisputeID        uuid.UUID           `json:"dispute_id"`
	ChargeID         uuid.UUID           `json:"charge_id"`
	GatewayDisputeID string              `json:"gateway_dispute_id"`
	AmountCents      int64               `json:"amount_cents"`
	Currency         string              `json:"currency"`
	Reason           string              `json:"reason"`
	Status           enums.DisputeStatus `json:"status"`
}
