package gateway

import (
	"context"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// IntentStatus is the provider-neutral status of a gateway payment intent.
type IntentStatus string

const (
	IntentStatusProcessing      IntentStatus = "processing"
	IntentStatusRequiresCapture IntentStatus = "requires_capture"
	IntentStatusSucceeded       IntentStatus = "succeeded"
	IntentStatusCanceled        IntentStatus = "canceled"
	IntentStatusFailed          IntentStatus = "failed"
)

// ChargeStatus is the provider-neutral status of a gateway charge.
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// RefundStatus is the provider-neutral status of a gateway refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// Intent is the gateway's view of a payment intent after an operation.
type Intent struct {
	ResourceID              string
	Status                  IntentStatus
	AmountCents             int64
	AmountCapturableCents   int64
	AmountReceivedCents     int64
	Currency                string
	PaymentMethodResourceID string
	LatestChargeResourceID  string
}

// Charge is the gateway's view of a settled (or settling) charge.
type Charge struct {
	ResourceID              string
	Status                  ChargeStatus
	AmountCents             int64
	Currency                string
	PaymentMethodResourceID string
}

// Refund is the gateway's view of a refund against a charge.
type Refund struct {
	ResourceID       string
	Status           RefundStatus
	AmountCents      int64
	Currency         string
	ChargeResourceID string
}

// Customer is the gateway-side customer object owning vaulted instruments.
type Customer struct {
	ResourceID string
}

// PaymentMethod describes a vaulted instrument as the gateway reports it.
type PaymentMethod struct {
	ResourceID  string
	Type        enums.PaymentMethodType
	Brand       string
	Last4       string
	ExpMonth    int
	ExpYear     int
	Fingerprint string
}

// CreateIntentParams opens an intent at the gateway. IdempotencyKey must be
// stable across replays so resubmission after an ambiguous failure is safe.
type CreateIntentParams struct {
	IdempotencyKey          string
	CustomerResourceID      string
	PaymentMethodResourceID string
	AmountCents             int64
	Currency                string
	CaptureMethod           enums.CaptureMethod
	ApplicationFeeCents     int64
	Description             string
	Metadata                map[string]string
}

// CaptureIntentParams settles an authorized intent for AmountCents.
type CaptureIntentParams struct {
	IdempotencyKey string
	ResourceID     string
	AmountCents    int64
}

// CancelIntentParams voids an uncaptured intent.
type CancelIntentParams struct {
	IdempotencyKey string
	ResourceID     string
	Reason         string
}

// UpdateIntentAmountParams re-prices an uncaptured intent.
type UpdateIntentAmountParams struct {
	IdempotencyKey string
	ResourceID     string
	AmountCents    int64
}

// CreateChargeParams charges a vaulted instrument immediately, off session.
type CreateChargeParams struct {
	IdempotencyKey          string
	CustomerResourceID      string
	PaymentMethodResourceID string
	AmountCents             int64
	Currency                string
	Description             string
	Metadata                map[string]string
}

// RefundChargeParams returns AmountCents of a charge to the payer.
type RefundChargeParams struct {
	IdempotencyKey   string
	ChargeResourceID string
	AmountCents      int64
	Currency         string
	Reason           string
}

// CreateCustomerParams registers a payer at the gateway.
type CreateCustomerParams struct {
	IdempotencyKey string
	ReferenceID    string
	Country        string
}

// AttachPaymentMethodParams vaults a tokenized instrument under a customer.
type AttachPaymentMethodParams struct {
	IdempotencyKey     string
	CustomerResourceID string
	Token              string
}

// Gateway is the provider-agnostic surface the payment engine drives. All
// mutating calls accept a caller-derived idempotency key; adapters translate
// provider failures into *Error so upstream code can branch on Kind.
type Gateway interface {
	Kind() enums.GatewayKind

	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	CaptureIntent(ctx context.Context, params CaptureIntentParams) (*Intent, error)
	CancelIntent(ctx context.Context, params CancelIntentParams) (*Intent, error)
	UpdateIntentAmount(ctx context.Context, params UpdateIntentAmountParams) (*Intent, error)

	CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error)
	RefundCharge(ctx context.Context, params RefundChargeParams) (*Refund, error)

	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	AttachPaymentMethod(ctx context.Context, params AttachPaymentMethodParams) (*PaymentMethod, error)
}
