package paymentmethods

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// RefKind discriminates how a payment method reference should be resolved.
// The set is closed; callers pick a kind at the boundary instead of passing
// free-form id strings.
type RefKind string

const (
	// RefKindID references a local payment method row by uuid.
	RefKindID RefKind = "id"
	// RefKindGatewayID references the gateway's vaulted instrument directly.
	RefKindGatewayID RefKind = "gateway_id"
)

// Ref is a tagged payment method reference.
type Ref struct {
	Kind  RefKind
	Value string
}

// Valid reports whether the reference is well formed for its kind.
func (r Ref) Valid() bool {
	value := strings.TrimSpace(r.Value)
	if value == "" {
		return false
	}
	switch r.Kind {
	case RefKindID:
		_, err := uuid.Parse(value)
		return err == nil
	case RefKindGatewayID:
		return true
	default:
		return false
	}
}

// Resolved is the outcome of resolving a Ref against the vault. It carries
// everything the payment engine needs to drive a gateway call.
type Resolved struct {
	PaymentMethodID uuid.UUID
	PayerID         uuid.UUID
	Gateway         enums.GatewayKind
	ResourceID      string
}
