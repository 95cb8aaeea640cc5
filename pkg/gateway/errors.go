package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
)

// ErrorKind classifies gateway failures across providers.
type ErrorKind string

const (
	KindDeclined        ErrorKind = "declined"
	KindExpiredCard     ErrorKind = "expired_card"
	KindIncorrectNumber ErrorKind = "incorrect_number"
	KindIncorrectCVC    ErrorKind = "incorrect_cvc"
	KindProcessingError ErrorKind = "processing_error"
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindIdempotency     ErrorKind = "idempotency_conflict"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUnavailable     ErrorKind = "unavailable"
	KindUnhandled       ErrorKind = "unhandled"
)

// Error wraps a provider failure with a stable classification. ProviderCode
// keeps the raw code for diagnostics; Kind is what callers branch on.
type Error struct {
	Kind         ErrorKind
	Gateway      enums.GatewayKind
	ProviderCode string
	Operation    string
	cause        error
}

func newError(kind ErrorKind, gw enums.GatewayKind, providerCode, op string, cause error) *Error {
	return &Error{
		Kind:         kind,
		Gateway:      gw,
		ProviderCode: providerCode,
		Operation:    op,
		cause:        cause,
	}
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("%s %s: %s", e.Gateway, e.Operation, e.Kind)}
	if e.ProviderCode != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.ProviderCode))
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether replaying the call with the same idempotency key
// can succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// Declined reports whether the payment itself was rejected. Processing
// errors count: the gateway refused the attempt and a verbatim replay will
// refuse it again, so the intent fails terminally rather than staying open.
func (e *Error) Declined() bool {
	switch e.Kind {
	case KindDeclined, KindExpiredCard, KindIncorrectNumber, KindIncorrectCVC, KindProcessingError:
		return true
	default:
		return false
	}
}

// AsError unwraps err to the gateway error type, or nil.
func AsError(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// DomainError converts a gateway failure into the service error taxonomy.
// Non-gateway errors pass through as dependency failures.
func DomainError(err error, op string) error {
	if err == nil {
		return nil
	}

	gwErr, ok := err.(*Error)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s failed", op))
	}

	switch {
	case gwErr.Declined():
		return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, gwErr, fmt.Sprintf("%s declined", op)).
			WithDetails(map[string]any{"kind": string(gwErr.Kind), "provider_code": gwErr.ProviderCode})
	case gwErr.Kind == KindIdempotency:
		return pkgerrors.Wrap(pkgerrors.CodeIdempotency, gwErr, fmt.Sprintf("%s idempotency conflict", op))
	case gwErr.Kind == KindInvalidRequest:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, gwErr, fmt.Sprintf("%s rejected by gateway", op))
	case gwErr.Retryable():
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, gwErr, fmt.Sprintf("%s unavailable", op))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, fmt.Sprintf("%s failed", op)).
			WithRetryable(false)
	}
}
