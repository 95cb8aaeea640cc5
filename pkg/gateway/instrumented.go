package gateway

import (
	"context"
	"time"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	"github.com/cartpay-io/cartpay-backend/pkg/metrics"
)

// InstrumentedGateway wraps another Gateway and records per-operation call
// metrics. A nil metrics receiver makes every observation a no-op, so the
// wrapper is safe to use unconditionally.
type InstrumentedGateway struct {
	inner Gateway
	m     *metrics.GatewayMetrics
}

func NewInstrumentedGateway(inner Gateway, m *metrics.GatewayMetrics) *InstrumentedGateway {
	return &InstrumentedGateway{inner: inner, m: m}
}

func (g *InstrumentedGateway) Kind() enums.GatewayKind {
	return g.inner.Kind()
}

func (g *InstrumentedGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	start := time.Now()
	intent, err := g.inner.CreateIntent(ctx, params)
	g.observe("intent.create", start, err)
	return intent, err
}

func (g *InstrumentedGateway) CaptureIntent(ctx context.Context, params CaptureIntentParams) (*Intent, error) {
	start := time.Now()
	intent, err := g.inner.CaptureIntent(ctx, params)
	g.observe("intent.capture", start, err)
	return intent, err
}

func (g *InstrumentedGateway) CancelIntent(ctx context.Context, params CancelIntentParams) (*Intent, error) {
	start := time.Now()
	intent, err := g.inner.CancelIntent(ctx, params)
	g.observe("intent.cancel", start, err)
	return intent, err
}

func (g *InstrumentedGateway) UpdateIntentAmount(ctx context.Context, params UpdateIntentAmountParams) (*Intent, error) {
	start := time.Now()
	intent, err := g.inner.UpdateIntentAmount(ctx, params)
	g.observe("intent.update_amount", start, err)
	return intent, err
}

func (g *InstrumentedGateway) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	start := time.Now()
	charge, err := g.inner.CreateCharge(ctx, params)
	g.observe("charge.create", start, err)
	return charge, err
}

func (g *InstrumentedGateway) RefundCharge(ctx context.Context, params RefundChargeParams) (*Refund, error) {
	start := time.Now()
	refund, err := g.inner.RefundCharge(ctx, params)
	g.observe("refund.create", start, err)
	return refund, err
}

func (g *InstrumentedGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	start := time.Now()
	customer, err := g.inner.CreateCustomer(ctx, params)
	g.observe("customer.create", start, err)
	return customer, err
}

func (g *InstrumentedGateway) AttachPaymentMethod(ctx context.Context, params AttachPaymentMethodParams) (*PaymentMethod, error) {
	start := time.Now()
	method, err := g.inner.AttachPaymentMethod(ctx, params)
	g.observe("method.attach", start, err)
	return method, err
}

func (g *InstrumentedGateway) observe(operation string, start time.Time, err error) {
	g.m.ObserveCall(string(g.inner.Kind()), operation, callOutcome(err), time.Since(start))
}

func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if gerr := AsError(err); gerr != nil {
		if gerr.Declined() {
			return "declined"
		}
		if gerr.Retryable() {
			return "retryable_error"
		}
	}
	return "error"
}
