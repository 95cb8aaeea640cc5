package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	"github.com/cartpay-io/cartpay-backend/pkg/metrics"
)

type recordingGateway struct {
	intentErr error
}

func (g recordingGateway) Kind() enums.GatewayKind { return enums.GatewayKindStripe }

func (g recordingGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return &Intent{ResourceID: "pi_1", Status: IntentStatusSucceeded}, nil
}

func (g recordingGateway) CaptureIntent(ctx context.Context, params CaptureIntentParams) (*Intent, error) {
	return &Intent{ResourceID: "pi_1", Status: IntentStatusSucceeded}, nil
}

func (g recordingGateway) CancelIntent(ctx context.Context, params CancelIntentParams) (*Intent, error) {
	return &Intent{ResourceID: "pi_1", Status: IntentStatusCanceled}, nil
}

func (g recordingGateway) UpdateIntentAmount(ctx context.Context, params UpdateIntentAmountParams) (*Intent, error) {
	return &Intent{ResourceID: "pi_1"}, nil
}

func (g recordingGateway) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	return &Charge{ResourceID: "ch_1"}, nil
}

func (g recordingGateway) RefundCharge(ctx context.Context, params RefundChargeParams) (*Refund, error) {
	return &Refund{ResourceID: "re_1"}, nil
}

func (g recordingGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	return &Customer{ResourceID: "cus_1"}, nil
}

func (g recordingGateway) AttachPaymentMethod(ctx context.Context, params AttachPaymentMethodParams) (*PaymentMethod, error) {
	return &PaymentMethod{ResourceID: "pm_1"}, nil
}

func TestInstrumentedGatewayRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewGatewayMetrics(reg)

	ok := NewInstrumentedGateway(recordingGateway{}, m)
	if _, err := ok.CreateIntent(context.Background(), CreateIntentParams{}); err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	declined := NewInstrumentedGateway(recordingGateway{
		intentErr: &Error{Kind: KindDeclined, Gateway: enums.GatewayKindStripe, Operation: "intent.create"},
	}, m)
	if _, err := declined.CreateIntent(context.Background(), CreateIntentParams{}); err == nil {
		t.Fatalf("expected decline error")
	}

	expected := strings.NewReader(`
# HELP gateway_call_total Outbound payment gateway calls by outcome.
# TYPE gateway_call_total counter
gateway_call_total{gateway="stripe",operation="intent.create",outcome="declined"} 1
gateway_call_total{gateway="stripe",operation="intent.create",outcome="success"} 1
`)
	if err := testutil.GatherAndCompare(reg, expected, "gateway_call_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestInstrumentedGatewayNilMetricsIsNoop(t *testing.T) {
	gw := NewInstrumentedGateway(recordingGateway{}, nil)
	if _, err := gw.CaptureIntent(context.Background(), CaptureIntentParams{}); err != nil {
		t.Fatalf("CaptureIntent: %v", err)
	}
	if gw.Kind() != enums.GatewayKindStripe {
		t.Fatalf("kind passthrough broken")
	}
}
