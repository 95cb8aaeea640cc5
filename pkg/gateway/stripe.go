package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

const (
	stripeTestEnv = "test"
	stripeLiveEnv = "live"
)

var (
	errStripeAPIKeyRequired = errors.New("stripe api key is required")
	errStripeSecretRequired = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv     = fmt.Errorf("stripe environment must be %q or %q", stripeTestEnv, stripeLiveEnv)
)

// StripeGateway drives payment intents through Stripe.
type StripeGateway struct {
	environment   string
	signingSecret string
	logger        *logger.Logger
}

// NewStripeGateway validates the configured credentials and initializes the
// global Stripe key once.
func NewStripeGateway(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*StripeGateway, error) {
	env, err := normalizeStripeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errStripeAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errStripeSecretRequired
	}

	if err := validateStripeAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe gateway initialized (%s)", env))
	}

	return &StripeGateway{
		environment:   env,
		signingSecret: signingSecret,
		logger:        logg,
	}, nil
}

// Kind identifies the adapter.
func (g *StripeGateway) Kind() enums.GatewayKind {
	return enums.GatewayKindStripe
}

// Environment reports the normalized Stripe environment in use.
func (g *StripeGateway) Environment() string {
	if g == nil {
		return ""
	}
	return g.environment
}

// SigningSecret returns the webhook signing secret.
func (g *StripeGateway) SigningSecret() string {
	if g == nil {
		return ""
	}
	return g.signingSecret
}

// CreateIntent opens a payment intent, confirming it off session against the
// vaulted instrument. Manual capture holds the funds until CaptureIntent.
func (g *StripeGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	req := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(params.AmountCents),
		Currency:      stripe.String(strings.ToLower(params.Currency)),
		Customer:      stripe.String(params.CustomerResourceID),
		PaymentMethod: stripe.String(params.PaymentMethodResourceID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if params.CaptureMethod == enums.CaptureMethodManual {
		req.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if params.Description != "" {
		req.Description = stripe.String(params.Description)
	}
	for k, v := range params.Metadata {
		req.AddMetadata(k, v)
	}
	if params.ApplicationFeeCents > 0 {
		req.AddMetadata("application_fee_cents", strconv.FormatInt(params.ApplicationFeeCents, 10))
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	pi, err := paymentintent.New(req)
	if err != nil {
		return nil, g.mapError(err, "create_intent")
	}
	return stripeIntent(pi), nil
}

// CaptureIntent settles an authorized intent for the given amount.
func (g *StripeGateway) CaptureIntent(ctx context.Context, params CaptureIntentParams) (*Intent, error) {
	req := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(params.AmountCents),
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	pi, err := paymentintent.Capture(params.ResourceID, req)
	if err != nil {
		return nil, g.mapError(err, "capture_intent")
	}
	return stripeIntent(pi), nil
}

// CancelIntent voids an uncaptured intent and releases the hold.
func (g *StripeGateway) CancelIntent(ctx context.Context, params CancelIntentParams) (*Intent, error) {
	req := &stripe.PaymentIntentCancelParams{}
	if params.Reason != "" {
		req.CancellationReason = stripe.String(params.Reason)
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	pi, err := paymentintent.Cancel(params.ResourceID, req)
	if err != nil {
		return nil, g.mapError(err, "cancel_intent")
	}
	return stripeIntent(pi), nil
}

// UpdateIntentAmount re-prices an uncaptured intent.
func (g *StripeGateway) UpdateIntentAmount(ctx context.Context, params UpdateIntentAmountParams) (*Intent, error) {
	req := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(params.AmountCents),
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	pi, err := paymentintent.Update(params.ResourceID, req)
	if err != nil {
		return nil, g.mapError(err, "update_intent_amount")
	}
	return stripeIntent(pi), nil
}

// CreateCharge charges a vaulted instrument immediately via an auto-capture
// intent. The returned resource id is the underlying charge so dispute
// events can be joined back to it.
func (g *StripeGateway) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	req := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(params.AmountCents),
		Currency:      stripe.String(strings.ToLower(params.Currency)),
		Customer:      stripe.String(params.CustomerResourceID),
		PaymentMethod: stripe.String(params.PaymentMethodResourceID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if params.Description != "" {
		req.Description = stripe.String(params.Description)
	}
	for k, v := range params.Metadata {
		req.AddMetadata(k, v)
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	pi, err := paymentintent.New(req)
	if err != nil {
		return nil, g.mapError(err, "create_charge")
	}

	chargeID := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		chargeID = pi.LatestCharge.ID
	}

	return &Charge{
		ResourceID:              chargeID,
		Status:                  stripeChargeStatus(pi.Status),
		AmountCents:             pi.AmountReceived,
		Currency:                string(pi.Currency),
		PaymentMethodResourceID: params.PaymentMethodResourceID,
	}, nil
}

// RefundCharge returns part or all of a charge to the payer.
func (g *StripeGateway) RefundCharge(ctx context.Context, params RefundChargeParams) (*Refund, error) {
	req := &stripe.RefundParams{
		Charge: stripe.String(params.ChargeResourceID),
		Amount: stripe.Int64(params.AmountCents),
	}
	if params.Reason != "" {
		req.Reason = stripe.String(params.Reason)
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	rf, err := refund.New(req)
	if err != nil {
		return nil, g.mapError(err, "refund_charge")
	}

	chargeID := params.ChargeResourceID
	if rf.Charge != nil && rf.Charge.ID != "" {
		chargeID = rf.Charge.ID
	}

	return &Refund{
		ResourceID:       rf.ID,
		Status:           stripeRefundStatus(rf.Status),
		AmountCents:      rf.Amount,
		Currency:         string(rf.Currency),
		ChargeResourceID: chargeID,
	}, nil
}

// CreateCustomer registers a payer at Stripe.
func (g *StripeGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	req := &stripe.CustomerParams{}
	req.AddMetadata("reference_id", params.ReferenceID)
	if params.Country != "" {
		req.AddMetadata("country", params.Country)
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	cust, err := customer.New(req)
	if err != nil {
		return nil, g.mapError(err, "create_customer")
	}
	return &Customer{ResourceID: cust.ID}, nil
}

// AttachPaymentMethod vaults a tokenized instrument under a customer.
func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, params AttachPaymentMethodParams) (*PaymentMethod, error) {
	req := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(params.CustomerResourceID),
	}
	req.Context = ctx
	req.SetIdempotencyKey(params.IdempotencyKey)

	pm, err := paymentmethod.Attach(params.Token, req)
	if err != nil {
		return nil, g.mapError(err, "attach_payment_method")
	}

	out := &PaymentMethod{
		ResourceID: pm.ID,
		Type:       stripePaymentMethodType(pm.Type),
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = int(pm.Card.ExpMonth)
		out.ExpYear = int(pm.Card.ExpYear)
		out.Fingerprint = pm.Card.Fingerprint
	}
	return out, nil
}

func (g *StripeGateway) mapError(err error, op string) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return newError(KindUnavailable, enums.GatewayKindStripe, "", op, err)
	}

	kind := KindUnhandled
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Code == stripe.ErrorCodeRateLimit:
		kind = KindRateLimited
	case stripeErr.Type == stripe.ErrorTypeCard:
		kind = stripeCardErrorKind(stripeErr.Code)
	case stripeErr.Type == stripe.ErrorTypeIdempotency:
		kind = KindIdempotency
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		kind = KindInvalidRequest
	case stripeErr.Type == stripe.ErrorTypeAPI:
		kind = KindUnavailable
	}

	return newError(kind, enums.GatewayKindStripe, string(stripeErr.Code), op, err)
}

func stripeCardErrorKind(code stripe.ErrorCode) ErrorKind {
	switch code {
	case stripe.ErrorCodeExpiredCard:
		return KindExpiredCard
	case stripe.ErrorCodeIncorrectNumber:
		return KindIncorrectNumber
	case stripe.ErrorCodeIncorrectCVC:
		return KindIncorrectCVC
	case stripe.ErrorCodeProcessingError:
		return KindProcessingError
	default:
		return KindDeclined
	}
}

func stripeIntent(pi *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ResourceID:            pi.ID,
		Status:                stripeIntentStatus(pi.Status),
		AmountCents:           pi.Amount,
		AmountCapturableCents: pi.AmountCapturable,
		AmountReceivedCents:   pi.AmountReceived,
		Currency:              string(pi.Currency),
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethodResourceID = pi.PaymentMethod.ID
	}
	if pi.LatestCharge != nil {
		out.LatestChargeResourceID = pi.LatestCharge.ID
	}
	return out
}

func stripeIntentStatus(status stripe.PaymentIntentStatus) IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return IntentStatusRequiresCapture
	case stripe.PaymentIntentStatusSucceeded:
		return IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return IntentStatusFailed
	default:
		return IntentStatusProcessing
	}
}

func stripeChargeStatus(status stripe.PaymentIntentStatus) ChargeStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeStatusSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return ChargeStatusFailed
	default:
		return ChargeStatusPending
	}
}

func stripeRefundStatus(status stripe.RefundStatus) RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return RefundStatusSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return RefundStatusFailed
	default:
		return RefundStatusPending
	}
}

func stripePaymentMethodType(t stripe.PaymentMethodType) enums.PaymentMethodType {
	switch t {
	case stripe.PaymentMethodTypeCard:
		return enums.PaymentMethodTypeCard
	case stripe.PaymentMethodTypeUSBankAccount:
		return enums.PaymentMethodTypeBankAccount
	default:
		return enums.PaymentMethodTypeOther
	}
}

func normalizeStripeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = stripeTestEnv
	}
	switch env {
	case stripeTestEnv, stripeLiveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateStripeAPIKey(env, key string) error {
	switch env {
	case stripeTestEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", stripeTestEnv)
	case stripeLiveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", stripeLiveEnv)
	default:
		return errInvalidStripeEnv
	}
}
