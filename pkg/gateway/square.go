package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

const (
	squareSandboxEnv    = "sandbox"
	squareProductionEnv = "production"
)

var (
	errSquareTokenRequired    = errors.New("square access token is required")
	errSquareLocationRequired = errors.New("square location id is required")
	errInvalidSquareEnv       = fmt.Errorf("square environment must be %q or %q", squareSandboxEnv, squareProductionEnv)
)

var squareBaseURLs = map[string]string{
	squareSandboxEnv:    "https://connect.squareupsandbox.com",
	squareProductionEnv: "https://connect.squareup.com",
}

// SquareGateway drives payment intents through Square. Square has no intent
// object; a delayed-capture intent is a payment created with autocomplete
// off, completed or canceled later.
type SquareGateway struct {
	sdk         *sqclient.Client
	environment string
	locationID  string
	logger      *logger.Logger
}

// NewSquareGateway validates the configured credentials and builds the SDK
// client against the environment's base URL.
func NewSquareGateway(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*SquareGateway, error) {
	env, err := normalizeSquareEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errSquareTokenRequired
	}

	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errSquareLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(squareBaseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("square gateway initialized (%s)", env))
	}

	return &SquareGateway{
		sdk:         sdk,
		environment: env,
		locationID:  locationID,
		logger:      logg,
	}, nil
}

// Kind identifies the adapter.
func (g *SquareGateway) Kind() enums.GatewayKind {
	return enums.GatewayKindSquare
}

// Environment reports the normalized Square environment.
func (g *SquareGateway) Environment() string {
	if g == nil {
		return ""
	}
	return g.environment
}

// CreateIntent authorizes a payment. Manual capture maps to autocomplete off;
// the funds stay held until CaptureIntent completes the payment.
func (g *SquareGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: params.IdempotencyKey,
		SourceID:       params.PaymentMethodResourceID,
		LocationID:     sqString(g.locationID),
		CustomerID:     sqString(params.CustomerResourceID),
		AmountMoney:    sqMoney(params.AmountCents, params.Currency),
		Autocomplete:   sqBool(params.CaptureMethod != enums.CaptureMethodManual),
	}
	if note := strings.TrimSpace(params.Description); note != "" {
		req.Note = sqString(note)
	}

	resp, err := g.sdk.Payments.Create(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "create_intent")
	}
	return squareIntent(resp.GetPayment(), params.PaymentMethodResourceID), nil
}

// CaptureIntent completes an approved payment. Square settles the held
// amount; re-pricing happens through UpdateIntentAmount beforehand.
func (g *SquareGateway) CaptureIntent(ctx context.Context, params CaptureIntentParams) (*Intent, error) {
	req := &sq.CompletePaymentRequest{PaymentID: params.ResourceID}

	resp, err := g.sdk.Payments.Complete(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "capture_intent")
	}
	return squareIntent(resp.GetPayment(), ""), nil
}

// CancelIntent voids an approved payment before completion.
func (g *SquareGateway) CancelIntent(ctx context.Context, params CancelIntentParams) (*Intent, error) {
	req := &sq.CancelPaymentsRequest{PaymentID: params.ResourceID}

	resp, err := g.sdk.Payments.Cancel(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "cancel_intent")
	}
	return squareIntent(resp.GetPayment(), ""), nil
}

// UpdateIntentAmount re-prices an approved, uncompleted payment.
func (g *SquareGateway) UpdateIntentAmount(ctx context.Context, params UpdateIntentAmountParams) (*Intent, error) {
	req := &sq.UpdatePaymentRequest{
		PaymentID:      params.ResourceID,
		IdempotencyKey: params.IdempotencyKey,
		Payment: &sq.Payment{
			AmountMoney: sqMoney(params.AmountCents, ""),
		},
	}

	resp, err := g.sdk.Payments.Update(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "update_intent_amount")
	}
	return squareIntent(resp.GetPayment(), ""), nil
}

// CreateCharge takes payment immediately from a vaulted card.
func (g *SquareGateway) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: params.IdempotencyKey,
		SourceID:       params.PaymentMethodResourceID,
		LocationID:     sqString(g.locationID),
		CustomerID:     sqString(params.CustomerResourceID),
		AmountMoney:    sqMoney(params.AmountCents, params.Currency),
		Autocomplete:   sqBool(true),
	}
	if note := strings.TrimSpace(params.Description); note != "" {
		req.Note = sqString(note)
	}

	resp, err := g.sdk.Payments.Create(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "create_charge")
	}

	payment := resp.GetPayment()
	return &Charge{
		ResourceID:              sqStringValue(payment.GetID()),
		Status:                  squareChargeStatus(payment.GetStatus()),
		AmountCents:             sqMoneyAmount(payment.GetAmountMoney()),
		Currency:                sqMoneyCurrency(payment.GetAmountMoney()),
		PaymentMethodResourceID: params.PaymentMethodResourceID,
	}, nil
}

// RefundCharge returns part or all of a completed payment.
func (g *SquareGateway) RefundCharge(ctx context.Context, params RefundChargeParams) (*Refund, error) {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: params.IdempotencyKey,
		PaymentID:      sqString(params.ChargeResourceID),
		AmountMoney:    sqMoney(params.AmountCents, params.Currency),
	}
	if reason := strings.TrimSpace(params.Reason); reason != "" {
		req.Reason = sqString(reason)
	}

	resp, err := g.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "refund_charge")
	}

	rf := resp.GetRefund()
	out := &Refund{
		ResourceID:       rf.GetID(),
		Status:           squareRefundStatus(rf.GetStatus()),
		AmountCents:      sqMoneyAmount(rf.GetAmountMoney()),
		Currency:         sqMoneyCurrency(rf.GetAmountMoney()),
		ChargeResourceID: sqStringValue(rf.GetPaymentID()),
	}
	if out.ChargeResourceID == "" {
		out.ChargeResourceID = params.ChargeResourceID
	}
	return out, nil
}

// CreateCustomer registers a payer at Square.
func (g *SquareGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	req := &sq.CreateCustomerRequest{
		IdempotencyKey: sqString(params.IdempotencyKey),
		ReferenceID:    sqString(params.ReferenceID),
	}

	resp, err := g.sdk.Customers.Create(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "create_customer")
	}
	return &Customer{ResourceID: sqStringValue(resp.GetCustomer().GetID())}, nil
}

// AttachPaymentMethod vaults a tokenized card under a customer.
func (g *SquareGateway) AttachPaymentMethod(ctx context.Context, params AttachPaymentMethodParams) (*PaymentMethod, error) {
	req := &sq.CreateCardRequest{
		IdempotencyKey: params.IdempotencyKey,
		SourceID:       params.Token,
		Card: &sq.Card{
			CustomerID: sqString(params.CustomerResourceID),
		},
	}

	resp, err := g.sdk.Cards.Create(ctx, req)
	if err != nil {
		return nil, g.mapError(err, "attach_payment_method")
	}

	card := resp.GetCard()
	out := &PaymentMethod{
		ResourceID:  sqStringValue(card.GetID()),
		Type:        enums.PaymentMethodTypeCard,
		Last4:       sqStringValue(card.GetLast4()),
		Fingerprint: sqStringValue(card.GetFingerprint()),
	}
	if brand := card.GetCardBrand(); brand != nil {
		out.Brand = string(*brand)
	}
	if m := card.GetExpMonth(); m != nil {
		out.ExpMonth = int(*m)
	}
	if y := card.GetExpYear(); y != nil {
		out.ExpYear = int(*y)
	}
	return out, nil
}

func (g *SquareGateway) mapError(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return newError(KindUnavailable, enums.GatewayKindSquare, "", op, err)
	}

	kind := squareStatusKind(apiErr.StatusCode)
	providerCode := ""
	for _, sqErr := range extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		providerCode = string(sqErr.Code)
		if mapped, ok := squareErrorKind(sqErr); ok {
			kind = mapped
			break
		}
	}

	return newError(kind, enums.GatewayKindSquare, providerCode, op, err)
}

func squareErrorKind(sqErr *sq.Error) (ErrorKind, bool) {
	if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
		return KindIdempotency, true
	}
	if sqErr.Code == sq.ErrorCodeRateLimited {
		return KindRateLimited, true
	}
	if sqErr.Category == sq.ErrorCategoryPaymentMethodError {
		switch sqErr.Code {
		case sq.ErrorCodeCardExpired:
			return KindExpiredCard, true
		case sq.ErrorCodeCvvFailure:
			return KindIncorrectCVC, true
		case sq.ErrorCodeInvalidCard:
			return KindIncorrectNumber, true
		default:
			return KindDeclined, true
		}
	}
	return KindUnhandled, false
}

func squareStatusKind(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= http.StatusInternalServerError:
		return KindUnavailable
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	default:
		return KindUnhandled
	}
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func squareIntent(payment *sq.Payment, sourceID string) *Intent {
	out := &Intent{
		ResourceID:              sqStringValue(payment.GetID()),
		Status:                  squareIntentStatus(payment.GetStatus()),
		AmountCents:             sqMoneyAmount(payment.GetAmountMoney()),
		Currency:                sqMoneyCurrency(payment.GetAmountMoney()),
		PaymentMethodResourceID: sourceID,
	}
	// Square settles the payment itself; the payment id doubles as the
	// charge id once completed.
	out.LatestChargeResourceID = out.ResourceID
	switch out.Status {
	case IntentStatusRequiresCapture:
		out.AmountCapturableCents = out.AmountCents
	case IntentStatusSucceeded:
		out.AmountReceivedCents = out.AmountCents
	}
	return out
}

func squareIntentStatus(status *string) IntentStatus {
	switch sqStringValue(status) {
	case "APPROVED":
		return IntentStatusRequiresCapture
	case "COMPLETED":
		return IntentStatusSucceeded
	case "CANCELED":
		return IntentStatusCanceled
	case "FAILED":
		return IntentStatusFailed
	default:
		return IntentStatusProcessing
	}
}

func squareChargeStatus(status *string) ChargeStatus {
	switch sqStringValue(status) {
	case "COMPLETED":
		return ChargeStatusSucceeded
	case "FAILED", "CANCELED":
		return ChargeStatusFailed
	default:
		return ChargeStatusPending
	}
}

func squareRefundStatus(status *string) RefundStatus {
	switch sqStringValue(status) {
	case "COMPLETED":
		return RefundStatusSucceeded
	case "FAILED", "REJECTED":
		return RefundStatusFailed
	default:
		return RefundStatusPending
	}
}

func sqString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func sqStringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func sqBool(value bool) *bool {
	return &value
}

func sqInt64(value int64) *int64 {
	return &value
}

func sqMoney(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	money := &sq.Money{Amount: sqInt64(amount)}
	trimmed := strings.ToUpper(strings.TrimSpace(currency))
	if trimmed != "" {
		c := sq.Currency(trimmed)
		money.Currency = &c
	}
	return money
}

func sqMoneyAmount(money *sq.Money) int64 {
	if money == nil || money.Amount == nil {
		return 0
	}
	return *money.Amount
}

func sqMoneyCurrency(money *sq.Money) string {
	if money == nil || money.Currency == nil {
		return ""
	}
	return strings.ToLower(string(*money.Currency))
}

func normalizeSquareEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = squareSandboxEnv
	}
	switch env {
	case squareSandboxEnv, squareProductionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
