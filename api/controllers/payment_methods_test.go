package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
)

type stubPaymentMethodService struct {
	method    *models.PaymentMethod
	methods   []models.PaymentMethod
	err       error
	lastVault paymentmethods.VaultInput
	removed   []uuid.UUID
}

func (s *stubPaymentMethodService) Vault(ctx context.Context, input paymentmethods.VaultInput) (*models.PaymentMethod, error) {
	s.lastVault = input
	return s.method, s.err
}

func (s *stubPaymentMethodService) Get(ctx context.Context, payerID, id uuid.UUID) (*models.PaymentMethod, error) {
	return s.method, s.err
}

func (s *stubPaymentMethodService) List(ctx context.Context, payerID uuid.UUID) ([]models.PaymentMethod, error) {
	return s.methods, s.err
}

func (s *stubPaymentMethodService) Remove(ctx context.Context, payerID, id uuid.UUID) error {
	s.removed = append(s.removed, id)
	return s.err
}

func (s *stubPaymentMethodService) Resolve(ctx context.Context, payerID uuid.UUID, ref paymentmethods.Ref) (*paymentmethods.Resolved, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func sampleMethod() *models.PaymentMethod {
	brand := "visa"
	last4 := "4242"
	return &models.PaymentMethod{
		ID:                     uuid.New(),
		PayerID:                uuid.New(),
		Gateway:                enums.GatewayKindStripe,
		GatewayPaymentMethodID: "pm_123",
		Type:                   enums.PaymentMethodTypeCard,
		CardBrand:              &brand,
		CardLast4:              &last4,
		IsDefault:              true,
	}
}

func TestPaymentMethodVaultSuccess(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentMethodService{method: sampleMethod()}
	payerID := uuid.New()
	body := `{"payer_id": "` + payerID.String() + `", "token": "pm_123", "make_default": true}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-methods", strings.NewReader(body))
	rec := httptest.NewRecorder()
	PaymentMethodVault(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastVault.PayerID != payerID || svc.lastVault.Token != "pm_123" || !svc.lastVault.MakeDefault {
		t.Fatalf("vault input not forwarded: %+v", svc.lastVault)
	}

	var envelope struct {
		Data paymentMethodResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.CardLast4 == nil || *envelope.Data.CardLast4 != "4242" {
		t.Fatalf("expected card metadata in response, got %+v", envelope.Data)
	}
}

func TestPaymentMethodListRequiresPayerID(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentMethodService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-methods", nil)
	rec := httptest.NewRecorder()
	PaymentMethodList(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without payer_id, got %d", rec.Code)
	}
}

func TestPaymentMethodRemoveForwardsIDs(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentMethodService{}
	payerID := uuid.New()
	methodID := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/payment-methods/"+methodID.String()+"?payer_id="+payerID.String(), nil)
	req = withURLParam(req, "paymentMethodID", methodID.String())
	rec := httptest.NewRecorder()
	PaymentMethodRemove(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.removed) != 1 || svc.removed[0] != methodID {
		t.Fatalf("method id not forwarded: %+v", svc.removed)
	}
}

func TestPaymentMethodGetOwnershipError(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentMethodService{err: pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")}
	payerID := uuid.New()
	methodID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-methods/"+methodID.String()+"?payer_id="+payerID.String(), nil)
	req = withURLParam(req, "paymentMethodID", methodID.String())
	rec := httptest.NewRecorder()
	PaymentMethodGet(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
