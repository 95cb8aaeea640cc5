package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/internal/payers"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
)

type stubPayerService struct {
	payer      *models.Payer
	err        error
	lastCreate payers.CreateInput
}

func (s *stubPayerService) Create(ctx context.Context, input payers.CreateInput) (*models.Payer, error) {
	s.lastCreate = input
	return s.payer, s.err
}

func (s *stubPayerService) Get(ctx context.Context, id uuid.UUID) (*models.Payer, error) {
	return s.payer, s.err
}

func (s *stubPayerService) GetByReference(ctx context.Context, referenceID string) (*models.Payer, error) {
	return s.payer, s.err
}

func (s *stubPayerService) CustomerResourceID(ctx context.Context, payerID uuid.UUID, kind enums.GatewayKind) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func TestPayerCreateSuccess(t *testing.T) {
	t.Parallel()

	svc := &stubPayerService{payer: &models.Payer{ID: uuid.New(), ReferenceID: "acct-9", Country: "US"}}
	body := `{"reference_id": "acct-9", "country": "us"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	PayerCreate(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastCreate.ReferenceID != "acct-9" {
		t.Fatalf("reference id not forwarded: %+v", svc.lastCreate)
	}

	var envelope struct {
		Data payerResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ReferenceID != "acct-9" {
		t.Fatalf("expected reference id in response, got %+v", envelope.Data)
	}
}

func TestPayerCreateRequiresReference(t *testing.T) {
	t.Parallel()

	svc := &stubPayerService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payers", strings.NewReader(`{"country": "US"}`))
	rec := httptest.NewRecorder()
	PayerCreate(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestPayerGetNotFound(t *testing.T) {
	t.Parallel()

	svc := &stubPayerService{err: pkgerrors.New(pkgerrors.CodeNotFound, "payer not found")}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payers/"+id.String(), nil)
	req = withURLParam(req, "payerID", id.String())
	rec := httptest.NewRecorder()
	PayerGet(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
