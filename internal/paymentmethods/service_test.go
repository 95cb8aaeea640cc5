package paymentmethods

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/gateway"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

func newTestService(t *testing.T, repo *stubRepo, gw *stubGateway) Service {
	t.Helper()
	svc, err := NewService(repo, gw, stubCustomers{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestVaultAttachesAndPersistsCardMetadata(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	gw := &stubGateway{}
	svc := newTestService(t, repo, gw)

	method, err := svc.Vault(context.Background(), VaultInput{PayerID: uuid.New(), Token: "tok_visa", MakeDefault: true})
	if err != nil {
		t.Fatalf("vault: %v", err)
	}

	if gw.attachCalls != 1 {
		t.Fatalf("attach calls = %d, want 1", gw.attachCalls)
	}
	if method.GatewayPaymentMethodID != "pm_1" {
		t.Fatalf("gateway id = %s, want pm_1", method.GatewayPaymentMethodID)
	}
	if method.CardBrand == nil || *method.CardBrand != "visa" {
		t.Fatalf("card brand = %v, want visa", method.CardBrand)
	}
	if method.CardLast4 == nil || *method.CardLast4 != "4242" {
		t.Fatalf("card last4 = %v, want 4242", method.CardLast4)
	}
	if !method.IsDefault {
		t.Fatal("method must be marked default")
	}
}

func TestResolveLocalIDChecksOwnership(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, &stubGateway{})
	owner := uuid.New()
	method := repo.seed(owner, "pm_1")

	resolved, err := svc.Resolve(context.Background(), owner, Ref{Kind: RefKindID, Value: method.ID.String()})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResourceID != "pm_1" || resolved.PaymentMethodID != method.ID {
		t.Fatalf("resolved = %+v", resolved)
	}

	// Another payer resolving the same id must not learn the row exists.
	_, err = svc.Resolve(context.Background(), uuid.New(), Ref{Kind: RefKindID, Value: method.ID.String()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestResolveGatewayIDChecksOwnershipWhenVaulted(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, &stubGateway{})
	owner := uuid.New()
	repo.seed(owner, "pm_1")

	_, err := svc.Resolve(context.Background(), uuid.New(), Ref{Kind: RefKindGatewayID, Value: "pm_1"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestResolveGatewayIDPassesThroughUnvaultedToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newStubRepo(), &stubGateway{})
	payerID := uuid.New()

	resolved, err := svc.Resolve(context.Background(), payerID, Ref{Kind: RefKindGatewayID, Value: "pm_oneoff"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResourceID != "pm_oneoff" || resolved.PayerID != payerID {
		t.Fatalf("resolved = %+v", resolved)
	}
	if resolved.PaymentMethodID != uuid.Nil {
		t.Fatal("one-off tokens have no local row")
	}
}

func TestResolveRejectsMalformedRefs(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newStubRepo(), &stubGateway{})
	cases := []Ref{
		{Kind: RefKindID, Value: "not-a-uuid"},
		{Kind: RefKindGatewayID, Value: "  "},
		{Kind: RefKind("card_number"), Value: "pm_1"},
	}
	for _, ref := range cases {
		_, err := svc.Resolve(context.Background(), uuid.New(), ref)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("ref %+v: err = %v, want VALIDATION_ERROR", ref, err)
		}
	}
}

func TestRemoveSoftDeletes(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, &stubGateway{})
	owner := uuid.New()
	method := repo.seed(owner, "pm_1")

	if err := svc.Remove(context.Background(), owner, method.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if method.DeletedAt == nil {
		t.Fatal("remove must soft delete")
	}

	_, err := svc.Resolve(context.Background(), owner, Ref{Kind: RefKindID, Value: method.ID.String()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND after delete", err)
	}
}

// ---- stubs ----

type stubCustomers struct{}

func (stubCustomers) CustomerResourceID(ctx context.Context, payerID uuid.UUID, kind enums.GatewayKind) (string, error) {
	return "cus_test", nil
}

type stubRepo struct {
	methods map[uuid.UUID]*models.PaymentMethod
}

func newStubRepo() *stubRepo {
	return &stubRepo{methods: map[uuid.UUID]*models.PaymentMethod{}}
}

func (r *stubRepo) seed(payerID uuid.UUID, gatewayID string) *models.PaymentMethod {
	method := &models.PaymentMethod{
		ID:                     uuid.New(),
		PayerID:                payerID,
		Gateway:                enums.GatewayKindStripe,
		GatewayPaymentMethodID: gatewayID,
		Type:                   enums.PaymentMethodTypeCard,
	}
	r.methods[method.ID] = method
	return method
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubRepo) Create(ctx context.Context, method *models.PaymentMethod) error {
	r.methods[method.ID] = method
	return nil
}

func (r *stubRepo) Update(ctx context.Context, method *models.PaymentMethod) error {
	r.methods[method.ID] = method
	return nil
}

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	method, ok := r.methods[id]
	if !ok || method.DeletedAt != nil {
		return nil, nil
	}
	return method, nil
}

func (r *stubRepo) FindByGatewayID(ctx context.Context, gatewayPaymentMethodID string) (*models.PaymentMethod, error) {
	for _, method := range r.methods {
		if method.GatewayPaymentMethodID == gatewayPaymentMethodID && method.DeletedAt == nil {
			return method, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListByPayer(ctx context.Context, payerID uuid.UUID) ([]models.PaymentMethod, error) {
	var out []models.PaymentMethod
	for _, method := range r.methods {
		if method.PayerID == payerID && method.DeletedAt == nil {
			out = append(out, *method)
		}
	}
	return out, nil
}

func (r *stubRepo) ClearDefault(ctx context.Context, payerID uuid.UUID) error {
	for _, method := range r.methods {
		if method.PayerID == payerID {
			method.IsDefault = false
		}
	}
	return nil
}

type stubGateway struct {
	attachCalls int
	attachErr   error
}

func (g *stubGateway) Kind() enums.GatewayKind { return enums.GatewayKindStripe }

func (g *stubGateway) AttachPaymentMethod(ctx context.Context, params gateway.AttachPaymentMethodParams) (*gateway.PaymentMethod, error) {
	g.attachCalls++
	if g.attachErr != nil {
		return nil, g.attachErr
	}
	return &gateway.PaymentMethod{
		ResourceID:  "pm_1",
		Type:        enums.PaymentMethodTypeCard,
		Brand:       "visa",
		Last4:       "4242",
		ExpMonth:    12,
		ExpYear:     2030,
		Fingerprint: "fp_1",
	}, nil
}

func (g *stubGateway) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	return nil, nil
}

func (g *stubGateway) CaptureIntent(ctx context.Context, params gateway.CaptureIntentParams) (*gateway.Intent, error) {
	return nil, nil
}

func (g *stubGateway) CancelIntent(ctx context.Context, params gateway.CancelIntentParams) (*gateway.Intent, error) {
	return nil, nil
}

func (g *stubGateway) UpdateIntentAmount(ctx context.Context, params gateway.UpdateIntentAmountParams) (*gateway.Intent, error) {
	return nil, nil
}

func (g *stubGateway) CreateCharge(ctx context.Context, params gateway.CreateChargeParams) (*gateway.Charge, error) {
	return nil, nil
}

func (g *stubGateway) RefundCharge(ctx context.Context, params gateway.RefundChargeParams) (*gateway.Refund, error) {
	return nil, nil
}

func (g *stubGateway) CreateCustomer(ctx context.Context, params gateway.CreateCustomerParams) (*gateway.Customer, error) {
	return nil, nil
}
