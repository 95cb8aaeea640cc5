package paymentmethods

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/db"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/gateway"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

const methodsGatewayIDUnique = "payment_methods_gateway_payment_method_id_key"

// VaultInput attaches a gateway-tokenized instrument to a payer's vault.
type VaultInput struct {
	PayerID     uuid.UUID
	Token       string
	MakeDefault bool
}

// Service owns the payment method vault. Resolve is the lookup the payment
// engine uses to turn a caller-supplied reference into a gateway resource id.
type Service interface {
	Vault(ctx context.Context, input VaultInput) (*models.PaymentMethod, error)
	Get(ctx context.Context, payerID, id uuid.UUID) (*models.PaymentMethod, error)
	List(ctx context.Context, payerID uuid.UUID) ([]models.PaymentMethod, error)
	Remove(ctx context.Context, payerID, id uuid.UUID) error
	Resolve(ctx context.Context, payerID uuid.UUID, ref Ref) (*Resolved, error)
}

type customerProvider interface {
	CustomerResourceID(ctx context.Context, payerID uuid.UUID, kind enums.GatewayKind) (string, error)
}

type service struct {
	repo   Repository
	gw     gateway.Gateway
	payers customerProvider
	logg   *logger.Logger
}

// NewService wires the payment method vault.
func NewService(repo Repository, gw gateway.Gateway, payers customerProvider, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if payers == nil {
		return nil, fmt.Errorf("customer provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, gw: gw, payers: payers, logg: logg}, nil
}

func (s *service) Vault(ctx context.Context, input VaultInput) (*models.PaymentMethod, error) {
	if input.PayerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method token is required")
	}

	customerID, err := s.payers.CustomerResourceID(ctx, input.PayerID, s.gw.Kind())
	if err != nil {
		return nil, err
	}

	attached, err := s.gw.AttachPaymentMethod(ctx, gateway.AttachPaymentMethodParams{
		IdempotencyKey:     fmt.Sprintf("%s:method.attach:%s", input.PayerID, token),
		CustomerResourceID: customerID,
		Token:              token,
	})
	if err != nil {
		return nil, gateway.DomainError(err, "attach payment method")
	}

	if input.MakeDefault {
		if err := s.repo.ClearDefault(ctx, input.PayerID); err != nil {
			return nil, err
		}
	}

	method := methodFromGateway(input.PayerID, s.gw.Kind(), attached)
	method.IsDefault = input.MakeDefault
	if err := s.repo.Create(ctx, method); err != nil {
		// The instrument is already vaulted; attaching is idempotent at the
		// gateway, so return the existing row.
		if db.IsUniqueViolation(err, methodsGatewayIDUnique) {
			existing, findErr := s.repo.FindByGatewayID(ctx, attached.ResourceID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil && existing.PayerID != input.PayerID {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment method belongs to another payer")
			}
			return existing, nil
		}
		return nil, err
	}
	return method, nil
}

func (s *service) Get(ctx context.Context, payerID, id uuid.UUID) (*models.PaymentMethod, error) {
	method, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if method == nil || method.PayerID != payerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}
	return method, nil
}

func (s *service) List(ctx context.Context, payerID uuid.UUID) ([]models.PaymentMethod, error) {
	if payerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	return s.repo.ListByPayer(ctx, payerID)
}

func (s *service) Remove(ctx context.Context, payerID, id uuid.UUID) error {
	method, err := s.Get(ctx, payerID, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	method.DeletedAt = &now
	method.IsDefault = false
	return s.repo.Update(ctx, method)
}

// Resolve turns a caller-supplied reference into the gateway resource id the
// payment engine charges against. Vaulted rows are ownership-checked; lookups
// that land on another payer's instrument report not found rather than
// leaking its existence. A gateway id with no local row passes through as a
// one-off token and is ownership-checked by the gateway itself.
func (s *service) Resolve(ctx context.Context, payerID uuid.UUID, ref Ref) (*Resolved, error) {
	if payerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	if !ref.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method reference is invalid")
	}
	value := strings.TrimSpace(ref.Value)

	switch ref.Kind {
	case RefKindID:
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method reference is invalid")
		}
		method, err := s.Get(ctx, payerID, id)
		if err != nil {
			return nil, err
		}
		return resolvedFromModel(method), nil

	case RefKindGatewayID:
		method, err := s.repo.FindByGatewayID(ctx, value)
		if err != nil {
			return nil, err
		}
		if method != nil {
			if method.PayerID != payerID {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
			}
			return resolvedFromModel(method), nil
		}
		return &Resolved{
			PayerID:    payerID,
			Gateway:    s.gw.Kind(),
			ResourceID: value,
		}, nil

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method reference is invalid")
	}
}

func resolvedFromModel(method *models.PaymentMethod) *Resolved {
	return &Resolved{
		PaymentMethodID: method.ID,
		PayerID:         method.PayerID,
		Gateway:         method.Gateway,
		ResourceID:      method.GatewayPaymentMethodID,
	}
}

func methodFromGateway(payerID uuid.UUID, kind enums.GatewayKind, attached *gateway.PaymentMethod) *models.PaymentMethod {
	method := &models.PaymentMethod{
		ID:                     uuid.New(),
		PayerID:                payerID,
		Gateway:                kind,
		GatewayPaymentMethodID: attached.ResourceID,
		Type:                   attached.Type,
	}
	if method.Type == "" {
		method.Type = enums.PaymentMethodTypeCard
	}
	if attached.Fingerprint != "" {
		method.Fingerprint = strPtr(attached.Fingerprint)
	}
	if attached.Brand != "" {
		method.CardBrand = strPtr(attached.Brand)
	}
	if attached.Last4 != "" {
		method.CardLast4 = strPtr(attached.Last4)
	}
	if attached.ExpMonth != 0 {
		method.CardExpMonth = intPtr(attached.ExpMonth)
	}
	if attached.ExpYear != 0 {
		method.CardExpYear = intPtr(attached.ExpYear)
	}
	return method
}

func strPtr(value string) *string { return &value }

func intPtr(value int) *int { return &value }
