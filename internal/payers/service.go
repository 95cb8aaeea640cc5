package payers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/gateway"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

const payersReferenceUnique = "payers_reference_id_key"

// CreateInput registers a payer. ReferenceID is the caller's stable identity
// for the payer (account id, order system id) and deduplicates creates.
type CreateInput struct {
	ReferenceID string
	Country     string
}

// Service owns payer records and their gateway customer linkage. The gateway
// customer is created lazily on first use, not at registration.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Payer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Payer, error)
	GetByReference(ctx context.Context, referenceID string) (*models.Payer, error)
	CustomerResourceID(ctx context.Context, payerID uuid.UUID, kind enums.GatewayKind) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	tx   txRunner
	repo Repository
	gw   gateway.Gateway
	logg *logger.Logger
}

// NewService wires the payer service.
func NewService(tx txRunner, repo Repository, gw gateway.Gateway, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, gw: gw, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Payer, error) {
	reference := strings.TrimSpace(input.ReferenceID)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	country := strings.ToUpper(strings.TrimSpace(input.Country))
	if country == "" {
		country = "US"
	}
	if len(country) != 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "country must be a two letter code")
	}

	existing, err := s.repo.FindByReferenceID(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	payer := &models.Payer{
		ID:          uuid.New(),
		ReferenceID: reference,
		Country:     country,
	}
	if err := s.repo.Create(ctx, payer); err != nil {
		if db.IsUniqueViolation(err, payersReferenceUnique) {
			return s.repo.FindByReferenceID(ctx, reference)
		}
		return nil, err
	}
	return payer, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Payer, error) {
	payer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payer not found")
	}
	return payer, nil
}

func (s *service) GetByReference(ctx context.Context, referenceID string) (*models.Payer, error) {
	payer, err := s.repo.FindByReferenceID(ctx, strings.TrimSpace(referenceID))
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payer not found")
	}
	return payer, nil
}

// CustomerResourceID returns the gateway customer id for the payer, creating
// the customer at the gateway on first use. The creation key is derived from
// the payer id so a crashed first attempt replays onto the same customer.
func (s *service) CustomerResourceID(ctx context.Context, payerID uuid.UUID, kind enums.GatewayKind) (string, error) {
	if !kind.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown gateway %q", kind))
	}

	payer, err := s.Get(ctx, payerID)
	if err != nil {
		return "", err
	}
	if id := customerIDFor(payer, kind); id != "" {
		return id, nil
	}

	customer, err := s.gw.CreateCustomer(ctx, gateway.CreateCustomerParams{
		IdempotencyKey: fmt.Sprintf("%s:customer.create:%s", payer.ID, kind),
		ReferenceID:    payer.ReferenceID,
		Country:        payer.Country,
	})
	if err != nil {
		return "", gateway.DomainError(err, "create customer")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, payer.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payer not found")
		}
		// A concurrent caller may have linked a customer first; the earlier
		// write wins and our gateway customer is abandoned.
		if id := customerIDFor(current, kind); id != "" {
			payer = current
			return nil
		}
		setCustomerID(current, kind, customer.ResourceID)
		if err := repo.Update(ctx, current); err != nil {
			return err
		}
		payer = current
		return nil
	})
	if err != nil {
		return "", err
	}
	return customerIDFor(payer, kind), nil
}

func customerIDFor(payer *models.Payer, kind enums.GatewayKind) string {
	switch kind {
	case enums.GatewayKindStripe:
		if payer.StripeCustomerID != nil {
			return *payer.StripeCustomerID
		}
	case enums.GatewayKindSquare:
		if payer.SquareCustomerID != nil {
			return *payer.SquareCustomerID
		}
	}
	return ""
}

func setCustomerID(payer *models.Payer, kind enums.GatewayKind, resourceID string) {
	switch kind {
	case enums.GatewayKindStripe:
		payer.StripeCustomerID = &resourceID
	case enums.GatewayKindSquare:
		payer.SquareCustomerID = &resourceID
	}
}
