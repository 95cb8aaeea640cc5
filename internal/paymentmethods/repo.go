package paymentmethods

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
)

// Repository persists vaulted payment methods. Find methods return (nil, nil)
// when the row does not exist; soft-deleted rows are excluded.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, method *models.PaymentMethod) error
	Update(ctx context.Context, method *models.PaymentMethod) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
	FindByGatewayID(ctx context.Context, gatewayPaymentMethodID string) (*models.PaymentMethod, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID) ([]models.PaymentMethod, error)
	ClearDefault(ctx context.Context, payerID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment method repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(method).Error
}

func (r *repository) Update(ctx context.Context, method *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Save(method).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repository) FindByGatewayID(ctx context.Context, gatewayPaymentMethodID string) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("gateway_payment_method_id = ? AND deleted_at IS NULL", gatewayPaymentMethodID).
		First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repository) ListByPayer(ctx context.Context, payerID uuid.UUID) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("payer_id = ? AND deleted_at IS NULL", payerID).
		Order("created_at DESC, id DESC").
		Find(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repository) ClearDefault(ctx context.Context, payerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("payer_id = ? AND is_default = ? AND deleted_at IS NULL", payerID, true).
		Update("is_default", false).Error
}
