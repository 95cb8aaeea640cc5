package cartpayment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cartpay-io/cartpay-backend/pkg/db"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/pagination"
)

// Repository persists the cart payment aggregate: the payment row, its
// intents, charges, refunds, the gateway mirrors, and the adjustment history.
// Find methods return (nil, nil) when the row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCartPayment(ctx context.Context, payment *models.CartPayment) error
	UpdateCartPayment(ctx context.Context, payment *models.CartPayment) error
	FindCartPaymentByID(ctx context.Context, id uuid.UUID) (*models.CartPayment, error)
	FindCartPaymentByPayerAndKey(ctx context.Context, payerID uuid.UUID, idempotencyKey string) (*models.CartPayment, error)
	ListCartPayments(ctx context.Context, payerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.CartPayment, error)

	CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	UpdatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	FindLatestIntent(ctx context.Context, cartPaymentID uuid.UUID) (*models.PaymentIntent, error)
	LockPaymentIntent(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	DueForCapture(ctx context.Context, before time.Time, limit int) ([]models.PaymentIntent, error)

	UpsertGatewayIntent(ctx context.Context, mirror *models.GatewayPaymentIntent) error
	FindGatewayIntent(ctx context.Context, paymentIntentID uuid.UUID) (*models.GatewayPaymentIntent, error)

	CreateCharge(ctx context.Context, charge *models.Charge) error
	UpdateCharge(ctx context.Context, charge *models.Charge) error
	FindChargesByIntent(ctx context.Context, paymentIntentID uuid.UUID) ([]models.Charge, error)
	CreateGatewayCharge(ctx context.Context, mirror *models.GatewayCharge) error
	FindGatewayCharge(ctx context.Context, chargeID uuid.UUID) (*models.GatewayCharge, error)

	CreateRefund(ctx context.Context, refund *models.Refund) error
	CountRefundsForCharge(ctx context.Context, chargeID uuid.UUID) (int64, error)
	CreateGatewayRefund(ctx context.Context, mirror *models.GatewayRefund) error

	CreateAdjustment(ctx context.Context, adjustment *models.PaymentAdjustment) error
	FindAdjustmentByKey(ctx context.Context, idempotencyKey string) (*models.PaymentAdjustment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart payment repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCartPayment(ctx context.Context, payment *models.CartPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) UpdateCartPayment(ctx context.Context, payment *models.CartPayment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) FindCartPaymentByID(ctx context.Context, id uuid.UUID) (*models.CartPayment, error) {
	var payment models.CartPayment
	err := r.db.WithContext(ctx).
		Preload("Intents", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindCartPaymentByPayerAndKey(ctx context.Context, payerID uuid.UUID, idempotencyKey string) (*models.CartPayment, error) {
	var payment models.CartPayment
	err := r.db.WithContext(ctx).
		Preload("Intents", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Where("payer_id = ? AND idempotency_key = ? AND deleted_at IS NULL", payerID, idempotencyKey).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListCartPayments(ctx context.Context, payerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.CartPayment, error) {
	query := r.db.WithContext(ctx).
		Where("payer_id = ? AND deleted_at IS NULL", payerID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var payments []models.CartPayment
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) UpdatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

func (r *repository) FindLatestIntent(ctx context.Context, cartPaymentID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("cart_payment_id = ?", cartPaymentID).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// LockPaymentIntent reads the intent under a row-level write lock. NOWAIT
// makes a second mutator fail fast instead of queuing; the lock error is
// translated into the retryable concurrent-access code. sqlite (tests) has
// no row locks, so the clause is applied on postgres only.
func (r *repository) LockPaymentIntent(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"})
	}

	var intent models.PaymentIntent
	err := query.Where("id = ?", id).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if db.IsLockNotAvailable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrentAccess, err, "payment intent is locked by another mutation")
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) DueForCapture(ctx context.Context, before time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.IntentStatusRequiresCapture).
		Where("capture_after IS NOT NULL AND capture_after <= ?", before).
		Order("capture_after ASC").
		Limit(limit).
		Find(&intents).Error
	if err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) UpsertGatewayIntent(ctx context.Context, mirror *models.GatewayPaymentIntent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_intent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"amount_cents",
			"amount_capturable_cents",
			"amount_received_cents",
			"payment_method_resource_id",
			"updated_at",
		}),
	}).Create(mirror).Error
}

func (r *repository) FindGatewayIntent(ctx context.Context, paymentIntentID uuid.UUID) (*models.GatewayPaymentIntent, error) {
	var mirror models.GatewayPaymentIntent
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&mirror).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mirror, nil
}

func (r *repository) CreateCharge(ctx context.Context, charge *models.Charge) error {
	return r.db.WithContext(ctx).Create(charge).Error
}

func (r *repository) UpdateCharge(ctx context.Context, charge *models.Charge) error {
	return r.db.WithContext(ctx).Save(charge).Error
}

func (r *repository) FindChargesByIntent(ctx context.Context, paymentIntentID uuid.UUID) ([]models.Charge, error) {
	var charges []models.Charge
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at ASC").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repository) CreateGatewayCharge(ctx context.Context, mirror *models.GatewayCharge) error {
	return r.db.WithContext(ctx).Create(mirror).Error
}

func (r *repository) FindGatewayCharge(ctx context.Context, chargeID uuid.UUID) (*models.GatewayCharge, error) {
	var mirror models.GatewayCharge
	err := r.db.WithContext(ctx).
		Where("charge_id = ?", chargeID).
		First(&mirror).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mirror, nil
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) CountRefundsForCharge(ctx context.Context, chargeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("charge_id = ?", chargeID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CreateGatewayRefund(ctx context.Context, mirror *models.GatewayRefund) error {
	return r.db.WithContext(ctx).Create(mirror).Error
}

func (r *repository) CreateAdjustment(ctx context.Context, adjustment *models.PaymentAdjustment) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

func (r *repository) FindAdjustmentByKey(ctx context.Context, idempotencyKey string) (*models.PaymentAdjustment, error) {
	var adjustment models.PaymentAdjustment
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&adjustment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &adjustment, nil
}
