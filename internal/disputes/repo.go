package disputes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
)

// Repository persists dispute annotations and resolves the gateway charge
// mirror a webhook event references. Find methods return (nil, nil) when the
// row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindGatewayChargeByResourceID(ctx context.Context, resourceID string) (*models.GatewayCharge, error)
	UpsertDispute(ctx context.Context, dispute *models.Dispute) error
	FindByGatewayDisputeID(ctx context.Context, gatewayDisputeID string) (*models.Dispute, error)
	ListByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Dispute, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a dispute repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindGatewayChargeByResourceID(ctx context.Context, resourceID string) (*models.GatewayCharge, error) {
	var mirror models.GatewayCharge
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		First(&mirror).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mirror, nil
}

// UpsertDispute writes the dispute keyed by the gateway's dispute id so a
// redelivered or updated webhook event lands on the same row.
func (r *repository) UpsertDispute(ctx context.Context, dispute *models.Dispute) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "gateway_dispute_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount_cents", "currency", "reason", "status", "updated_at",
			}),
		}).
		Create(dispute).Error
}

func (r *repository) FindByGatewayDisputeID(ctx context.Context, gatewayDisputeID string) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("gateway_dispute_id = ?", gatewayDisputeID).
		First(&dispute).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) ListByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.WithContext(ctx).
		Where("charge_id = ?", chargeID).
		Order("created_at ASC").
		Find(&disputes).Error
	if err != nil {
		return nil, err
	}
	return disputes, nil
}
