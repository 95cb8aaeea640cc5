package payers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
)

// Repository persists payer rows and their gateway customer linkage. Find
// methods return (nil, nil) when the row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, payer *models.Payer) error
	Update(ctx context.Context, payer *models.Payer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payer, error)
	FindByReferenceID(ctx context.Context, referenceID string) (*models.Payer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payer repository bound to the provided DB.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payer *models.Payer) error {
	return r.db.WithContext(ctx).Create(payer).Error
}

func (r *repository) Update(ctx context.Context, payer *models.Payer) error {
	return r.db.WithContext(ctx).Save(payer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payer, error) {
	var payer models.Payer
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payer, nil
}

func (r *repository) FindByReferenceID(ctx context.Context, referenceID string) (*models.Payer, error) {
	var payer models.Payer
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		First(&payer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payer, nil
}
