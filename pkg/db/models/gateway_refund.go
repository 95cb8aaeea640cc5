package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// GatewayRefund mirrors the gateway's refund record.
type GatewayRefund struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RefundID    uuid.UUID         `gorm:"column:refund_id;type:uuid;not null;unique"`
	Gateway     enums.GatewayKind `gorm:"column:gateway;type:gateway_kind;not null"`
	ResourceID  string            `gorm:"column:resource_id;not null;unique"`
	Status      string            `gorm:"column:status;not null"`
	AmountCents int64             `gorm:"column:amount_cents;not null"`
	Currency    string            `gorm:"column:currency;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
