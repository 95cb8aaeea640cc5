package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// GatewayCharge mirrors the gateway's charge record. The resource id is the
// lookup key when an out-of-band dispute event references a gateway charge.
type GatewayCharge struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChargeID    uuid.UUID         `gorm:"column:charge_id;type:uuid;not null;unique"`
	Gateway     enums.GatewayKind `gorm:"column:gateway;type:gateway_kind;not null"`
	ResourceID  string            `gorm:"column:resource_id;not null;unique"`
	Status      string            `gorm:"column:status;not null"`
	AmountCents int64             `gorm:"column:amount_cents;not null"`
	Currency    string            `gorm:"column:currency;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
