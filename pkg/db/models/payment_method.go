package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/pkg/enums"
)

// PaymentMethod mirrors a gateway-vaulted payment instrument per payer.
type PaymentMethod struct {
	ID                     uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayerID                uuid.UUID               `gorm:"column:payer_id;type:uuid;not null;index"`
	Gateway                enums.GatewayKind       `gorm:"column:gateway;type:gateway_kind;not null"`
	GatewayPaymentMethodID string                  `gorm:"column:gateway_payment_method_id;not null;unique"`
	Type                   enums.PaymentMethodType `gorm:"column:type;type:payment_method_type;not null;default:'card'"`
	Fingerprint            *string                 `gorm:"column:fingerprint"`
	CardBrand              *string                 `gorm:"column:card_brand"`
	CardLast4              *string                 `gorm:"column:card_last4"`
	CardExpMonth           *int                    `gorm:"column:card_exp_month"`
	CardExpYear            *int                    `gorm:"column:card_exp_year"`
	BillingDetails         json.RawMessage         `gorm:"column:billing_details;type:jsonb"`
	Metadata               json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	IsDefault              bool                    `gorm:"column:is_default;not null;default:false"`
	CreatedAt              time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt              *time.Time              `gorm:"column:deleted_at"`
}
