package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Order is the buyer/seller-visible unit of sale. Monetary fields are
// fixed at creation in pesewas and never recomputed.
type Order struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber         string               `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID             uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	FarmerID            uuid.UUID            `gorm:"column:farmer_id;type:uuid;not null;index"`
	Status              enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'PENDING'"`
	PaymentStatus       enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'UNPAID'"`
	SubtotalPesewas     int64                `gorm:"column:subtotal_pesewas;not null"`
	PlatformFeePesewas  int64                `gorm:"column:platform_fee_pesewas;not null"`
	DeliveryFeePesewas  int64                `gorm:"column:delivery_fee_pesewas;not null"`
	TotalPesewas        int64                `gorm:"column:total_pesewas;not null"`
	DeliveryMethod      enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null"`
	DeliveryAddress     *string              `gorm:"column:delivery_address"`
	DeliveryNotes       *string              `gorm:"column:delivery_notes"`
	TrackingReference   *string              `gorm:"column:tracking_reference"`
	CourierName         *string              `gorm:"column:courier_name"`
	BuyerPickupConfirm  bool                 `gorm:"column:buyer_pickup_confirm;not null;default:false"`
	FarmerPickupConfirm bool                 `gorm:"column:farmer_pickup_confirm;not null;default:false"`
	ShippedAt           *time.Time           `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time           `gorm:"column:delivered_at"`
	CompletedAt         *time.Time           `gorm:"column:completed_at"`
	CancelledAt         *time.Time           `gorm:"column:cancelled_at"`
	CancellationReason  *string              `gorm:"column:cancellation_reason"`
	Items               []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Escrow              *EscrowTransaction   `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (Order) TableName() string { return "orders" }
