package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// EscrowTransaction owns the money for exactly one order: the amount
// held, the platform's cut, and the seller payout. Amounts in pesewas.
type EscrowTransaction struct {
	ID                    uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	BuyerID               uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null"`
	FarmerID              uuid.UUID          `gorm:"column:farmer_id;type:uuid;not null"`
	Reference             string             `gorm:"column:reference;not null;uniqueIndex"`
	PaystackReference     *string            `gorm:"column:paystack_reference;uniqueIndex"`
	AmountPesewas         int64              `gorm:"column:amount_pesewas;not null"`
	PlatformFeePesewas    int64              `gorm:"column:platform_fee_pesewas;not null"`
	SellerPayoutPesewas   int64              `gorm:"column:seller_payout_pesewas;not null"`
	DeliveryFeePesewas    int64              `gorm:"column:delivery_fee_pesewas;not null;default:0"`
	RefundedAmountPesewas int64              `gorm:"column:refunded_amount_pesewas;not null;default:0"`
	Status                enums.EscrowStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	TransferReference     *string            `gorm:"column:transfer_reference;uniqueIndex"`
	TransferCode          *string            `gorm:"column:transfer_code"`
	AutoReleaseDate       *time.Time         `gorm:"column:auto_release_date;index"`
	DisputeDeadline       *time.Time         `gorm:"column:dispute_deadline"`
	PaidAt                *time.Time         `gorm:"column:paid_at"`
	ReleasedAt            *time.Time         `gorm:"column:released_at"`
	RefundedAt            *time.Time         `gorm:"column:refunded_at"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (EscrowTransaction) TableName() string { return "escrow_transactions" }
