package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Dispute lets a buyer contest an order while its escrow is held.
type Dispute struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	EscrowID             uuid.UUID                `gorm:"column:escrow_id;type:uuid;not null;index"`
	OrderID              uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	RaisedByUserID       uuid.UUID                `gorm:"column:raised_by_user_id;type:uuid;not null"`
	Reason               string                   `gorm:"column:reason;not null"`
	EvidenceURLs         pq.StringArray           `gorm:"column:evidence_urls;type:text[]"`
	SellerResponse       *string                  `gorm:"column:seller_response"`
	Status               enums.DisputeStatus      `gorm:"column:status;type:text;not null;default:'OPEN'"`
	Resolution           *enums.DisputeResolution `gorm:"column:resolution;type:text"`
	ResolutionNotes      *string                  `gorm:"column:resolution_notes"`
	RefundAmountPesewas  *int64                   `gorm:"column:refund_amount_pesewas"`
	ResolvedByAdminID    *uuid.UUID               `gorm:"column:resolved_by_admin_id;type:uuid"`
	ResolvedAt           *time.Time               `gorm:"column:resolved_at"`
	SellerRespondedAt    *time.Time               `gorm:"column:seller_responded_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (Dispute) TableName() string { return "disputes" }
