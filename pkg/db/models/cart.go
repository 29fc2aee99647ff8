package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Cart holds a buyer's open selection against a single farmer.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID   uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;index"`
	FarmerID  uuid.UUID        `gorm:"column:farmer_id;type:uuid;not null"`
	Status    enums.CartStatus `gorm:"column:status;type:text;not null;default:'ACTIVE'"`
	ExpiresAt time.Time        `gorm:"column:expires_at;not null"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (Cart) TableName() string { return "carts" }
