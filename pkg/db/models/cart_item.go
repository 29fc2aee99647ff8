package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one product line inside a cart. The unit price is
// snapshotted at add time and refreshed on quantity updates.
type CartItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product"`
	ProductID        uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product"`
	Quantity         int64     `gorm:"column:quantity;not null"`
	UnitPricePesewas int64     `gorm:"column:unit_price_pesewas;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (CartItem) TableName() string { return "cart_items" }
