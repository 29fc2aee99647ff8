package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots product name, unit, and price at checkout time.
// Immutable after creation; later catalog edits never touch it.
type OrderItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName      string    `gorm:"column:product_name;not null"`
	Unit             string    `gorm:"column:unit;not null"`
	Quantity         int64     `gorm:"column:quantity;not null"`
	UnitPricePesewas int64     `gorm:"column:unit_price_pesewas;not null"`
	LineTotalPesewas int64     `gorm:"column:line_total_pesewas;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralisation.
func (OrderItem) TableName() string { return "order_items" }
