package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Product is a farmer's listed produce. Prices are stored in pesewas.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FarmerID          uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null;index"`
	Name              string              `gorm:"column:name;not null"`
	Description       *string             `gorm:"column:description"`
	Category          string              `gorm:"column:category;not null"`
	Unit              string              `gorm:"column:unit;not null"`
	UnitPricePesewas  int64               `gorm:"column:unit_price_pesewas;not null"`
	QuantityAvailable int64               `gorm:"column:quantity_available;not null"`
	MinimumOrderQty   int64               `gorm:"column:minimum_order_qty;not null;default:1"`
	Status            enums.ProductStatus `gorm:"column:status;type:text;not null;default:'AVAILABLE'"`
	Region            *string             `gorm:"column:region"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (Product) TableName() string { return "products" }
