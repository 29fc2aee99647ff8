package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	"github.com/kwabenaosei/agritrade-backend/pkg/pagination"
)

// ListFilter narrows a listing to one party and optionally one status.
type ListFilter struct {
	BuyerID  *uuid.UUID
	FarmerID *uuid.UUID
	Status   *enums.OrderStatus
	Since    *time.Time
}

// Repository is the persistence boundary for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, int64, error)
	UpdateGuarded(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindEscrowByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error)
}
