package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	"github.com/kwabenaosei/agritrade-backend/pkg/pagination"
)

// ListFilter narrows a dispute listing.
type ListFilter struct {
	Status  *enums.DisputeStatus
	OrderID *uuid.UUID
}

// Repository is the persistence boundary for disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error)
	FindActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Update(ctx context.Context, disputeID uuid.UUID, updates map[string]any) error
	UpdateGuarded(ctx context.Context, disputeID uuid.UUID, from []enums.DisputeStatus, updates map[string]any) (int64, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Dispute, int64, error)

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrderGuarded(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error)
	FindEscrowByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error)
}
