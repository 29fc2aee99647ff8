package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Repository defines persistence operations for carts and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	FindByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	// RetireExpired flips the buyer's lapsed ACTIVE cart to EXPIRED so a
	// fresh cart can take the one-active-cart slot.
	RetireExpired(ctx context.Context, buyerID uuid.UUID, now time.Time) error
	UpdateStatus(ctx context.Context, cartID uuid.UUID, status enums.CartStatus) error
	TouchExpiry(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
	FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	UpsertItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	CountItems(ctx context.Context, cartID uuid.UUID) (int64, error)
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}
