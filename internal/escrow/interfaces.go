package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// Repository defines persistence operations for escrow settlement.
// Order and user rows are touched here too because escrow transitions
// move them in the same transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error)
	FindByReference(ctx context.Context, reference string) (*models.EscrowTransaction, error)
	FindByTransferReference(ctx context.Context, reference string) (*models.EscrowTransaction, error)
	FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowTransaction, error)
	// ClaimTransferReference atomically stamps a settlement reference onto
	// an escrow that has none yet and is still in fromStatus. Returns false
	// when another caller won the claim or the escrow moved on. Every path
	// that sends money to the gateway must hold this claim first.
	ClaimTransferReference(ctx context.Context, escrowID uuid.UUID, fromStatus enums.EscrowStatus, reference string) (bool, error)
	// ReleaseTransferClaim clears a stamped reference after the gateway
	// definitively rejected the settlement, so disputes and retries are
	// not blocked by a claim that moved no money.
	ReleaseTransferClaim(ctx context.Context, escrowID uuid.UUID, reference string) error
	// UpdateGuarded applies updates only while the escrow is still in
	// fromStatus, returning the number of rows moved.
	UpdateGuarded(ctx context.Context, escrowID uuid.UUID, fromStatus enums.EscrowStatus, updates map[string]any) (int64, error)
	// TransitionUnclaimed moves the status only while no settlement claim
	// is stamped on the row, so disputes cannot flip an escrow out from
	// under an in-flight transfer or refund.
	TransitionUnclaimed(ctx context.Context, escrowID uuid.UUID, from, to enums.EscrowStatus) (int64, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	// UpdateOrderGuarded applies updates only while the order sits in one
	// of fromStatuses, returning the number of rows moved.
	UpdateOrderGuarded(ctx context.Context, orderID uuid.UUID, fromStatuses []enums.OrderStatus, updates map[string]any) (int64, error)
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	SetUserRecipientCode(ctx context.Context, userID uuid.UUID, code string) error
}
