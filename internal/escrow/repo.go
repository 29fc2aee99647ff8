package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an escrow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	var row models.EscrowTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error) {
	var row models.EscrowTransaction
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.EscrowTransaction, error) {
	var row models.EscrowTransaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByTransferReference(ctx context.Context, reference string) (*models.EscrowTransaction, error) {
	var row models.EscrowTransaction
	if err := r.db.WithContext(ctx).Where("transfer_reference = ?", reference).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowTransaction, error) {
	var rows []models.EscrowTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND auto_release_date IS NOT NULL AND auto_release_date <= ?", enums.EscrowStatusHeld, now).
		Order("auto_release_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ClaimTransferReference(ctx context.Context, escrowID uuid.UUID, fromStatus enums.EscrowStatus, reference string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ? AND transfer_reference IS NULL", escrowID, fromStatus).
		Update("transfer_reference", reference)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ReleaseTransferClaim(ctx context.Context, escrowID uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND transfer_reference = ?", escrowID, reference).
		Update("transfer_reference", nil).Error
}

func (r *repository) TransitionUnclaimed(ctx context.Context, escrowID uuid.UUID, from, to enums.EscrowStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ? AND transfer_reference IS NULL", escrowID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateGuarded(ctx context.Context, escrowID uuid.UUID, fromStatus enums.EscrowStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowTransaction{}).
		Where("id = ? AND status = ?", escrowID, fromStatus).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var row models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) UpdateOrderGuarded(ctx context.Context, orderID uuid.UUID, fromStatuses []enums.OrderStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, fromStatuses).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var row models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) SetUserRecipientCode(ctx context.Context, userID uuid.UUID, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("payout_recipient_code", code).Error
}
