// Package reservation holds the atomic stock mutation used at checkout.
// Decrements are guarded in SQL so two concurrent checkouts can never
// oversell a product.
package reservation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
)

// StockReservationRequest asks for qty units of a product.
type StockReservationRequest struct {
	CartItemID uuid.UUID
	ProductID  uuid.UUID
	Qty        int64
}

// StockReservationResult reports the per-line outcome. Reason is empty
// when Reserved is true.
type StockReservationResult struct {
	CartItemID uuid.UUID
	ProductID  uuid.UUID
	Reserved   bool
	Reason     string
}

// ReserveStock decrements available quantity for each request inside
// the caller's transaction. A line fails (without aborting the others)
// when the product is missing, unavailable, or short on stock; the
// caller decides whether any failure rolls back the transaction.
func ReserveStock(ctx context.Context, tx *gorm.DB, requests []StockReservationRequest) ([]StockReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
		}
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
	}

	results := make([]StockReservationResult, 0, len(requests))
	for _, req := range requests {
		result := StockReservationResult{CartItemID: req.CartItemID, ProductID: req.ProductID}

		res := tx.WithContext(ctx).Exec(
			`UPDATE products
			    SET quantity_available = quantity_available - ?
			  WHERE id = ? AND status = ? AND quantity_available >= ?`,
			req.Qty, req.ProductID, enums.ProductStatusAvailable, req.Qty,
		)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			result.Reason = diagnoseFailure(ctx, tx, req)
		} else {
			result.Reserved = true
		}
		results = append(results, result)
	}
	return results, nil
}

// ReleaseStock returns previously reserved units, used when a
// pre-payment order is cancelled.
func ReleaseStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int64) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release qty must be positive")
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE products SET quantity_available = quantity_available + ? WHERE id = ?`,
		qty, productID,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func diagnoseFailure(ctx context.Context, tx *gorm.DB, req StockReservationRequest) string {
	var row struct {
		Status            enums.ProductStatus
		QuantityAvailable int64
	}
	err := tx.WithContext(ctx).
		Table("products").
		Select("status", "quantity_available").
		Where("id = ?", req.ProductID).
		Take(&row).Error
	if err != nil {
		return "product not found"
	}
	if row.Status != enums.ProductStatusAvailable {
		return fmt.Sprintf("product is %s", row.Status)
	}
	return fmt.Sprintf("only %d available, requested %d", row.QuantityAvailable, req.Qty)
}
