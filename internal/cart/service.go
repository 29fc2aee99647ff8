package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/kwabenaosei/agritrade-backend/pkg/db"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox/payloads"
)

// DefaultTTL is the rolling cart lifetime; every mutation pushes
// expires_at out by this much.
const DefaultTTL = 8 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines buyer-facing cart operations.
type Service interface {
	AddItem(ctx context.Context, input AddItemInput) (*View, error)
	UpdateItemQuantity(ctx context.Context, input UpdateItemInput) (*View, error)
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*View, error)
	Get(ctx context.Context, buyerID uuid.UUID) (*View, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	ttl    time.Duration
}

// AddItemInput carries an add-to-cart request.
type AddItemInput struct {
	BuyerID   uuid.UUID
	ProductID uuid.UUID
	Qty       int64
}

// UpdateItemInput carries a quantity change for an existing line.
type UpdateItemInput struct {
	BuyerID   uuid.UUID
	ProductID uuid.UUID
	Qty       int64
}

// ItemView is one cart line with its running total.
type ItemView struct {
	ProductID        uuid.UUID `json:"productId"`
	ProductName      string    `json:"productName"`
	Unit             string    `json:"unit"`
	Quantity         int64     `json:"quantity"`
	UnitPricePesewas int64     `json:"unitPricePesewas"`
	LineTotalPesewas int64     `json:"lineTotalPesewas"`
}

// View is the buyer-facing cart snapshot.
type View struct {
	CartID          uuid.UUID  `json:"cartId"`
	FarmerID        uuid.UUID  `json:"farmerId"`
	Status          string     `json:"status"`
	Items           []ItemView `json:"items"`
	SubtotalPesewas int64      `json:"subtotalPesewas"`
	ExpiresAt       time.Time  `json:"expiresAt"`
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, ttl time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{repo: repo, tx: tx, outbox: ob, ttl: ttl}, nil
}

func (s *service) AddItem(ctx context.Context, input AddItemInput) (*View, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if product.FarmerID == input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own produce")
		}
		if product.Status != enums.ProductStatusAvailable {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product is %s", product.Status))
		}
		if input.Qty < product.MinimumOrderQty {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("minimum order for %s is %d %s", product.Name, product.MinimumOrderQty, product.Unit))
		}

		activeCart, err := repo.FindActiveByBuyer(ctx, input.BuyerID)
		switch {
		case err == nil:
			if activeCart.FarmerID != product.FarmerID {
				return pkgerrors.New(pkgerrors.CodeConflict,
					"cart already holds items from another farmer, clear it first")
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// A lapsed cart still occupies the one-active-cart index
			// until the sweep runs; retire it before creating.
			if err := repo.RetireExpired(ctx, input.BuyerID, time.Now()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire expired cart")
			}
			activeCart = &models.Cart{
				ID:        uuid.New(),
				BuyerID:   input.BuyerID,
				FarmerID:  product.FarmerID,
				Status:    enums.CartStatusActive,
				ExpiresAt: time.Now().Add(s.ttl),
			}
			if err := repo.Create(ctx, activeCart); err != nil {
				// Two first-adds for the same buyer race on the
				// one-active-cart index.
				if pkgdb.IsUniqueViolation(err, "ux_carts_buyer_active") {
					return pkgerrors.New(pkgerrors.CodeConflict, "cart is being created by another request, retry")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		newQty := input.Qty
		if existing, err := repo.FindItem(ctx, activeCart.ID, product.ID); err == nil {
			newQty += existing.Quantity
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}
		if newQty > product.QuantityAvailable {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("only %d %s of %s available", product.QuantityAvailable, product.Unit, product.Name))
		}

		item := models.CartItem{
			CartID:           activeCart.ID,
			ProductID:        product.ID,
			Quantity:         newQty,
			UnitPricePesewas: product.UnitPricePesewas,
		}
		if err := repo.UpsertItem(ctx, &item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
		}
		if err := repo.TouchExpiry(ctx, activeCart.ID, time.Now().Add(s.ttl)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
		}

		view, err = s.buildView(ctx, repo, activeCart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, input UpdateItemInput) (*View, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive, remove the item instead")
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		activeCart, err := repo.FindActiveByBuyer(ctx, input.BuyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if _, err := repo.FindItem(ctx, activeCart.ID, input.ProductID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if input.Qty < product.MinimumOrderQty {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("minimum order for %s is %d %s", product.Name, product.MinimumOrderQty, product.Unit))
		}
		if input.Qty > product.QuantityAvailable {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("only %d %s of %s available", product.QuantityAvailable, product.Unit, product.Name))
		}

		item := models.CartItem{
			CartID:           activeCart.ID,
			ProductID:        product.ID,
			Quantity:         input.Qty,
			UnitPricePesewas: product.UnitPricePesewas,
		}
		if err := repo.UpsertItem(ctx, &item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		if err := repo.TouchExpiry(ctx, activeCart.ID, time.Now().Add(s.ttl)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
		}

		view, err = s.buildView(ctx, repo, activeCart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*View, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		activeCart, err := repo.FindActiveByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.DeleteItem(ctx, activeCart.ID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}

		remaining, err := repo.CountItems(ctx, activeCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart items")
		}
		if remaining == 0 {
			if err := repo.UpdateStatus(ctx, activeCart.ID, enums.CartStatusAbandoned); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire empty cart")
			}
			view = &View{CartID: activeCart.ID, FarmerID: activeCart.FarmerID, Status: string(enums.CartStatusAbandoned), Items: []ItemView{}}
			return nil
		}

		if err := repo.TouchExpiry(ctx, activeCart.ID, time.Now().Add(s.ttl)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
		}
		view, err = s.buildView(ctx, repo, activeCart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	activeCart, err := s.repo.FindActiveByBuyer(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.buildView(ctx, s.repo, activeCart.ID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		activeCart, err := repo.FindActiveByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if err := repo.DeleteItems(ctx, activeCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart items")
		}
		return repo.UpdateStatus(ctx, activeCart.ID, enums.CartStatusAbandoned)
	})
}

// ExpireStale retires ACTIVE carts whose expires_at has passed,
// emitting a cart.expired event per cart. Returns the number retired.
func (s *service) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.repo.FindExpired(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired carts")
	}

	retired := 0
	for _, stale := range expired {
		stale := stale
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateStatus(ctx, stale.ID, enums.CartStatusExpired); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCartExpired,
				AggregateType: enums.AggregateCart,
				AggregateID:   stale.ID,
				Version:       1,
				Data: payloads.CartExpired{
					CartID:  stale.ID,
					BuyerID: stale.BuyerID,
				},
			})
		})
		if err != nil {
			return retired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire cart")
		}
		retired++
	}
	return retired, nil
}

func (s *service) buildView(ctx context.Context, repo Repository, cartID uuid.UUID) (*View, error) {
	loaded, err := repo.FindByID(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}

	view := &View{
		CartID:    loaded.ID,
		FarmerID:  loaded.FarmerID,
		Status:    string(loaded.Status),
		ExpiresAt: loaded.ExpiresAt,
		Items:     make([]ItemView, 0, len(loaded.Items)),
	}
	for _, item := range loaded.Items {
		lineTotal := item.Quantity * item.UnitPricePesewas
		itemView := ItemView{
			ProductID:        item.ProductID,
			Quantity:         item.Quantity,
			UnitPricePesewas: item.UnitPricePesewas,
			LineTotalPesewas: lineTotal,
		}
		if product, err := repo.FindProduct(ctx, item.ProductID); err == nil {
			itemView.ProductName = product.Name
			itemView.Unit = product.Unit
		}
		view.Items = append(view.Items, itemView)
		view.SubtotalPesewas += lineTotal
	}
	return view, nil
}
