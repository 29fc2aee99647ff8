package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/internal/cart"
	"github.com/kwabenaosei/agritrade-backend/internal/checkout/reservation"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type feeSettings interface {
	PlatformFeePercent(ctx context.Context) decimal.Decimal
}

// Service converts an active cart into an order with a pending escrow.
type Service interface {
	Checkout(ctx context.Context, input Input) (*Result, error)
}

// Input carries the buyer's checkout request.
type Input struct {
	BuyerID         uuid.UUID
	DeliveryMethod  enums.DeliveryMethod
	DeliveryAddress string
	DeliveryNotes   string
}

// Result is what the buyer sees after a successful checkout.
type Result struct {
	OrderID            uuid.UUID `json:"orderId"`
	OrderNumber        string    `json:"orderNumber"`
	EscrowID           uuid.UUID `json:"escrowId"`
	EscrowReference    string    `json:"escrowReference"`
	SubtotalPesewas    int64     `json:"subtotalPesewas"`
	PlatformFeePesewas int64     `json:"platformFeePesewas"`
	DeliveryFeePesewas int64     `json:"deliveryFeePesewas"`
	TotalPesewas       int64     `json:"totalPesewas"`
}

type service struct {
	repo     Repository
	cartRepo cart.Repository
	tx       txRunner
	outbox   outboxPublisher
	settings feeSettings
	logg     *logger.Logger
}

// NewService builds the checkout service with the required dependencies.
func NewService(repo Repository, cartRepo cart.Repository, tx txRunner, ob outboxPublisher, settings feeSettings, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	return &service{
		repo:     repo,
		cartRepo: cartRepo,
		tx:       tx,
		outbox:   ob,
		settings: settings,
		logg:     logg,
	}, nil
}

// Checkout re-validates stock, freezes prices, and creates the order,
// its items, and a pending escrow in one transaction. Stock decrements
// land atomically with the order or not at all.
func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.DeliveryMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery method")
	}
	if input.DeliveryMethod == enums.DeliveryMethodDelivery && strings.TrimSpace(input.DeliveryAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for delivery orders")
	}

	feePercent := s.settings.PlatformFeePercent(ctx)

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cartRepo := s.cartRepo.WithTx(tx)

		activeCart, err := cartRepo.FindActiveByBuyer(ctx, input.BuyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active cart to check out")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(activeCart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		requests := make([]reservation.StockReservationRequest, 0, len(activeCart.Items))
		for _, item := range activeCart.Items {
			requests = append(requests, reservation.StockReservationRequest{
				CartItemID: item.ID,
				ProductID:  item.ProductID,
				Qty:        item.Quantity,
			})
		}
		reservations, err := reservation.ReserveStock(ctx, tx, requests)
		if err != nil {
			return err
		}
		var failures []string
		for _, res := range reservations {
			if !res.Reserved {
				failures = append(failures, fmt.Sprintf("%s: %s", res.ProductID, res.Reason))
			}
		}
		if len(failures) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock changed since items were added").
				WithDetails(failures)
		}

		var subtotal int64
		orderItems := make([]models.OrderItem, 0, len(activeCart.Items))
		for _, item := range activeCart.Items {
			product, err := cartRepo.FindProduct(ctx, item.ProductID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product for snapshot")
			}
			lineTotal := item.Quantity * item.UnitPricePesewas
			subtotal += lineTotal
			orderItems = append(orderItems, models.OrderItem{
				ProductID:        product.ID,
				ProductName:      product.Name,
				Unit:             product.Unit,
				Quantity:         item.Quantity,
				UnitPricePesewas: item.UnitPricePesewas,
				LineTotalPesewas: lineTotal,
			})
		}

		fees := CalculateFees(subtotal, input.DeliveryMethod, feePercent)

		order := models.Order{
			ID:                 uuid.New(),
			OrderNumber:        GenerateOrderNumber(),
			BuyerID:            activeCart.BuyerID,
			FarmerID:           activeCart.FarmerID,
			Status:             enums.OrderStatusPending,
			PaymentStatus:      enums.PaymentStatusUnpaid,
			SubtotalPesewas:    fees.SubtotalPesewas,
			PlatformFeePesewas: fees.PlatformFeePesewas,
			DeliveryFeePesewas: fees.DeliveryFeePesewas,
			TotalPesewas:       fees.TotalPesewas,
			DeliveryMethod:     input.DeliveryMethod,
		}
		if addr := strings.TrimSpace(input.DeliveryAddress); addr != "" {
			order.DeliveryAddress = &addr
		}
		if notes := strings.TrimSpace(input.DeliveryNotes); notes != "" {
			order.DeliveryNotes = &notes
		}
		if err := repo.CreateOrder(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		for i := range orderItems {
			orderItems[i].OrderID = order.ID
		}
		if err := repo.CreateOrderItems(ctx, orderItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		escrow := models.EscrowTransaction{
			ID:                  uuid.New(),
			OrderID:             order.ID,
			BuyerID:             order.BuyerID,
			FarmerID:            order.FarmerID,
			Reference:           GenerateEscrowReference(),
			AmountPesewas:       fees.TotalPesewas,
			PlatformFeePesewas:  fees.PlatformFeePesewas,
			SellerPayoutPesewas: fees.SellerPayoutPesewas(),
			DeliveryFeePesewas:  fees.DeliveryFeePesewas,
			Status:              enums.EscrowStatusPending,
		}
		if err := repo.CreateEscrow(ctx, &escrow); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow")
		}

		if err := cartRepo.UpdateStatus(ctx, activeCart.ID, enums.CartStatusCheckedOut); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cart checked out")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: string(enums.UserRoleBuyer)},
			Data: payloads.OrderCreated{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				BuyerID:      order.BuyerID,
				FarmerID:     order.FarmerID,
				TotalPesewas: order.TotalPesewas,
				ItemCount:    len(orderItems),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result = &Result{
			OrderID:            order.ID,
			OrderNumber:        order.OrderNumber,
			EscrowID:           escrow.ID,
			EscrowReference:    escrow.Reference,
			SubtotalPesewas:    fees.SubtotalPesewas,
			PlatformFeePesewas: fees.PlatformFeePesewas,
			DeliveryFeePesewas: fees.DeliveryFeePesewas,
			TotalPesewas:       fees.TotalPesewas,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, result.OrderID.String()), "checkout completed")
	}
	return result, nil
}
