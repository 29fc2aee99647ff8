package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/internal/checkout/reservation"
	"github.com/kwabenaosei/agritrade-backend/internal/escrow"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox/payloads"
	"github.com/kwabenaosei/agritrade-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// escrowReleaser is the slice of the escrow service fulfilment needs:
// settlement is triggered here but owned there.
type escrowReleaser interface {
	Release(ctx context.Context, input escrow.ReleaseInput) error
}

// Service exposes order listing and the fulfilment state machine.
type Service interface {
	List(ctx context.Context, input ListInput) (*pagination.Page[models.Order], error)
	Get(ctx context.Context, orderID, userID uuid.UUID, role enums.UserRole) (*models.Order, error)
	Ship(ctx context.Context, input ShipInput) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error)
	ConfirmPickup(ctx context.Context, orderID, userID uuid.UUID, role enums.UserRole) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
}

// ListInput scopes a listing to the caller's role.
type ListInput struct {
	UserID uuid.UUID
	Role   enums.UserRole
	Status *enums.OrderStatus
	Params pagination.Params
}

// ShipInput carries the seller's dispatch details.
type ShipInput struct {
	OrderID           uuid.UUID
	FarmerID          uuid.UUID
	TrackingReference string
	CourierName       string
}

// CancelInput identifies a pre-payment order to void.
type CancelInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Role    enums.UserRole
	Reason  string
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	releaser escrowReleaser
	logg     *logger.Logger
}

// NewService builds the orders service with the required dependencies.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, releaser escrowReleaser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if releaser == nil {
		return nil, fmt.Errorf("escrow releaser required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, releaser: releaser, logg: logg}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*pagination.Page[models.Order], error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	filter := ListFilter{Status: input.Status}
	switch input.Role {
	case enums.UserRoleBuyer:
		filter.BuyerID = &input.UserID
	case enums.UserRoleFarmer:
		filter.FarmerID = &input.UserID
	case enums.UserRoleAdmin:
		// admins list across all parties
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}

	rows, total, err := s.repo.List(ctx, filter, input.Params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return &pagination.Page[models.Order]{Items: rows, Total: total}, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID, role enums.UserRole) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(order, userID, role) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// Ship moves a paid delivery order to SHIPPED with the courier details.
func (s *service) Ship(ctx context.Context, input ShipInput) (*models.Order, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.FarmerID != input.FarmerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
	}
	if order.DeliveryMethod != enums.DeliveryMethodDelivery {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "pickup orders are not shipped, confirm pickup instead")
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order cannot be shipped from %s", order.Status))
	}

	now := time.Now()
	updates := map[string]any{
		"status":     enums.OrderStatusShipped,
		"shipped_at": now,
	}
	if ref := strings.TrimSpace(input.TrackingReference); ref != "" {
		updates["tracking_reference"] = ref
	}
	if courier := strings.TrimSpace(input.CourierName); courier != "" {
		updates["courier_name"] = courier
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.UpdateGuarded(ctx, order.ID, order.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
		}
		if moved == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during shipping")
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.FarmerID, Role: string(enums.UserRoleFarmer)},
			Version:       1,
			Data: payloads.OrderShipped{
				OrderID:           order.ID,
				OrderNumber:       order.OrderNumber,
				BuyerID:           order.BuyerID,
				TrackingReference: strings.TrimSpace(input.TrackingReference),
				CourierName:       strings.TrimSpace(input.CourierName),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, order.ID)
}

// ConfirmDelivery records the buyer's receipt and hands the escrow to
// settlement. A transfer failure downstream leaves the order DELIVERED;
// the auto-release sweep retries it.
func (s *service) ConfirmDelivery(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order cannot be confirmed delivered from %s", order.Status))
	}

	if err := s.markDelivered(ctx, order, buyerID, enums.UserRoleBuyer); err != nil {
		return nil, err
	}
	s.triggerRelease(ctx, order.ID, buyerID)
	return s.loadOrder(ctx, order.ID)
}

// ConfirmPickup records one party's pickup acknowledgement. The order
// moves to DELIVERED only once both buyer and seller have confirmed.
func (s *service) ConfirmPickup(ctx context.Context, orderID, userID uuid.UUID, role enums.UserRole) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.DeliveryMethod != enums.DeliveryMethodPickup {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not a pickup order")
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("pickup cannot be confirmed from %s", order.Status))
	}

	var column string
	var alreadyConfirmed, otherConfirmed bool
	switch {
	case role == enums.UserRoleBuyer && order.BuyerID == userID:
		column = "buyer_pickup_confirm"
		alreadyConfirmed = order.BuyerPickupConfirm
		otherConfirmed = order.FarmerPickupConfirm
	case role == enums.UserRoleFarmer && order.FarmerID == userID:
		column = "farmer_pickup_confirm"
		alreadyConfirmed = order.FarmerPickupConfirm
		otherConfirmed = order.BuyerPickupConfirm
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	if !alreadyConfirmed {
		if err := s.repo.Update(ctx, order.ID, map[string]any{column: true}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pickup confirmation")
		}
	}

	if otherConfirmed {
		if err := s.markDelivered(ctx, order, userID, role); err != nil {
			return nil, err
		}
		s.triggerRelease(ctx, order.ID, userID)
	}
	return s.loadOrder(ctx, order.ID)
}

// Cancel voids an order before payment and returns the reserved stock.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if input.Role != enums.UserRoleAdmin && order.BuyerID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}

	switch order.Status {
	case enums.OrderStatusPending, enums.OrderStatusPaymentInitiated:
		// proceed
	case enums.OrderStatusCancelled:
		return order, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"paid orders cannot be cancelled, raise a dispute instead")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.UpdateGuarded(ctx, order.ID, order.Status, map[string]any{
			"status":              enums.OrderStatusCancelled,
			"cancelled_at":        time.Now(),
			"cancellation_reason": strings.TrimSpace(input.Reason),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if moved == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during cancellation")
		}

		items, err := repo.FindItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		for _, item := range items {
			if err := reservation.ReleaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(input.Role)},
			Version:       1,
			Data: payloads.OrderCancelled{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CancelledBy: input.UserID,
				Reason:      strings.TrimSpace(input.Reason),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, order.ID)
}

func (s *service) markDelivered(ctx context.Context, order *models.Order, actorID uuid.UUID, role enums.UserRole) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.UpdateGuarded(ctx, order.ID, order.Status, map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": time.Now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
		}
		if moved == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during confirmation")
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
			Version:       1,
			Data: payloads.OrderDelivered{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				FarmerID:    order.FarmerID,
			},
		})
	})
}

// triggerRelease starts settlement after a delivery confirmation. The
// confirmation itself has already committed; a release failure here is
// logged and left for the auto-release sweep.
func (s *service) triggerRelease(ctx context.Context, orderID, actorID uuid.UUID) {
	esc, err := s.repo.FindEscrowByOrderID(ctx, orderID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "load escrow for release", err)
		}
		return
	}
	err = s.releaser.Release(ctx, escrow.ReleaseInput{
		EscrowID: esc.ID,
		Trigger:  escrow.TriggerDeliveryConfirmation,
		ActorID:  actorID,
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithEscrowID(ctx, esc.ID.String()), "release after delivery confirmation failed", err)
	}
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func canView(order *models.Order, userID uuid.UUID, role enums.UserRole) bool {
	if role == enums.UserRoleAdmin {
		return true
	}
	return order.BuyerID == userID || order.FarmerID == userID
}
