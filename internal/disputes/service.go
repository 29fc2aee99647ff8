package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

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

// escrowService is the slice of the escrow service dispute resolution
// drives. Money moves there; this package only decides which way.
type escrowService interface {
	Release(ctx context.Context, input escrow.ReleaseInput) error
	Refund(ctx context.Context, input escrow.RefundInput) error
	PartialRefund(ctx context.Context, input escrow.PartialRefundInput) error
	MarkDisputed(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) error
	ReopenHeld(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) error
}

// Service exposes the dispute workflow.
type Service interface {
	Raise(ctx context.Context, input RaiseInput) (*models.Dispute, error)
	Respond(ctx context.Context, input RespondInput) (*models.Dispute, error)
	Resolve(ctx context.Context, input ResolveInput) (*models.Dispute, error)
	Get(ctx context.Context, disputeID, userID uuid.UUID, role enums.UserRole) (*models.Dispute, error)
	List(ctx context.Context, status *enums.DisputeStatus, params pagination.Params) (*pagination.Page[models.Dispute], error)
}

// RaiseInput opens a dispute on a delivered or shipped order.
type RaiseInput struct {
	OrderID      uuid.UUID
	BuyerID      uuid.UUID
	Reason       string
	EvidenceURLs []string
}

// RespondInput records the seller's side of an open dispute.
type RespondInput struct {
	DisputeID uuid.UUID
	FarmerID  uuid.UUID
	Response  string
}

// ResolveInput is the admin decision closing a dispute.
type ResolveInput struct {
	DisputeID     uuid.UUID
	AdminID       uuid.UUID
	Resolution    enums.DisputeResolution
	Notes         string
	RefundPesewas int64
}

type service struct {
	repo   Repository
	tx     txRunner
	escrow escrowService
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the disputes service with the required dependencies.
func NewService(repo Repository, tx txRunner, escrowSvc escrowService, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if escrowSvc == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, escrow: escrowSvc, outbox: ob, logg: logg}, nil
}

// Raise opens a dispute, freezing the escrow so neither auto-release
// nor delivery confirmation can settle it while the case is open.
func (s *service) Raise(ctx context.Context, input RaiseInput) (*models.Dispute, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason required")
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("disputes can only be raised on shipped or delivered orders, order is %s", order.Status))
	}

	esc, err := s.repo.FindEscrowByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}
	if esc.DisputeDeadline != nil && time.Now().After(*esc.DisputeDeadline) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "dispute window has closed")
	}

	if _, err := s.repo.FindActiveByOrderID(ctx, order.ID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has an open dispute")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing disputes")
	}

	dispute := &models.Dispute{
		ID:             uuid.New(),
		EscrowID:       esc.ID,
		OrderID:        order.ID,
		RaisedByUserID: input.BuyerID,
		Reason:         reason,
		Status:         enums.DisputeStatusOpen,
	}
	if len(input.EvidenceURLs) > 0 {
		dispute.EvidenceURLs = pq.StringArray(input.EvidenceURLs)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := s.escrow.MarkDisputed(ctx, tx, esc.ID); err != nil {
			return err
		}
		moved, err := repo.UpdateOrderGuarded(ctx, order.ID, order.Status, map[string]any{
			"status": enums.OrderStatusDisputed,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order disputed")
		}
		if moved == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state while raising dispute")
		}
		if err := repo.Create(ctx, dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeRaised,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: string(enums.UserRoleBuyer)},
			Version:       1,
			Data: payloads.DisputeRaised{
				DisputeID: dispute.ID,
				OrderID:   order.ID,
				EscrowID:  esc.ID,
				RaisedBy:  input.BuyerID,
				FarmerID:  order.FarmerID,
				Reason:    reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// Respond records the seller's answer and moves the case to review.
func (s *service) Respond(ctx context.Context, input RespondInput) (*models.Dispute, error) {
	response := strings.TrimSpace(input.Response)
	if response == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "response required")
	}

	dispute, err := s.loadDispute(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindOrder(ctx, dispute.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.FarmerID != input.FarmerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dispute does not involve seller")
	}
	if dispute.Status != enums.DisputeStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("dispute is %s, responses are only accepted while open", dispute.Status))
	}

	moved, err := s.repo.UpdateGuarded(ctx, dispute.ID,
		[]enums.DisputeStatus{enums.DisputeStatusOpen},
		map[string]any{
			"status":              enums.DisputeStatusUnderReview,
			"seller_response":     response,
			"seller_responded_at": time.Now(),
		})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record seller response")
	}
	if moved == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "dispute changed state while responding")
	}
	return s.loadDispute(ctx, dispute.ID)
}

// Resolve applies the admin decision. Money moves through the escrow
// service first; the dispute record closes only after that succeeds, so
// a failed transfer or refund leaves the case open for a retry.
func (s *service) Resolve(ctx context.Context, input ResolveInput) (*models.Dispute, error) {
	if !input.Resolution.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid resolution %q", input.Resolution))
	}

	dispute, err := s.loadDispute(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	switch dispute.Status {
	case enums.DisputeStatusOpen, enums.DisputeStatusUnderReview:
		// proceed
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("dispute is already %s", dispute.Status))
	}

	switch input.Resolution {
	case enums.DisputeResolutionRefund:
		err = s.escrow.Refund(ctx, escrow.RefundInput{
			EscrowID: dispute.EscrowID,
			ActorID:  input.AdminID,
			Note:     input.Notes,
		})
	case enums.DisputeResolutionReleaseToSeller:
		// The escrow must be held again before release will accept it.
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.escrow.ReopenHeld(ctx, tx, dispute.EscrowID)
		})
		if err == nil {
			err = s.escrow.Release(ctx, escrow.ReleaseInput{
				EscrowID: dispute.EscrowID,
				Trigger:  escrow.TriggerDisputeResolution,
				ActorID:  input.AdminID,
			})
		}
	case enums.DisputeResolutionPartialRefund:
		if input.RefundPesewas <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "partial refund requires a positive amount")
		}
		err = s.escrow.PartialRefund(ctx, escrow.PartialRefundInput{
			EscrowID:      dispute.EscrowID,
			RefundPesewas: input.RefundPesewas,
			ActorID:       input.AdminID,
		})
	case enums.DisputeResolutionNoAction:
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.escrow.ReopenHeld(ctx, tx, dispute.EscrowID); err != nil {
				return err
			}
			moved, err := s.repo.WithTx(tx).UpdateOrderGuarded(ctx, dispute.OrderID,
				enums.OrderStatusDisputed, map[string]any{
					"status": enums.OrderStatusDelivered,
				})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore order status")
			}
			if moved == 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not disputed")
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]any{
			"status":               enums.DisputeStatusResolved,
			"resolution":           input.Resolution,
			"resolved_by_admin_id": input.AdminID,
			"resolved_at":          time.Now(),
		}
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			updates["resolution_notes"] = notes
		}
		if input.Resolution == enums.DisputeResolutionPartialRefund {
			updates["refund_amount_pesewas"] = input.RefundPesewas
		}
		moved, err := repo.UpdateGuarded(ctx, dispute.ID,
			[]enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close dispute")
		}
		if moved == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute changed state during resolution")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.UserRoleAdmin)},
			Version:       1,
			Data: payloads.DisputeResolved{
				DisputeID:  dispute.ID,
				OrderID:    dispute.OrderID,
				EscrowID:   dispute.EscrowID,
				Resolution: string(input.Resolution),
				ResolvedBy: input.AdminID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.loadDispute(ctx, dispute.ID)
}

func (s *service) Get(ctx context.Context, disputeID, userID uuid.UUID, role enums.UserRole) (*models.Dispute, error) {
	dispute, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if role == enums.UserRoleAdmin {
		return dispute, nil
	}
	order, err := s.repo.FindOrder(ctx, dispute.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != userID && order.FarmerID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	return dispute, nil
}

func (s *service) List(ctx context.Context, status *enums.DisputeStatus, params pagination.Params) (*pagination.Page[models.Dispute], error) {
	rows, total, err := s.repo.List(ctx, ListFilter{Status: status}, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	return &pagination.Page[models.Dispute]{Items: rows, Total: total}, nil
}

func (s *service) loadDispute(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	if disputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	dispute, err := s.repo.FindByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	return dispute, nil
}
