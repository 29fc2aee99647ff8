package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox/payloads"
	"github.com/kwabenaosei/agritrade-backend/pkg/paystack"
)

// ReleaseTrigger records what initiated a release.
type ReleaseTrigger string

const (
	TriggerDeliveryConfirmation ReleaseTrigger = "delivery_confirmation"
	TriggerAdmin                ReleaseTrigger = "admin"
	TriggerAutoRelease          ReleaseTrigger = "auto_release"
	TriggerDisputeResolution    ReleaseTrigger = "dispute_resolution"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type settingsSource interface {
	AutoReleaseDays(ctx context.Context) int
	DisputeDeadlineDays(ctx context.Context) int
}

// Service owns every movement of escrowed money.
type Service interface {
	InitializePayment(ctx context.Context, orderID, buyerID uuid.UUID) (*PaymentInit, error)
	VerifyPayment(ctx context.Context, reference string) (*PaymentState, error)
	MarkPaymentReceived(ctx context.Context, input PaymentReceivedInput) error
	Release(ctx context.Context, input ReleaseInput) error
	Refund(ctx context.Context, input RefundInput) error
	PartialRefund(ctx context.Context, input PartialRefundInput) error
	MarkDisputed(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) error
	ReopenHeld(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) error
	ConfirmTransfer(ctx context.Context, transferReference string) error
	RevertFailedTransfer(ctx context.Context, transferReference, reason string) error
	ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// PaymentInit carries the hosted checkout redirect for the buyer.
type PaymentInit struct {
	AuthorizationURL string `json:"authorizationUrl"`
	Reference        string `json:"reference"`
}

// PaymentState summarises a verify call.
type PaymentState struct {
	Reference     string `json:"reference"`
	GatewayStatus string `json:"gatewayStatus"`
	EscrowStatus  string `json:"escrowStatus"`
	Paid          bool   `json:"paid"`
}

// PaymentReceivedInput carries a confirmed charge from webhook or verify.
type PaymentReceivedInput struct {
	Reference         string
	PaystackReference string
	AmountPesewas     int64
	PaidAt            time.Time
}

// ReleaseInput identifies the escrow to settle toward the seller.
type ReleaseInput struct {
	EscrowID uuid.UUID
	Trigger  ReleaseTrigger
	ActorID  uuid.UUID
}

// RefundInput identifies the escrow to return to the buyer in full.
type RefundInput struct {
	EscrowID uuid.UUID
	ActorID  uuid.UUID
	Note     string
}

// PartialRefundInput splits the held amount between buyer and seller.
type PartialRefundInput struct {
	EscrowID      uuid.UUID
	RefundPesewas int64
	ActorID       uuid.UUID
}

type service struct {
	repo        Repository
	tx          txRunner
	gateway     paystack.Gateway
	outbox      outboxPublisher
	settings    settingsSource
	callbackURL string
	logg        *logger.Logger
}

// NewService builds the escrow service with the required dependencies.
func NewService(repo Repository, tx txRunner, gateway paystack.Gateway, ob outboxPublisher, settings settingsSource, callbackURL string, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		gateway:     gateway,
		outbox:      ob,
		settings:    settings,
		callbackURL: callbackURL,
		logg:        logg,
	}, nil
}

func (s *service) InitializePayment(ctx context.Context, orderID, buyerID uuid.UUID) (*PaymentInit, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	esc, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}
	if esc.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	switch esc.Status {
	case enums.EscrowStatusPending:
		// proceed
	case enums.EscrowStatusPaymentInitiated:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"payment already initiated, verify the existing reference instead of re-initializing")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	buyer, err := s.repo.FindUser(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	init, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:         buyer.Email,
		AmountPesewas: esc.AmountPesewas,
		Reference:     esc.Reference,
		CallbackURL:   s.callbackURL,
		Metadata: map[string]any{
			"order_id":  esc.OrderID.String(),
			"escrow_id": esc.ID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.UpdateGuarded(ctx, esc.ID, enums.EscrowStatusPending, map[string]any{
			"status": enums.EscrowStatusPaymentInitiated,
		}); err != nil {
			return err
		}
		return repo.UpdateOrder(ctx, esc.OrderID, map[string]any{
			"status":         enums.OrderStatusPaymentInitiated,
			"payment_status": enums.PaymentStatusInitiated,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment initiation")
	}

	return &PaymentInit{AuthorizationURL: init.AuthorizationURL, Reference: esc.Reference}, nil
}

func (s *service) VerifyPayment(ctx context.Context, reference string) (*PaymentState, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}

	esc, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}

	verified, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}

	state := &PaymentState{
		Reference:     reference,
		GatewayStatus: verified.Status,
		EscrowStatus:  string(esc.Status),
	}
	if !verified.Success() {
		return state, nil
	}

	paidAt := time.Now()
	if verified.PaidAt != nil {
		paidAt = *verified.PaidAt
	}
	if err := s.MarkPaymentReceived(ctx, PaymentReceivedInput{
		Reference:         reference,
		PaystackReference: reference,
		AmountPesewas:     verified.AmountPesewas,
		PaidAt:            paidAt,
	}); err != nil {
		return nil, err
	}
	state.Paid = true
	// A charge for a cancelled order ends REFUNDED rather than HELD,
	// so report the status the escrow actually landed in.
	updated, err := s.repo.FindByID(ctx, esc.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload escrow")
	}
	state.EscrowStatus = string(updated.Status)
	return state, nil
}

// errOrderLeftPayableState aborts the payment transaction when the
// order moved out of a payable status between the read and the flip.
var errOrderLeftPayableState = errors.New("order left payable state")

// MarkPaymentReceived moves an escrow to HELD on a confirmed charge.
// Safe to call repeatedly with the same reference. A charge that lands
// after the buyer cancelled is refunded instead of marking the order
// paid; there is no CANCELLED to PAID edge.
func (s *service) MarkPaymentReceived(ctx context.Context, input PaymentReceivedInput) error {
	if input.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}

	autoReleaseDays := s.settings.AutoReleaseDays(ctx)
	disputeDays := s.settings.DisputeDeadlineDays(ctx)

	var lateCharge *models.EscrowTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		esc, err := repo.FindByReference(ctx, input.Reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
		}

		switch esc.Status {
		case enums.EscrowStatusPending, enums.EscrowStatusPaymentInitiated:
			// proceed
		default:
			// Duplicate delivery, already held or settled.
			return nil
		}

		if input.AmountPesewas != esc.AmountPesewas {
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"reference": input.Reference,
					"expected":  esc.AmountPesewas,
					"received":  input.AmountPesewas,
				})
				s.logg.Error(logCtx, "charge amount does not match escrow", nil)
			}
			return pkgerrors.New(pkgerrors.CodeInternal, "charge amount does not match escrow amount")
		}

		order, err := repo.FindOrder(ctx, esc.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCancelled {
			// The buyer cancelled before the charge landed and the
			// stock is already released. The money goes back.
			lateCharge = esc
			return nil
		}

		now := time.Now()
		autoRelease := now.AddDate(0, 0, autoReleaseDays)
		deadline := now.AddDate(0, 0, disputeDays)
		paidAt := input.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}

		moved, err := repo.UpdateGuarded(ctx, esc.ID, esc.Status, map[string]any{
			"status":             enums.EscrowStatusHeld,
			"paystack_reference": input.PaystackReference,
			"paid_at":            paidAt,
			"auto_release_date":  autoRelease,
			"dispute_deadline":   deadline,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark escrow held")
		}
		if moved == 0 {
			return nil
		}

		movedOrder, err := repo.UpdateOrderGuarded(ctx, esc.OrderID,
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaymentInitiated},
			map[string]any{
				"status":         enums.OrderStatusPaid,
				"payment_status": enums.PaymentStatusPaid,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if movedOrder == 0 {
			// A concurrent cancellation slipped in after the read
			// above. Roll everything back and look again.
			lateCharge = esc
			return errOrderLeftPayableState
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowPaymentReceived,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowPaymentReceived{
				OrderID:         esc.OrderID,
				EscrowID:        esc.ID,
				OrderNumber:     order.OrderNumber,
				BuyerID:         esc.BuyerID,
				FarmerID:        esc.FarmerID,
				AmountPesewas:   esc.AmountPesewas,
				AutoReleaseDate: autoRelease,
			},
		})
	})
	switch {
	case errors.Is(err, errOrderLeftPayableState):
		order, loadErr := s.repo.FindOrder(ctx, lateCharge.OrderID)
		if loadErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, loadErr, "reload order")
		}
		if order.Status != enums.OrderStatusCancelled {
			// Another delivery of the same charge won the race.
			return nil
		}
	case err != nil:
		return err
	case lateCharge == nil:
		return nil
	}
	return s.refundLateCharge(ctx, lateCharge, input)
}

// refundLateCharge returns a charge that landed after the order was
// cancelled. The order keeps its CANCELLED status; only the payment
// trail is updated.
func (s *service) refundLateCharge(ctx context.Context, esc *models.EscrowTransaction, input PaymentReceivedInput) error {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithEscrowID(ctx, esc.ID.String()), "charge received for cancelled order, refunding buyer")
	}

	if _, err := s.gateway.RefundTransaction(ctx, paystack.RefundRequest{
		Reference: input.Reference,
	}); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.UpdateGuarded(ctx, esc.ID, esc.Status, map[string]any{
			"status":                  enums.EscrowStatusRefunded,
			"refunded_at":             time.Now(),
			"refunded_amount_pesewas": esc.AmountPesewas,
			"paystack_reference":      input.PaystackReference,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark escrow refunded")
		}
		if moved == 0 {
			// A duplicate delivery already settled it.
			return nil
		}

		if err := repo.UpdateOrder(ctx, esc.OrderID, map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund on order")
		}

		order, err := repo.FindOrder(ctx, esc.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowRefunded,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowRefunded{
				OrderID:        esc.OrderID,
				EscrowID:       esc.ID,
				OrderNumber:    order.OrderNumber,
				BuyerID:        esc.BuyerID,
				RefundPesewas:  esc.AmountPesewas,
				ResolutionNote: "charge received after cancellation",
			},
		})
	})
}

// Release settles the held amount toward the seller. The transfer
// reference is claimed atomically before the gateway call, so two
// concurrent callers can never double-pay; the loser of the claim
// observes a no-op. The status only flips to RELEASED after the
// gateway accepts the transfer.
func (s *service) Release(ctx context.Context, input ReleaseInput) error {
	if input.EscrowID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "escrow id required")
	}

	esc, err := s.repo.FindByID(ctx, input.EscrowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}

	switch esc.Status {
	case enums.EscrowStatusReleased:
		// Idempotent from the caller's perspective.
		return nil
	case enums.EscrowStatusHeld:
		// proceed
	case enums.EscrowStatusDisputed:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow is disputed, resolve the dispute first")
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("escrow cannot be released from %s", esc.Status))
	}

	if err := verifySplit(esc); err != nil {
		return err
	}

	recipientCode, err := s.ensureRecipient(ctx, esc.FarmerID)
	if err != nil {
		return err
	}

	transferRef := generateTransferReference()
	claimed, err := s.repo.ClaimTransferReference(ctx, esc.ID, enums.EscrowStatusHeld, transferRef)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim transfer reference")
	}
	if !claimed {
		reloaded, err := s.repo.FindByID(ctx, esc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload escrow")
		}
		switch {
		case reloaded.Status == enums.EscrowStatusReleased:
			return nil
		case reloaded.Status == enums.EscrowStatusHeld && reloaded.TransferReference != nil &&
			strings.HasPrefix(*reloaded.TransferReference, transferRefPrefix):
			// A previous release stamped a reference but the transfer
			// outcome is unknown. Reuse it: the gateway dedupes by
			// reference, so this retries rather than double-pays. A
			// refund claim is never reused this way.
			transferRef = *reloaded.TransferReference
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("escrow left HELD during release (%s)", reloaded.Status))
		}
	}

	transfer, err := s.gateway.InitiateTransfer(ctx, paystack.TransferRequest{
		AmountPesewas: esc.SellerPayoutPesewas,
		RecipientCode: recipientCode,
		Reference:     transferRef,
		Reason:        "Marketplace settlement",
	})
	if err != nil || !transfer.Accepted() {
		reason := "transfer rejected by gateway"
		if err != nil {
			reason = err.Error()
		} else {
			// The gateway answered with a rejection, so no transfer
			// exists; free the claim for the next attempt. On a network
			// error the outcome is unknown and the claim stays.
			if clearErr := s.repo.ReleaseTransferClaim(ctx, esc.ID, transferRef); clearErr != nil && s.logg != nil {
				s.logg.Error(s.logg.WithEscrowID(ctx, esc.ID.String()), "clear rejected transfer claim", clearErr)
			}
		}
		s.recordReleaseFailure(ctx, esc, reason)
		if err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeDependency, reason)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now()

		moved, err := repo.UpdateGuarded(ctx, esc.ID, enums.EscrowStatusHeld, map[string]any{
			"status":        enums.EscrowStatusReleased,
			"released_at":   now,
			"transfer_code": transfer.TransferCode,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark escrow released")
		}
		if moved == 0 {
			return nil
		}

		if err := repo.UpdateOrder(ctx, esc.OrderID, map[string]any{
			"status":       enums.OrderStatusCompleted,
			"completed_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}

		order, err := repo.FindOrder(ctx, esc.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleased,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowReleased{
				OrderID:             esc.OrderID,
				EscrowID:            esc.ID,
				OrderNumber:         order.OrderNumber,
				FarmerID:            esc.FarmerID,
				SellerPayoutPesewas: esc.SellerPayoutPesewas,
				TransferReference:   transferRef,
				Trigger:             string(input.Trigger),
			},
		})
	})
}

// Refund returns the full held amount to the buyer. Status flips only
// after the gateway confirms the refund call.
func (s *service) Refund(ctx context.Context, input RefundInput) error {
	if input.EscrowID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "escrow id required")
	}

	esc, err := s.repo.FindByID(ctx, input.EscrowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}

	switch esc.Status {
	case enums.EscrowStatusRefunded:
		return nil
	case enums.EscrowStatusHeld, enums.EscrowStatusDisputed:
		// proceed
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("escrow cannot be refunded from %s", esc.Status))
	}

	if err := verifySplit(esc); err != nil {
		return err
	}

	claimed, err := s.repo.ClaimTransferReference(ctx, esc.ID, esc.Status, generateRefundClaim())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim refund")
	}
	if !claimed {
		reloaded, err := s.repo.FindByID(ctx, esc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload escrow")
		}
		if reloaded.Status == enums.EscrowStatusRefunded {
			return nil
		}
		// Refund calls are not deduped by the gateway, so a claim of
		// unknown outcome is surfaced for operator review instead of
		// retried blindly.
		return pkgerrors.New(pkgerrors.CodeStateConflict, "another settlement is in progress for this escrow")
	}

	if _, err := s.gateway.RefundTransaction(ctx, paystack.RefundRequest{
		Reference: chargeReference(esc),
	}); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now()

		moved, err := repo.UpdateGuarded(ctx, esc.ID, esc.Status, map[string]any{
			"status":                  enums.EscrowStatusRefunded,
			"refunded_at":             now,
			"refunded_amount_pesewas": esc.AmountPesewas,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark escrow refunded")
		}
		if moved == 0 {
			return nil
		}

		if err := repo.UpdateOrder(ctx, esc.OrderID, map[string]any{
			"status":         enums.OrderStatusRefunded,
			"payment_status": enums.PaymentStatusRefunded,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
		}

		order, err := repo.FindOrder(ctx, esc.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowRefunded,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowRefunded{
				OrderID:        esc.OrderID,
				EscrowID:       esc.ID,
				OrderNumber:    order.OrderNumber,
				BuyerID:        esc.BuyerID,
				RefundPesewas:  esc.AmountPesewas,
				ResolutionNote: input.Note,
			},
		})
	})
}

// PartialRefund refunds part of the charge to the buyer and transfers
// the reduced payout to the seller. The original seller_payout field is
// never overwritten; the refunded portion is recorded separately.
func (s *service) PartialRefund(ctx context.Context, input PartialRefundInput) error {
	if input.EscrowID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "escrow id required")
	}
	if input.RefundPesewas <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	esc, err := s.repo.FindByID(ctx, input.EscrowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}

	switch esc.Status {
	case enums.EscrowStatusPartiallyRefunded:
		return nil
	case enums.EscrowStatusHeld, enums.EscrowStatusDisputed:
		// proceed
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("escrow cannot be split from %s", esc.Status))
	}

	if err := verifySplit(esc); err != nil {
		return err
	}

	reducedPayout := esc.SellerPayoutPesewas - input.RefundPesewas
	if reducedPayout < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund %d exceeds seller payout %d", input.RefundPesewas, esc.SellerPayoutPesewas))
	}

	recipientCode, err := s.ensureRecipient(ctx, esc.FarmerID)
	if err != nil {
		return err
	}

	// The claim must be held before either gateway call; two admins
	// resolving the same dispute would otherwise both refund the buyer
	// and both pay the seller.
	claimRef := generateRefundClaim()
	claimed, err := s.repo.ClaimTransferReference(ctx, esc.ID, esc.Status, claimRef)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim refund")
	}
	if !claimed {
		reloaded, err := s.repo.FindByID(ctx, esc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload escrow")
		}
		if reloaded.Status == enums.EscrowStatusPartiallyRefunded || reloaded.Status == enums.EscrowStatusRefunded {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "another settlement is in progress for this escrow")
	}

	if _, err := s.gateway.RefundTransaction(ctx, paystack.RefundRequest{
		Reference:     chargeReference(esc),
		AmountPesewas: input.RefundPesewas,
	}); err != nil {
		return err
	}

	var transferCode string
	if reducedPayout > 0 {
		transfer, err := s.gateway.InitiateTransfer(ctx, paystack.TransferRequest{
			AmountPesewas: reducedPayout,
			RecipientCode: recipientCode,
			Reference:     claimRef,
			Reason:        "Marketplace settlement (partial)",
		})
		if err != nil {
			return err
		}
		if !transfer.Accepted() {
			// The buyer's refund already went out; keep the claim so
			// no second split runs, and leave the payout to operator
			// follow-up.
			if s.logg != nil {
				s.logg.Error(s.logg.WithEscrowID(ctx, esc.ID.String()), "partial refund payout rejected after refund", nil)
			}
			return pkgerrors.New(pkgerrors.CodeDependency, "transfer rejected by gateway")
		}
		transferCode = transfer.TransferCode
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now()

		updates := map[string]any{
			"status":                  enums.EscrowStatusPartiallyRefunded,
			"refunded_at":             now,
			"refunded_amount_pesewas": input.RefundPesewas,
		}
		if reducedPayout > 0 {
			updates["transfer_code"] = transferCode
		}
		moved, err := repo.UpdateGuarded(ctx, esc.ID, esc.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark escrow partially refunded")
		}
		if moved == 0 {
			return nil
		}

		if err := repo.UpdateOrder(ctx, esc.OrderID, map[string]any{
			"status":         enums.OrderStatusCompleted,
			"completed_at":   now,
			"payment_status": enums.PaymentStatusPartiallyRefunded,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowPartiallyRefunded,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowPartiallyRefunded{
				OrderID:             esc.OrderID,
				EscrowID:            esc.ID,
				BuyerID:             esc.BuyerID,
				FarmerID:            esc.FarmerID,
				RefundPesewas:       input.RefundPesewas,
				SellerPayoutPesewas: reducedPayout,
			},
		})
	})
}

// MarkDisputed moves a held escrow to DISPUTED inside the caller's
// transaction, blocking auto-release. An escrow with a settlement
// claim stamped cannot be disputed until the claim resolves.
func (s *service) MarkDisputed(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	moved, err := repo.TransitionUnclaimed(ctx, escrowID, enums.EscrowStatusHeld, enums.EscrowStatusDisputed)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark escrow disputed")
	}
	if moved == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow is not held")
	}
	return nil
}

// ReopenHeld returns a disputed escrow to HELD, used for NO_ACTION
// dispute resolutions. Blocked while a settlement claim is in flight.
func (s *service) ReopenHeld(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	moved, err := repo.TransitionUnclaimed(ctx, escrowID, enums.EscrowStatusDisputed, enums.EscrowStatusHeld)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen escrow")
	}
	if moved == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow is not disputed")
	}
	return nil
}

// ConfirmTransfer records the gateway's confirmation of a transfer.
// The escrow was already optimistically marked RELEASED before the
// transfer call, so this is a log-only acknowledgement.
func (s *service) ConfirmTransfer(ctx context.Context, transferReference string) error {
	esc, err := s.repo.FindByTransferReference(ctx, transferReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "unknown transfer reference")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}
	if s.logg != nil {
		logCtx := s.logg.WithEscrowID(s.logg.WithReference(ctx, transferReference), esc.ID.String())
		s.logg.Info(logCtx, "transfer confirmed by gateway")
	}
	return nil
}

// RevertFailedTransfer handles a transfer.failed webhook: the escrow
// returns to HELD with the stale reference cleared so the next release
// attempt uses a fresh one, and the order drops back to DELIVERED.
func (s *service) RevertFailedTransfer(ctx context.Context, transferReference, reason string) error {
	esc, err := s.repo.FindByTransferReference(ctx, transferReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "unknown transfer reference")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		clear := map[string]any{
			"status":             enums.EscrowStatusHeld,
			"transfer_reference": nil,
			"transfer_code":      nil,
			"released_at":        nil,
		}
		moved, err := repo.UpdateGuarded(ctx, esc.ID, enums.EscrowStatusReleased, clear)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert released escrow")
		}
		if moved > 0 {
			if err := repo.UpdateOrder(ctx, esc.OrderID, map[string]any{
				"status":       enums.OrderStatusDelivered,
				"completed_at": nil,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert order completion")
			}
		} else {
			// Transfer failed before the status flipped; just unstick the reference.
			if _, err := repo.UpdateGuarded(ctx, esc.ID, enums.EscrowStatusHeld, map[string]any{
				"transfer_reference": nil,
				"transfer_code":      nil,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear failed transfer reference")
			}
		}

		if s.logg != nil {
			logCtx := s.logg.WithEscrowID(s.logg.WithReference(ctx, transferReference), esc.ID.String())
			s.logg.Warn(logCtx, "transfer failed, escrow returned to held")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleaseFailed,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowReleaseFailed{
				OrderID:  esc.OrderID,
				EscrowID: esc.ID,
				Reason:   reason,
			},
		})
	})
}

// ReleaseDue releases every held escrow whose auto-release date has
// passed. A failure on one row does not stop the sweep; the count of
// successful releases is returned alongside the combined errors.
func (s *service) ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := s.repo.FindDueForRelease(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due escrows")
	}

	released := 0
	var errs []error
	for _, esc := range due {
		err := s.Release(ctx, ReleaseInput{EscrowID: esc.ID, Trigger: TriggerAutoRelease})
		if err != nil {
			if s.logg != nil {
				s.logg.Error(s.logg.WithEscrowID(ctx, esc.ID.String()), "auto-release failed", err)
			}
			errs = append(errs, fmt.Errorf("escrow %s: %w", esc.ID, err))
			continue
		}
		released++
	}
	return released, multierr.Combine(errs...)
}

func (s *service) ensureRecipient(ctx context.Context, farmerID uuid.UUID) (string, error) {
	farmer, err := s.repo.FindUser(ctx, farmerID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load farmer")
	}
	if farmer.PayoutRecipientCode != nil && *farmer.PayoutRecipientCode != "" {
		return *farmer.PayoutRecipientCode, nil
	}
	if farmer.BankAccountNumber == nil || farmer.BankCode == nil {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "farmer has no payout bank details on file")
	}

	accountName := farmer.FullName
	if farmer.BankAccountName != nil {
		accountName = *farmer.BankAccountName
	}
	code, err := s.gateway.CreateTransferRecipient(ctx, paystack.RecipientRequest{
		AccountName:   accountName,
		AccountNumber: *farmer.BankAccountNumber,
		BankCode:      *farmer.BankCode,
	})
	if err != nil {
		return "", err
	}
	if err := s.repo.SetUserRecipientCode(ctx, farmerID, code); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist recipient code")
	}
	return code, nil
}

func (s *service) recordReleaseFailure(ctx context.Context, esc *models.EscrowTransaction, reason string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleaseFailed,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   esc.ID,
			Version:       1,
			Data: payloads.EscrowReleaseFailed{
				OrderID:  esc.OrderID,
				EscrowID: esc.ID,
				Reason:   reason,
			},
		})
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithEscrowID(ctx, esc.ID.String()), "record release failure", err)
	}
}

func chargeReference(esc *models.EscrowTransaction) string {
	if esc.PaystackReference != nil && *esc.PaystackReference != "" {
		return *esc.PaystackReference
	}
	return esc.Reference
}

// Settlement claims stamped onto transfer_reference carry a prefix so a
// release retry never reuses a claim left behind by a refund path.
const (
	transferRefPrefix = "TRF-"
	refundClaimPrefix = "RFD-"
)

func generateTransferReference() string {
	return fmt.Sprintf("%s%d-%s", transferRefPrefix, time.Now().Unix(), strings.ToLower(uuid.NewString()[:8]))
}

func generateRefundClaim() string {
	return fmt.Sprintf("%s%d-%s", refundClaimPrefix, time.Now().Unix(), strings.ToLower(uuid.NewString()[:8]))
}

// verifySplit checks the stored money split before any settlement moves
// funds. The gross charge is subtotal plus both fees, and the seller is
// owed the subtotal minus the platform's cut; a row that fails this was
// corrupted after checkout and must not be settled.
func verifySplit(esc *models.EscrowTransaction) error {
	subtotal := esc.AmountPesewas - esc.PlatformFeePesewas - esc.DeliveryFeePesewas
	if esc.SellerPayoutPesewas != subtotal-esc.PlatformFeePesewas {
		return pkgerrors.New(pkgerrors.CodeInternal, "escrow amounts do not reconcile").
			WithDetails(map[string]any{
				"escrowId":     esc.ID,
				"amount":       esc.AmountPesewas,
				"platformFee":  esc.PlatformFeePesewas,
				"deliveryFee":  esc.DeliveryFeePesewas,
				"sellerPayout": esc.SellerPayoutPesewas,
			})
	}
	return nil
}
