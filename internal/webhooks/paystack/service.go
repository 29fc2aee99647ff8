// Package paystack turns gateway webhook deliveries into escrow state
// transitions. Signature verification happens at the HTTP edge; this
// package trusts its input is authentic.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kwabenaosei/agritrade-backend/internal/escrow"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

const (
	EventChargeSuccess    = "charge.success"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
	EventRefundProcessed  = "refund.processed"
)

type escrowService interface {
	MarkPaymentReceived(ctx context.Context, input escrow.PaymentReceivedInput) error
	ConfirmTransfer(ctx context.Context, transferReference string) error
	RevertFailedTransfer(ctx context.Context, transferReference, reason string) error
}

// Service routes webhook events to the escrow service.
type Service struct {
	escrow escrowService
	logg   *logger.Logger
}

// NewService builds the webhook processor.
func NewService(escrowSvc escrowService, logg *logger.Logger) (*Service, error) {
	if escrowSvc == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	return &Service{escrow: escrowSvc, logg: logg}, nil
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	PaidAt    string `json:"paid_at"`
}

type transferData struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
}

// Process handles one raw webhook body. Unknown event types are logged
// and acknowledged; duplicate deliveries are no-ops downstream.
func (s *Service) Process(ctx context.Context, rawBody []byte) error {
	var evt envelope
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook body")
	}

	if s.logg != nil {
		ctx = s.logg.WithField(ctx, "webhook_event", evt.Event)
	}

	switch evt.Event {
	case EventChargeSuccess:
		return s.handleChargeSuccess(ctx, evt.Data)
	case EventTransferSuccess:
		return s.handleTransferSuccess(ctx, evt.Data)
	case EventTransferFailed, EventTransferReversed:
		return s.handleTransferFailed(ctx, evt.Data)
	case EventRefundProcessed:
		if s.logg != nil {
			s.logg.Info(ctx, "refund processed by gateway")
		}
		return nil
	default:
		if s.logg != nil {
			s.logg.Info(ctx, "ignoring unhandled webhook event")
		}
		return nil
	}
}

func (s *Service) handleChargeSuccess(ctx context.Context, raw json.RawMessage) error {
	var data chargeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed charge payload")
	}
	if data.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge payload missing reference")
	}

	paidAt := time.Now()
	if data.PaidAt != "" {
		if parsed, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			paidAt = parsed
		}
	}
	return s.escrow.MarkPaymentReceived(ctx, escrow.PaymentReceivedInput{
		Reference:         data.Reference,
		PaystackReference: data.Reference,
		AmountPesewas:     data.Amount,
		PaidAt:            paidAt,
	})
}

func (s *Service) handleTransferSuccess(ctx context.Context, raw json.RawMessage) error {
	var data transferData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed transfer payload")
	}
	if data.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer payload missing reference")
	}
	return s.escrow.ConfirmTransfer(ctx, data.Reference)
}

func (s *Service) handleTransferFailed(ctx context.Context, raw json.RawMessage) error {
	var data transferData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed transfer payload")
	}
	if data.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer payload missing reference")
	}
	reason := data.Reason
	if reason == "" {
		reason = "transfer failed at gateway"
	}
	return s.escrow.RevertFailedTransfer(ctx, data.Reference, reason)
}
