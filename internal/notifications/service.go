// Package notifications turns domain events into SMS messages for the
// buyers and farmers involved. Delivery is best effort; a failed send
// never blocks the money flow that produced the event.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/mnotify"
	"github.com/kwabenaosei/agritrade-backend/pkg/outbox/payloads"
)

type userReader interface {
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Service formats and dispatches SMS notifications per event type.
type Service struct {
	users  userReader
	sender mnotify.Sender
	logg   *logger.Logger
}

// NewService builds the notification dispatcher.
func NewService(users userReader, sender mnotify.Sender, logg *logger.Logger) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user reader required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sms sender required")
	}
	return &Service{users: users, sender: sender, logg: logg}, nil
}

// Dispatch routes one decoded event payload to its SMS recipients.
// Unknown or silent event types are skipped without error.
func (s *Service) Dispatch(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage) error {
	switch eventType {
	case enums.EventEscrowPaymentReceived:
		var p payloads.EscrowPaymentReceived
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode payment payload: %w", err)
		}
		return s.send(ctx, p.FarmerID, fmt.Sprintf(
			"Order %s has been paid. %s is held in escrow until delivery is confirmed.",
			p.OrderNumber, formatGHS(p.AmountPesewas)))

	case enums.EventOrderShipped:
		var p payloads.OrderShipped
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode shipped payload: %w", err)
		}
		msg := fmt.Sprintf("Order %s is on its way.", p.OrderNumber)
		if p.TrackingReference != "" {
			msg = fmt.Sprintf("Order %s is on its way. Tracking: %s.", p.OrderNumber, p.TrackingReference)
		}
		return s.send(ctx, p.BuyerID, msg)

	case enums.EventEscrowReleased:
		var p payloads.EscrowReleased
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode released payload: %w", err)
		}
		return s.send(ctx, p.FarmerID, fmt.Sprintf(
			"Payout of %s for order %s is on the way to your bank account.",
			formatGHS(p.SellerPayoutPesewas), p.OrderNumber))

	case enums.EventEscrowRefunded:
		var p payloads.EscrowRefunded
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode refunded payload: %w", err)
		}
		return s.send(ctx, p.BuyerID, fmt.Sprintf(
			"Order %s was refunded. %s is being returned to your payment method.",
			p.OrderNumber, formatGHS(p.RefundPesewas)))

	case enums.EventDisputeRaised:
		var p payloads.DisputeRaised
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode dispute payload: %w", err)
		}
		return s.send(ctx, p.FarmerID,
			"A buyer has disputed one of your orders. Respond in the app within 48 hours.")

	case enums.EventOrderDelivered:
		var p payloads.OrderDelivered
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode delivered payload: %w", err)
		}
		return s.send(ctx, p.FarmerID, fmt.Sprintf(
			"Order %s was confirmed delivered. Your payout is being processed.", p.OrderNumber))

	default:
		return nil
	}
}

func (s *Service) send(ctx context.Context, userID uuid.UUID, message string) error {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load recipient: %w", err)
	}
	if !user.SMSNotificationsOptIn || user.PhoneNumber == "" {
		return nil
	}
	if err := s.sender.SendSMS(ctx, user.PhoneNumber, message); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "sms notification sent")
	}
	return nil
}

func formatGHS(pesewas int64) string {
	return fmt.Sprintf("GHS %d.%02d", pesewas/100, pesewas%100)
}
