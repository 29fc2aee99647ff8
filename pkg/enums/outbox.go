package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column on outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateEscrow  OutboxAggregateType = "escrow"
	AggregateDispute OutboxAggregateType = "dispute"
	AggregateCart    OutboxAggregateType = "cart"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateEscrow,
	AggregateDispute,
	AggregateCart,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column on outbox_events.
type OutboxEventType string

const (
	EventEscrowPaymentReceived   OutboxEventType = "escrow.payment_received"
	EventEscrowReleased          OutboxEventType = "escrow.released"
	EventEscrowReleaseFailed     OutboxEventType = "escrow.release_failed"
	EventEscrowRefunded          OutboxEventType = "escrow.refunded"
	EventEscrowPartiallyRefunded OutboxEventType = "escrow.partially_refunded"
	EventDisputeRaised           OutboxEventType = "dispute.raised"
	EventDisputeResolved         OutboxEventType = "dispute.resolved"
	EventOrderCreated            OutboxEventType = "order.created"
	EventOrderShipped            OutboxEventType = "order.shipped"
	EventOrderDelivered          OutboxEventType = "order.delivered"
	EventOrderCancelled          OutboxEventType = "order.cancelled"
	EventCartExpired             OutboxEventType = "cart.expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEscrowPaymentReceived,
	EventEscrowReleased,
	EventEscrowReleaseFailed,
	EventEscrowRefunded,
	EventEscrowPartiallyRefunded,
	EventDisputeRaised,
	EventDisputeResolved,
	EventOrderCreated,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderCancelled,
	EventCartExpired,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
