// Package payloads holds the typed Data structs stored inside outbox
// event envelopes. Consumers decode against these shapes.
package payloads

import (
	"time"

	"github.com/google/uuid"
)

// EscrowPaymentReceived is emitted when a webhook confirms a charge.
type EscrowPaymentReceived struct {
	OrderID         uuid.UUID `json:"orderId"`
	EscrowID        uuid.UUID `json:"escrowId"`
	OrderNumber     string    `json:"orderNumber"`
	BuyerID         uuid.UUID `json:"buyerId"`
	FarmerID        uuid.UUID `json:"farmerId"`
	AmountPesewas   int64     `json:"amountPesewas"`
	AutoReleaseDate time.Time `json:"autoReleaseDate"`
}

// EscrowReleased is emitted when held funds move to the seller.
type EscrowReleased struct {
	OrderID             uuid.UUID `json:"orderId"`
	EscrowID            uuid.UUID `json:"escrowId"`
	OrderNumber         string    `json:"orderNumber"`
	FarmerID            uuid.UUID `json:"farmerId"`
	SellerPayoutPesewas int64     `json:"sellerPayoutPesewas"`
	TransferReference   string    `json:"transferReference"`
	Trigger             string    `json:"trigger"`
}

// EscrowReleaseFailed is emitted when a transfer attempt fails and the
// escrow stays held, so operators can follow up.
type EscrowReleaseFailed struct {
	OrderID  uuid.UUID `json:"orderId"`
	EscrowID uuid.UUID `json:"escrowId"`
	Reason   string    `json:"reason"`
}

// EscrowRefunded is emitted on a full refund to the buyer.
type EscrowRefunded struct {
	OrderID        uuid.UUID `json:"orderId"`
	EscrowID       uuid.UUID `json:"escrowId"`
	OrderNumber    string    `json:"orderNumber"`
	BuyerID        uuid.UUID `json:"buyerId"`
	RefundPesewas  int64     `json:"refundPesewas"`
	ResolutionNote string    `json:"resolutionNote,omitempty"`
}

// EscrowPartiallyRefunded is emitted on a split resolution.
type EscrowPartiallyRefunded struct {
	OrderID             uuid.UUID `json:"orderId"`
	EscrowID            uuid.UUID `json:"escrowId"`
	BuyerID             uuid.UUID `json:"buyerId"`
	FarmerID            uuid.UUID `json:"farmerId"`
	RefundPesewas       int64     `json:"refundPesewas"`
	SellerPayoutPesewas int64     `json:"sellerPayoutPesewas"`
}

// DisputeRaised is emitted when a buyer opens a dispute.
type DisputeRaised struct {
	DisputeID uuid.UUID `json:"disputeId"`
	OrderID   uuid.UUID `json:"orderId"`
	EscrowID  uuid.UUID `json:"escrowId"`
	RaisedBy  uuid.UUID `json:"raisedBy"`
	FarmerID  uuid.UUID `json:"farmerId"`
	Reason    string    `json:"reason"`
}

// DisputeResolved is emitted when an admin closes a dispute.
type DisputeResolved struct {
	DisputeID  uuid.UUID `json:"disputeId"`
	OrderID    uuid.UUID `json:"orderId"`
	EscrowID   uuid.UUID `json:"escrowId"`
	Resolution string    `json:"resolution"`
	ResolvedBy uuid.UUID `json:"resolvedBy"`
}

// OrderCreated is emitted at checkout.
type OrderCreated struct {
	OrderID      uuid.UUID `json:"orderId"`
	OrderNumber  string    `json:"orderNumber"`
	BuyerID      uuid.UUID `json:"buyerId"`
	FarmerID     uuid.UUID `json:"farmerId"`
	TotalPesewas int64     `json:"totalPesewas"`
	ItemCount    int       `json:"itemCount"`
}

// OrderShipped is emitted when the seller marks an order shipped.
type OrderShipped struct {
	OrderID           uuid.UUID `json:"orderId"`
	OrderNumber       string    `json:"orderNumber"`
	BuyerID           uuid.UUID `json:"buyerId"`
	TrackingReference string    `json:"trackingReference,omitempty"`
	CourierName       string    `json:"courierName,omitempty"`
}

// OrderDelivered is emitted when delivery is confirmed.
type OrderDelivered struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	BuyerID     uuid.UUID `json:"buyerId"`
	FarmerID    uuid.UUID `json:"farmerId"`
}

// OrderCancelled is emitted on a pre-payment cancellation.
type OrderCancelled struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CancelledBy uuid.UUID `json:"cancelledBy"`
	Reason      string    `json:"reason,omitempty"`
}

// CartExpired is emitted by the expiry sweep for each retired cart.
type CartExpired struct {
	CartID  uuid.UUID `json:"cartId"`
	BuyerID uuid.UUID `json:"buyerId"`
}
