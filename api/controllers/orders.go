package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/api/responses"
	"github.com/kwabenaosei/agritrade-backend/api/validators"
	ordersvc "github.com/kwabenaosei/agritrade-backend/internal/orders"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/pagination"
)

// OrdersList returns the caller's orders, scoped by role.
func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := roleFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := paginationFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			candidate := enums.OrderStatus(raw)
			if !candidate.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter"))
				return
			}
			status = &candidate
		}

		page, err := svc.List(r.Context(), ordersvc.ListInput{
			UserID: userID,
			Role:   role,
			Status: status,
			Params: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderResponse, 0, len(page.Items))
		for _, order := range page.Items {
			items = append(items, newOrderResponse(&order))
		}
		responses.WriteSuccess(w, orderListResponse{Items: items, Total: page.Total})
	}
}

// OrderGet returns a single order visible to the caller.
func OrderGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := roleFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderShip records dispatch details for a delivery order.
func OrderShip(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		farmerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Ship(r.Context(), ordersvc.ShipInput{
			OrderID:           orderID,
			FarmerID:          farmerID,
			TrackingReference: payload.TrackingReference,
			CourierName:       payload.CourierName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderConfirmDelivery lets the buyer acknowledge receipt and trigger payout.
func OrderConfirmDelivery(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmDelivery(r.Context(), orderID, buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderConfirmPickup records one party's pickup confirmation.
func OrderConfirmPickup(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := roleFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmPickup(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderCancel voids an order that has not been paid yet.
func OrderCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := roleFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(r.Context(), ordersvc.CancelInput{
			OrderID: orderID,
			UserID:  userID,
			Role:    role,
			Reason:  payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func paginationFromRequest(r *http.Request) (pagination.Params, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
	if err != nil {
		return pagination.Params{}, err
	}
	pageSize, err := validators.ParseQueryInt(r, "page_size", 20, 1, 100)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, PageSize: pageSize}, nil
}

type shipOrderRequest struct {
	TrackingReference string `json:"tracking_reference" validate:"max=120"`
	CourierName       string `json:"courier_name" validate:"max=120"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type orderListResponse struct {
	Items []orderResponse `json:"items"`
	Total int64           `json:"total"`
}

type orderResponse struct {
	OrderID            uuid.UUID           `json:"order_id"`
	OrderNumber        string              `json:"order_number"`
	BuyerID            uuid.UUID           `json:"buyer_id"`
	FarmerID           uuid.UUID           `json:"farmer_id"`
	Status             string              `json:"status"`
	PaymentStatus      string              `json:"payment_status"`
	SubtotalPesewas    int64               `json:"subtotal_pesewas"`
	PlatformFeePesewas int64               `json:"platform_fee_pesewas"`
	DeliveryFeePesewas int64               `json:"delivery_fee_pesewas"`
	TotalPesewas       int64               `json:"total_pesewas"`
	DeliveryMethod     string              `json:"delivery_method"`
	DeliveryAddress    *string             `json:"delivery_address,omitempty"`
	TrackingReference  *string             `json:"tracking_reference,omitempty"`
	CourierName        *string             `json:"courier_name,omitempty"`
	ShippedAt          *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	Items              []orderItemResponse `json:"items"`
	Escrow             *escrowResponse     `json:"escrow,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ProductID        uuid.UUID `json:"product_id"`
	ProductName      string    `json:"product_name"`
	Unit             string    `json:"unit"`
	Quantity         int64     `json:"quantity"`
	UnitPricePesewas int64     `json:"unit_price_pesewas"`
	LineTotalPesewas int64     `json:"line_total_pesewas"`
}

type escrowResponse struct {
	EscrowID              uuid.UUID  `json:"escrow_id"`
	Reference             string     `json:"reference"`
	Status                string     `json:"status"`
	AmountPesewas         int64      `json:"amount_pesewas"`
	PlatformFeePesewas    int64      `json:"platform_fee_pesewas"`
	SellerPayoutPesewas   int64      `json:"seller_payout_pesewas"`
	RefundedAmountPesewas int64      `json:"refunded_amount_pesewas"`
	AutoReleaseDate       *time.Time `json:"auto_release_date,omitempty"`
	DisputeDeadline       *time.Time `json:"dispute_deadline,omitempty"`
	PaidAt                *time.Time `json:"paid_at,omitempty"`
	ReleasedAt            *time.Time `json:"released_at,omitempty"`
	RefundedAt            *time.Time `json:"refunded_at,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			Unit:             item.Unit,
			Quantity:         item.Quantity,
			UnitPricePesewas: item.UnitPricePesewas,
			LineTotalPesewas: item.LineTotalPesewas,
		})
	}
	resp := orderResponse{
		OrderID:            order.ID,
		OrderNumber:        order.OrderNumber,
		BuyerID:            order.BuyerID,
		FarmerID:           order.FarmerID,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		SubtotalPesewas:    order.SubtotalPesewas,
		PlatformFeePesewas: order.PlatformFeePesewas,
		DeliveryFeePesewas: order.DeliveryFeePesewas,
		TotalPesewas:       order.TotalPesewas,
		DeliveryMethod:     string(order.DeliveryMethod),
		DeliveryAddress:    order.DeliveryAddress,
		TrackingReference:  order.TrackingReference,
		CourierName:        order.CourierName,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CompletedAt:        order.CompletedAt,
		CancelledAt:        order.CancelledAt,
		Items:              items,
		CreatedAt:          order.CreatedAt,
	}
	if order.Escrow != nil {
		resp.Escrow = newEscrowResponse(order.Escrow)
	}
	return resp
}

func newEscrowResponse(esc *models.EscrowTransaction) *escrowResponse {
	if esc == nil {
		return nil
	}
	return &escrowResponse{
		EscrowID:              esc.ID,
		Reference:             esc.Reference,
		Status:                string(esc.Status),
		AmountPesewas:         esc.AmountPesewas,
		PlatformFeePesewas:    esc.PlatformFeePesewas,
		SellerPayoutPesewas:   esc.SellerPayoutPesewas,
		RefundedAmountPesewas: esc.RefundedAmountPesewas,
		AutoReleaseDate:       esc.AutoReleaseDate,
		DisputeDeadline:       esc.DisputeDeadline,
		PaidAt:                esc.PaidAt,
		ReleasedAt:            esc.ReleasedAt,
		RefundedAt:            esc.RefundedAt,
	}
}
