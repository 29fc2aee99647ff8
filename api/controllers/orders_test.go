package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/api/middleware"
	ordersvc "github.com/kwabenaosei/agritrade-backend/internal/orders"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/pagination"
)

type stubOrdersService struct {
	order       *models.Order
	page        *pagination.Page[models.Order]
	err         error
	listInput   ordersvc.ListInput
	shipInput   ordersvc.ShipInput
	cancelInput ordersvc.CancelInput
}

func (s *stubOrdersService) List(ctx context.Context, input ordersvc.ListInput) (*pagination.Page[models.Order], error) {
	s.listInput = input
	return s.page, s.err
}

func (s *stubOrdersService) Get(ctx context.Context, orderID, userID uuid.UUID, role enums.UserRole) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrdersService) Ship(ctx context.Context, input ordersvc.ShipInput) (*models.Order, error) {
	s.shipInput = input
	return s.order, s.err
}

func (s *stubOrdersService) ConfirmDelivery(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrdersService) ConfirmPickup(ctx context.Context, orderID, userID uuid.UUID, role enums.UserRole) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrdersService) Cancel(ctx context.Context, input ordersvc.CancelInput) (*models.Order, error) {
	s.cancelInput = input
	return s.order, s.err
}

func roleRequest(method, target, body string, userID uuid.UUID, role enums.UserRole) *http.Request {
	req := authedRequest(method, target, body, userID)
	return req.WithContext(middleware.WithRole(req.Context(), string(role)))
}

func sampleOrder(buyerID, farmerID uuid.UUID) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD-1700000000-4F2A9C",
		BuyerID:         buyerID,
		FarmerID:        farmerID,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		SubtotalPesewas: 8500,
		TotalPesewas:    10925,
		DeliveryMethod:  enums.DeliveryMethodDelivery,
	}
}

func TestOrdersListScopesToCaller(t *testing.T) {
	buyerID := uuid.New()
	stub := &stubOrdersService{page: &pagination.Page[models.Order]{
		Items: []models.Order{*sampleOrder(buyerID, uuid.New())},
		Total: 1,
	}}
	handler := OrdersList(stub, nil)

	req := roleRequest(http.MethodGet, "/api/v1/orders?page=2&page_size=10", "", buyerID, enums.UserRoleBuyer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.listInput.UserID != buyerID {
		t.Fatalf("expected caller id %s got %s", buyerID, stub.listInput.UserID)
	}
	if stub.listInput.Role != enums.UserRoleBuyer {
		t.Fatalf("unexpected role: %s", stub.listInput.Role)
	}
	if stub.listInput.Params.Page != 2 || stub.listInput.Params.PageSize != 10 {
		t.Fatalf("unexpected pagination: %+v", stub.listInput.Params)
	}

	var envelope struct {
		Data orderListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Total != 1 || len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected page shape: total=%d items=%d", envelope.Data.Total, len(envelope.Data.Items))
	}
}

func TestOrdersListRejectsUnknownStatusFilter(t *testing.T) {
	handler := OrdersList(&stubOrdersService{}, nil)

	req := roleRequest(http.MethodGet, "/api/v1/orders?status=TELEPORTED", "", uuid.New(), enums.UserRoleBuyer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderShipForwardsDispatchDetails(t *testing.T) {
	farmerID := uuid.New()
	orderID := uuid.New()
	stub := &stubOrdersService{order: sampleOrder(uuid.New(), farmerID)}
	handler := OrderShip(stub, nil)

	body := `{"tracking_reference":"GH-TRK-889","courier_name":"Swift Lines"}`
	req := roleRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/ship", body, farmerID, enums.UserRoleFarmer)
	req = withChiParam(req, "orderID", orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.shipInput.OrderID != orderID {
		t.Fatalf("expected order id %s got %s", orderID, stub.shipInput.OrderID)
	}
	if stub.shipInput.TrackingReference != "GH-TRK-889" {
		t.Fatalf("unexpected tracking reference: %s", stub.shipInput.TrackingReference)
	}
	if stub.shipInput.CourierName != "Swift Lines" {
		t.Fatalf("unexpected courier: %s", stub.shipInput.CourierName)
	}
}

func TestOrderShipAllowsEmptyBody(t *testing.T) {
	farmerID := uuid.New()
	orderID := uuid.New()
	stub := &stubOrdersService{order: sampleOrder(uuid.New(), farmerID)}
	handler := OrderShip(stub, nil)

	req := roleRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/ship", "", farmerID, enums.UserRoleFarmer)
	req = withChiParam(req, "orderID", orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.shipInput.TrackingReference != "" || stub.shipInput.CourierName != "" {
		t.Fatalf("expected empty dispatch details, got %+v", stub.shipInput)
	}
}

func TestOrderCancelPropagatesStateConflict(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")}
	handler := OrderCancel(stub, nil)

	req := roleRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", `{"reason":"changed my mind"}`, uuid.New(), enums.UserRoleBuyer)
	req = withChiParam(req, "orderID", orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if stub.cancelInput.Reason != "changed my mind" {
		t.Fatalf("unexpected reason: %s", stub.cancelInput.Reason)
	}
}

func TestOrderGetRejectsMalformedID(t *testing.T) {
	handler := OrderGet(&stubOrdersService{}, nil)

	req := roleRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", "", uuid.New(), enums.UserRoleBuyer)
	req = withChiParam(req, "orderID", "not-a-uuid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
