package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	checkoutsvc "github.com/kwabenaosei/agritrade-backend/internal/checkout"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
)

type stubCheckoutService struct {
	result *checkoutsvc.Result
	err    error
	input  checkoutsvc.Input
}

func (s *stubCheckoutService) Checkout(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	s.input = input
	return s.result, s.err
}

func TestCheckoutSuccess(t *testing.T) {
	buyerID := uuid.New()
	result := &checkoutsvc.Result{
		OrderID:            uuid.New(),
		OrderNumber:        "ORD-1700000000-4F2A9C",
		EscrowID:           uuid.New(),
		SubtotalPesewas:    8500,
		PlatformFeePesewas: 425,
		DeliveryFeePesewas: 2000,
		TotalPesewas:       10925,
	}
	stub := &stubCheckoutService{result: result}
	handler := Checkout(stub, nil)

	body := `{"delivery_method":"DELIVERY","delivery_address":"12 Ring Road, Accra"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout", body, buyerID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if stub.input.DeliveryMethod != enums.DeliveryMethodDelivery {
		t.Fatalf("unexpected delivery method: %s", stub.input.DeliveryMethod)
	}
	if stub.input.BuyerID != buyerID {
		t.Fatalf("unexpected buyer id: %s", stub.input.BuyerID)
	}

	var envelope struct {
		Data checkoutsvc.Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TotalPesewas != 10925 {
		t.Fatalf("unexpected total: %d", envelope.Data.TotalPesewas)
	}
}

func TestCheckoutRejectsUnknownDeliveryMethod(t *testing.T) {
	handler := Checkout(&stubCheckoutService{}, nil)

	body := `{"delivery_method":"DRONE"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutPropagatesEmptyCartConflict(t *testing.T) {
	stub := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")}
	handler := Checkout(stub, nil)

	body := `{"delivery_method":"PICKUP"}`
	req := authedRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected error code: %s", envelope.Error.Code)
	}
}
