package controllers

import (
	"net/http"

	"github.com/kwabenaosei/agritrade-backend/api/responses"
	"github.com/kwabenaosei/agritrade-backend/api/validators"
	checkoutsvc "github.com/kwabenaosei/agritrade-backend/internal/checkout"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

// Checkout converts the buyer's active cart into an order with a pending escrow.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method := enums.DeliveryMethod(payload.DeliveryMethod)
		if !method.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery method"))
			return
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			BuyerID:         buyerID,
			DeliveryMethod:  method,
			DeliveryAddress: payload.DeliveryAddress,
			DeliveryNotes:   payload.DeliveryNotes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	DeliveryMethod  string `json:"delivery_method" validate:"required,oneof=PICKUP DELIVERY"`
	DeliveryAddress string `json:"delivery_address" validate:"max=500"`
	DeliveryNotes   string `json:"delivery_notes" validate:"max=1000"`
}
