package controllers

import (
	"net/http"

	"github.com/kwabenaosei/agritrade-backend/api/responses"
	"github.com/kwabenaosei/agritrade-backend/api/validators"
	escrowsvc "github.com/kwabenaosei/agritrade-backend/internal/escrow"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

// AdminEscrowRelease forces payout of a held escrow.
func AdminEscrowRelease(svc escrowsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		adminID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := pathUUID(r, "escrowID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Release(r.Context(), escrowsvc.ReleaseInput{
			EscrowID: escrowID,
			Trigger:  escrowsvc.TriggerAdmin,
			ActorID:  adminID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

// AdminEscrowRefund returns a held escrow to the buyer, in full or in part.
func AdminEscrowRefund(svc escrowsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		adminID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := pathUUID(r, "escrowID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundEscrowRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if payload.RefundPesewas > 0 {
			err = svc.PartialRefund(r.Context(), escrowsvc.PartialRefundInput{
				EscrowID:      escrowID,
				RefundPesewas: payload.RefundPesewas,
				ActorID:       adminID,
			})
		} else {
			err = svc.Refund(r.Context(), escrowsvc.RefundInput{
				EscrowID: escrowID,
				ActorID:  adminID,
				Note:     payload.Note,
			})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "refunded"})
	}
}

type refundEscrowRequest struct {
	RefundPesewas int64  `json:"refund_pesewas" validate:"omitempty,min=1"`
	Note          string `json:"note" validate:"max=500"`
}
