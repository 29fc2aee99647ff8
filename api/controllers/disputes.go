package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/api/responses"
	"github.com/kwabenaosei/agritrade-backend/api/validators"
	disputesvc "github.com/kwabenaosei/agritrade-backend/internal/disputes"
	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

// DisputeRaise opens a dispute on a delivered or shipped order.
func DisputeRaise(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload raiseDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Raise(r.Context(), disputesvc.RaiseInput{
			OrderID:      payload.OrderID,
			BuyerID:      buyerID,
			Reason:       payload.Reason,
			EvidenceURLs: payload.EvidenceURLs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newDisputeResponse(dispute))
	}
}

// DisputeGet returns a dispute visible to the caller.
func DisputeGet(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
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
		disputeID, err := pathUUID(r, "disputeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Get(r.Context(), disputeID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newDisputeResponse(dispute))
	}
}

// DisputesList returns disputes for admin review, optionally filtered by status.
func DisputesList(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		params, err := paginationFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.DisputeStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			candidate := enums.DisputeStatus(raw)
			if !candidate.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute status filter"))
				return
			}
			status = &candidate
		}

		page, err := svc.List(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]disputeResponse, 0, len(page.Items))
		for _, dispute := range page.Items {
			items = append(items, newDisputeResponse(&dispute))
		}
		responses.WriteSuccess(w, disputeListResponse{Items: items, Total: page.Total})
	}
}

// DisputeRespond records the seller's side of an open dispute.
func DisputeRespond(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		farmerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disputeID, err := pathUUID(r, "disputeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload respondDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Respond(r.Context(), disputesvc.RespondInput{
			DisputeID: disputeID,
			FarmerID:  farmerID,
			Response:  payload.Response,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newDisputeResponse(dispute))
	}
}

// DisputeResolve applies an admin decision and moves the escrowed money.
func DisputeResolve(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		adminID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disputeID, err := pathUUID(r, "disputeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Resolve(r.Context(), disputesvc.ResolveInput{
			DisputeID:     disputeID,
			AdminID:       adminID,
			Resolution:    enums.DisputeResolution(payload.Resolution),
			Notes:         payload.Notes,
			RefundPesewas: payload.RefundPesewas,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newDisputeResponse(dispute))
	}
}

type raiseDisputeRequest struct {
	OrderID      uuid.UUID `json:"order_id" validate:"required"`
	Reason       string    `json:"reason" validate:"required,max=2000"`
	EvidenceURLs []string  `json:"evidence_urls" validate:"omitempty,dive,url,max=1000"`
}

type respondDisputeRequest struct {
	Response string `json:"response" validate:"required,max=2000"`
}

type resolveDisputeRequest struct {
	Resolution    string `json:"resolution" validate:"required,oneof=REFUND RELEASE_TO_SELLER PARTIAL_REFUND NO_ACTION"`
	Notes         string `json:"notes" validate:"max=2000"`
	RefundPesewas int64  `json:"refund_pesewas" validate:"omitempty,min=1"`
}

type disputeListResponse struct {
	Items []disputeResponse `json:"items"`
	Total int64             `json:"total"`
}

type disputeResponse struct {
	DisputeID           uuid.UUID  `json:"dispute_id"`
	OrderID             uuid.UUID  `json:"order_id"`
	EscrowID            uuid.UUID  `json:"escrow_id"`
	RaisedByUserID      uuid.UUID  `json:"raised_by_user_id"`
	Reason              string     `json:"reason"`
	EvidenceURLs        []string   `json:"evidence_urls,omitempty"`
	SellerResponse      *string    `json:"seller_response,omitempty"`
	Status              string     `json:"status"`
	Resolution          *string    `json:"resolution,omitempty"`
	ResolutionNotes     *string    `json:"resolution_notes,omitempty"`
	RefundAmountPesewas *int64     `json:"refund_amount_pesewas,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	SellerRespondedAt   *time.Time `json:"seller_responded_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func newDisputeResponse(dispute *models.Dispute) disputeResponse {
	if dispute == nil {
		return disputeResponse{}
	}
	resp := disputeResponse{
		DisputeID:           dispute.ID,
		OrderID:             dispute.OrderID,
		EscrowID:            dispute.EscrowID,
		RaisedByUserID:      dispute.RaisedByUserID,
		Reason:              dispute.Reason,
		SellerResponse:      dispute.SellerResponse,
		Status:              string(dispute.Status),
		ResolutionNotes:     dispute.ResolutionNotes,
		RefundAmountPesewas: dispute.RefundAmountPesewas,
		ResolvedAt:          dispute.ResolvedAt,
		SellerRespondedAt:   dispute.SellerRespondedAt,
		CreatedAt:           dispute.CreatedAt,
	}
	if len(dispute.EvidenceURLs) > 0 {
		resp.EvidenceURLs = []string(dispute.EvidenceURLs)
	}
	if dispute.Resolution != nil {
		res := string(*dispute.Resolution)
		resp.Resolution = &res
	}
	return resp
}
