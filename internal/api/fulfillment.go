package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pharmahub/m/domain"
	"pharmahub/m/internal/fulfillment"
)

// Fulfillment Handlers

type saleRequest struct {
	Products []fulfillment.Line `json:"products"`
	Lines    []fulfillment.Line `json:"lines"`
}

type orderRequest struct {
	Cart  []fulfillment.Line `json:"cart"`
	Lines []fulfillment.Line `json:"lines"`
}

type lineResponse struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"productId"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	Fulfilled *bool   `json:"fulfilled,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

type fulfillmentResponse struct {
	Message     string         `json:"message"`
	Receipt     string         `json:"receipt"`
	Lines       []lineResponse `json:"lines"`
	TotalAmount float64        `json:"totalAmount"`
}

func toLineResponse(l domain.TransactionLine) lineResponse {
	return lineResponse{
		ID:        l.ID,
		ProductID: l.ListingID,
		Quantity:  l.Quantity,
		Price:     l.Price.InexactFloat64(),
		Fulfilled: l.Fulfilled,
		CreatedAt: l.CreatedAt,
	}
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleCashier) {
		return
	}
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines := req.Products
	if len(lines) == 0 {
		lines = req.Lines
	}
	h.fulfill(w, r, lines, "Sale completed.")
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleCustomer) {
		return
	}
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines := req.Cart
	if len(lines) == 0 {
		lines = req.Lines
	}
	h.fulfill(w, r, lines, "Order has been placed.")
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request, lines []fulfillment.Line, message string) {
	actor := fulfillment.Actor{
		ID:         userIDFromContext(r),
		Role:       roleFromContext(r),
		PharmacyID: pharmacyIDFromContext(r),
	}
	res, err := h.engine.Fulfill(r.Context(), actor, lines)
	switch {
	case errors.Is(err, fulfillment.ErrInvalidLines), errors.Is(err, fulfillment.ErrUnsupportedRole):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, fulfillment.ErrNothingFulfillable):
		respondError(w, http.StatusBadRequest, "none of the requested products has enough stock")
		return
	case errors.Is(err, fulfillment.ErrPaymentDeclined):
		respondError(w, http.StatusPaymentRequired, "payment declined")
		return
	case err != nil:
		h.log.Error("fulfillment failed", zap.Int64("actor_id", actor.ID), zap.String("role", actor.Role), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to complete request")
		return
	}

	h.searcher.Invalidate(r.Context())

	out := fulfillmentResponse{
		Message:     message,
		Receipt:     res.Receipt,
		Lines:       make([]lineResponse, 0, len(res.Lines)),
		TotalAmount: res.TotalAmount.InexactFloat64(),
	}
	for _, l := range res.Lines {
		out.Lines = append(out.Lines, toLineResponse(l))
	}
	respondJSON(w, http.StatusCreated, out)
}
