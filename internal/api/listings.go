package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmahub/m/domain"
)

// Listing Handlers

type listingRequest struct {
	CatalogEntryID int64   `json:"catalog_entry_id"`
	Price          float64 `json:"price"`
	Amount         int64   `json:"amount"`
}

type listingUpdateRequest struct {
	Price  *float64 `json:"price"`
	Amount *int64   `json:"amount"`
}

type listingResponse struct {
	ID             int64   `json:"id"`
	CatalogEntryID int64   `json:"catalog_entry_id"`
	Name           string  `json:"name,omitempty"`
	PharmacyID     int64   `json:"pharmacy_id"`
	Price          float64 `json:"price"`
	Amount         int64   `json:"amount"`
	UpdatedAt      string  `json:"updated_at"`
}

type listingRow struct {
	domain.Listing
	Name string `db:"name"`
}

func toListingResponse(l domain.Listing, name string) listingResponse {
	return listingResponse{
		ID:             l.ID,
		CatalogEntryID: l.CatalogEntryID,
		Name:           name,
		PharmacyID:     l.PharmacyID,
		Price:          l.Price.InexactFloat64(),
		Amount:         l.Amount,
		UpdatedAt:      l.UpdatedAt,
	}
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	var req listingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CatalogEntryID <= 0 || req.Price <= 0 || req.Amount < 0 {
		respondError(w, http.StatusBadRequest, "catalog_entry_id and a positive price are required; amount must not be negative")
		return
	}
	pharmacyID := pharmacyIDFromContext(r)
	ctx := r.Context()

	var name string
	err := h.db.GetContext(ctx, &name, h.db.Rebind(`SELECT name FROM catalog_entries WHERE id = ?`), req.CatalogEntryID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusBadRequest, "invalid catalog_entry_id")
		return
	}
	if err != nil {
		h.log.Error("catalog lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create listing")
		return
	}

	var exists bool
	if err := h.db.GetContext(ctx, &exists, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM listings WHERE catalog_entry_id = ? AND pharmacy_id = ?)`), req.CatalogEntryID, pharmacyID); err != nil {
		h.log.Error("listing lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create listing")
		return
	}
	if exists {
		respondError(w, http.StatusConflict, "this product is already listed by your pharmacy")
		return
	}

	l := domain.Listing{CatalogEntryID: req.CatalogEntryID, PharmacyID: pharmacyID, Price: decimal.NewFromFloat(req.Price).Round(2), Amount: req.Amount}
	err = h.db.QueryRowxContext(ctx, h.db.Rebind(`INSERT INTO listings (catalog_entry_id, pharmacy_id, price, amount) VALUES (?, ?, ?, ?) RETURNING id, updated_at`),
		l.CatalogEntryID, l.PharmacyID, l.Price, l.Amount).Scan(&l.ID, &l.UpdatedAt)
	if err != nil {
		// The unique pair can still race with a concurrent insert.
		h.log.Warn("insert listing failed", zap.Error(err))
		respondError(w, http.StatusConflict, "unable to create listing")
		return
	}
	h.searcher.Invalidate(ctx)
	respondJSON(w, http.StatusCreated, toListingResponse(l, name))
}

func (h *Handler) listListings(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin, domain.RoleCashier) {
		return
	}
	rows := []listingRow{}
	err := h.db.SelectContext(r.Context(), &rows, h.db.Rebind(`SELECT l.id, l.catalog_entry_id, l.pharmacy_id, l.price, l.amount, l.reserved, l.created_at, l.updated_at, c.name
                FROM listings l
                JOIN catalog_entries c ON c.id = l.catalog_entry_id
                WHERE l.pharmacy_id = ?
                ORDER BY c.name ASC`), pharmacyIDFromContext(r))
	if err != nil {
		h.log.Error("list listings failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list listings")
		return
	}
	out := make([]listingResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toListingResponse(row.Listing, row.Name))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin, domain.RoleCashier) {
		return
	}
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	var row listingRow
	err := h.db.GetContext(r.Context(), &row, h.db.Rebind(`SELECT l.id, l.catalog_entry_id, l.pharmacy_id, l.price, l.amount, l.reserved, l.created_at, l.updated_at, c.name
                FROM listings l
                JOIN catalog_entries c ON c.id = l.catalog_entry_id
                WHERE l.id = ? AND l.pharmacy_id = ?`), id, pharmacyIDFromContext(r))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		h.log.Error("get listing failed", zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to load listing")
		return
	}
	respondJSON(w, http.StatusOK, toListingResponse(row.Listing, row.Name))
}

func (h *Handler) updateListing(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	var req listingUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Price == nil && req.Amount == nil {
		respondError(w, http.StatusBadRequest, "price or amount is required")
		return
	}
	if (req.Price != nil && *req.Price <= 0) || (req.Amount != nil && *req.Amount < 0) {
		respondError(w, http.StatusBadRequest, "price must be positive and amount must not be negative")
		return
	}

	var price *decimal.Decimal
	if req.Price != nil {
		p := decimal.NewFromFloat(*req.Price).Round(2)
		price = &p
	}

	var l domain.Listing
	err := h.db.GetContext(r.Context(), &l, h.db.Rebind(`UPDATE listings
                SET price = COALESCE(?, price), amount = COALESCE(?, amount), updated_at = CURRENT_TIMESTAMP
                WHERE id = ? AND pharmacy_id = ?
                RETURNING id, catalog_entry_id, pharmacy_id, price, amount, reserved, created_at, updated_at`),
		price, req.Amount, id, pharmacyIDFromContext(r))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		h.log.Error("update listing failed", zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update listing")
		return
	}
	h.searcher.Invalidate(r.Context())
	respondJSON(w, http.StatusOK, toListingResponse(l, ""))
}

func (h *Handler) deleteListing(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	ctx := r.Context()
	pharmacyID := pharmacyIDFromContext(r)

	var owned bool
	if err := h.db.GetContext(ctx, &owned, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM listings WHERE id = ? AND pharmacy_id = ?)`), id, pharmacyID); err != nil {
		h.log.Error("listing lookup failed", zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to delete listing")
		return
	}
	if !owned {
		respondError(w, http.StatusNotFound, "listing not found")
		return
	}

	var history bool
	err := h.db.GetContext(ctx, &history, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM sales WHERE listing_id = ?) OR EXISTS(SELECT 1 FROM orders WHERE listing_id = ?)`), id, id)
	if err != nil {
		h.log.Error("listing history lookup failed", zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to delete listing")
		return
	}
	if history {
		respondError(w, http.StatusConflict, "listing has sales or orders; set its amount to 0 instead")
		return
	}

	res, err := h.db.ExecContext(ctx, h.db.Rebind(`DELETE FROM listings WHERE id = ? AND pharmacy_id = ?`), id, pharmacyID)
	if err != nil {
		h.log.Error("delete listing failed", zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to delete listing")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "listing not found")
		return
	}
	h.searcher.Invalidate(ctx)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
