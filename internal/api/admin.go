package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmahub/m/domain"
	"pharmahub/m/internal/discovery"
)

// Pharmacy Handlers

type pharmacyRequest struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Address   string  `json:"address"`
	Hours     string  `json:"hours"`
	AllNight  bool    `json:"all_night"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// normalize trims the request and returns a validation message, or "" when it is valid.
func (req *pharmacyRequest) normalize() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Email == "" || req.Phone == "" {
		return "name, email and phone are required"
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return "latitude or longitude out of range"
	}
	return ""
}

func (h *Handler) createPharmacy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleSystemAdmin) {
		return
	}
	var req pharmacyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.normalize(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	var taken bool
	err := h.db.GetContext(r.Context(), &taken, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM pharmacies WHERE name = ? OR email = ? OR phone = ?)`), req.Name, req.Email, req.Phone)
	if err != nil {
		h.log.Error("pharmacy lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create pharmacy")
		return
	}
	if taken {
		respondError(w, http.StatusConflict, "a pharmacy with this name, email or phone already exists")
		return
	}

	creator := userIDFromContext(r)
	p := domain.Pharmacy{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address, Hours: req.Hours,
		AllNight: req.AllNight, Latitude: req.Latitude, Longitude: req.Longitude, CreatorID: &creator,
	}
	err = h.db.QueryRowxContext(r.Context(), h.db.Rebind(`INSERT INTO pharmacies (name, email, phone, address, hours, all_night, latitude, longitude, creator_id)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id, created_at`),
		p.Name, p.Email, p.Phone, p.Address, p.Hours, p.AllNight, p.Latitude, p.Longitude, p.CreatorID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		h.log.Error("insert pharmacy failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create pharmacy")
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// updatePharmacy replaces a pharmacy's details. Moving a pharmacy changes search distances.
func (h *Handler) updatePharmacy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleSystemAdmin) {
		return
	}
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid pharmacy id")
		return
	}
	var req pharmacyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.normalize(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	ctx := r.Context()

	var taken bool
	err := h.db.GetContext(ctx, &taken, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM pharmacies WHERE id <> ? AND (name = ? OR email = ? OR phone = ?))`), id, req.Name, req.Email, req.Phone)
	if err != nil {
		h.log.Error("pharmacy lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update pharmacy")
		return
	}
	if taken {
		respondError(w, http.StatusConflict, "a pharmacy with this name, email or phone already exists")
		return
	}

	var p domain.Pharmacy
	err = h.db.GetContext(ctx, &p, h.db.Rebind(`UPDATE pharmacies
                SET name = ?, email = ?, phone = ?, address = ?, hours = ?, all_night = ?, latitude = ?, longitude = ?
                WHERE id = ?
                RETURNING id, name, email, phone, address, hours, all_night, latitude, longitude, creator_id, created_at`),
		req.Name, req.Email, req.Phone, req.Address, req.Hours, req.AllNight, req.Latitude, req.Longitude, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "pharmacy not found")
		return
	}
	if err != nil {
		h.log.Error("update pharmacy failed", zap.Int64("pharmacy_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update pharmacy")
		return
	}
	h.searcher.Invalidate(ctx)
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) listPharmacies(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleSystemAdmin) {
		return
	}
	pharmacies := []domain.Pharmacy{}
	if err := h.db.SelectContext(r.Context(), &pharmacies, `SELECT id, name, email, phone, address, hours, all_night, latitude, longitude, creator_id, created_at FROM pharmacies ORDER BY name ASC`); err != nil {
		h.log.Error("list pharmacies failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list pharmacies")
		return
	}
	respondJSON(w, http.StatusOK, pharmacies)
}

// Category Handlers

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleSystemAdmin) {
		return
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := domain.Category{Name: strings.TrimSpace(req.Name), Description: req.Description, Image: nullIfEmpty(req.Image)}
	if c.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	var exists bool
	if err := h.db.GetContext(r.Context(), &exists, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM categories WHERE name = ?)`), c.Name); err != nil {
		h.log.Error("category lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create category")
		return
	}
	if exists {
		respondError(w, http.StatusConflict, "category already exists")
		return
	}

	err := h.db.QueryRowxContext(r.Context(), h.db.Rebind(`INSERT INTO categories (name, description, image) VALUES (?, ?, ?) RETURNING id`), c.Name, c.Description, c.Image).Scan(&c.ID)
	if err != nil {
		h.log.Error("insert category failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create category")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories := []domain.Category{}
	if err := h.db.SelectContext(r.Context(), &categories, `SELECT id, name, description, image FROM categories ORDER BY name ASC`); err != nil {
		h.log.Error("list categories failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list categories")
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

// Catalog Handlers

type catalogRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ReferencePrice float64 `json:"reference_price"`
	CategoryID     *int64  `json:"category_id"`
	Image          string  `json:"image"`
}

type catalogResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ReferencePrice float64 `json:"reference_price"`
	CategoryID     *int64  `json:"category_id,omitempty"`
	Image          *string `json:"image,omitempty"`
}

func toCatalogResponse(e domain.CatalogEntry) catalogResponse {
	return catalogResponse{
		ID:             e.ID,
		Name:           e.Name,
		Description:    e.Description,
		ReferencePrice: e.ReferencePrice.InexactFloat64(),
		CategoryID:     e.CategoryID,
		Image:          e.Image,
	}
}

func (h *Handler) createCatalogEntry(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleSystemAdmin) {
		return
	}
	var req catalogRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	e := domain.CatalogEntry{
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		ReferencePrice: decimal.NewFromFloat(req.ReferencePrice).Round(2),
		CategoryID:     req.CategoryID,
		Image:          nullIfEmpty(req.Image),
	}
	if e.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if e.ReferencePrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "reference_price must not be negative")
		return
	}

	var exists bool
	if err := h.db.GetContext(r.Context(), &exists, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM catalog_entries WHERE name = ?)`), e.Name); err != nil {
		h.log.Error("catalog lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create catalog entry")
		return
	}
	if exists {
		respondError(w, http.StatusConflict, "catalog entry already exists")
		return
	}
	if e.CategoryID != nil {
		var found bool
		if err := h.db.GetContext(r.Context(), &found, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)`), *e.CategoryID); err != nil || !found {
			respondError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
	}

	err := h.db.QueryRowxContext(r.Context(), h.db.Rebind(`INSERT INTO catalog_entries (name, description, reference_price, category_id, image) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		e.Name, e.Description, e.ReferencePrice, e.CategoryID, e.Image).Scan(&e.ID)
	if err != nil {
		h.log.Error("insert catalog entry failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to create catalog entry")
		return
	}
	respondJSON(w, http.StatusCreated, toCatalogResponse(e))
}

func (h *Handler) searchCatalog(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleSystemAdmin, domain.RolePharmacyAdmin) {
		return
	}
	term := discovery.LikePattern(r.URL.Query().Get("q"))
	entries := []domain.CatalogEntry{}
	query := h.db.Rebind(`SELECT id, name, description, reference_price, category_id, image FROM catalog_entries WHERE LOWER(name) LIKE ? ESCAPE '\' ORDER BY name ASC LIMIT 50`)
	if err := h.db.SelectContext(r.Context(), &entries, query, term); err != nil {
		h.log.Error("search catalog failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to search catalog")
		return
	}
	out := make([]catalogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCatalogResponse(e))
	}
	respondJSON(w, http.StatusOK, out)
}
