package api

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pharmahub/m/domain"
)

// Staff Handlers

const staffColumns = `id, name, email, role, pharmacy_id, creator_id, created_at`

type staffRequest struct {
	registerRequest
	Role string `json:"role"`
}

// createStaff lets a pharmacy admin add cashiers and other admins to their own pharmacy.
func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	var req staffRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role != domain.RoleCashier && req.Role != domain.RolePharmacyAdmin {
		respondError(w, http.StatusBadRequest, "role must be cashier or pharmacy_admin")
		return
	}
	pharmacyID := pharmacyIDFromContext(r)
	user, status, msg := h.createUser(r, req.registerRequest, req.Role, &pharmacyID)
	if status != 0 {
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// listStaff lists the caller's pharmacy staff, optionally filtered by ?role=.
func (h *Handler) listStaff(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	query := `SELECT ` + staffColumns + ` FROM users WHERE pharmacy_id = ?`
	args := []any{pharmacyIDFromContext(r)}
	switch role := r.URL.Query().Get("role"); role {
	case "":
	case domain.RoleCashier, domain.RolePharmacyAdmin:
		query += ` AND role = ?`
		args = append(args, role)
	default:
		respondError(w, http.StatusBadRequest, "role must be cashier or pharmacy_admin")
		return
	}

	staff := []domain.User{}
	if err := h.db.SelectContext(r.Context(), &staff, h.db.Rebind(query+` ORDER BY name ASC, id ASC`), args...); err != nil {
		h.log.Error("list staff failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list staff")
		return
	}
	respondJSON(w, http.StatusOK, staff)
}

func (h *Handler) getStaff(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid staff id")
		return
	}
	var user domain.User
	err := h.db.GetContext(r.Context(), &user, h.db.Rebind(`SELECT `+staffColumns+` FROM users WHERE id = ? AND pharmacy_id = ?`), id, pharmacyIDFromContext(r))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "staff member not found")
		return
	}
	if err != nil {
		h.log.Error("get staff failed", zap.Int64("user_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to load staff member")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// deleteStaff removes a staff account of the caller's pharmacy. Cashiers with recorded
// sales are kept so the sales ledger stays attributable.
func (h *Handler) deleteStaff(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	id, ok := idParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid staff id")
		return
	}
	if id == userIDFromContext(r) {
		respondError(w, http.StatusBadRequest, "you cannot delete your own account")
		return
	}
	ctx := r.Context()
	pharmacyID := pharmacyIDFromContext(r)

	var found bool
	if err := h.db.GetContext(ctx, &found, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ? AND pharmacy_id = ?)`), id, pharmacyID); err != nil {
		h.log.Error("staff lookup failed", zap.Int64("user_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to delete staff member")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "staff member not found")
		return
	}

	var history bool
	if err := h.db.GetContext(ctx, &history, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM sales WHERE cashier_id = ?)`), id); err != nil {
		h.log.Error("staff history lookup failed", zap.Int64("user_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to delete staff member")
		return
	}
	if history {
		respondError(w, http.StatusConflict, "staff member has recorded sales")
		return
	}

	if _, err := h.db.ExecContext(ctx, h.db.Rebind(`DELETE FROM users WHERE id = ? AND pharmacy_id = ?`), id, pharmacyID); err != nil {
		h.log.Error("delete staff failed", zap.Int64("user_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to delete staff member")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
