package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmahub/m/domain"
)

// Account Handlers

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.NewPassword) < 8 {
		respondError(w, http.StatusBadRequest, "new_password must be at least 8 characters")
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), h.db.Rebind(`UPDATE users SET password = ? WHERE id = ?`), string(hashed), userIDFromContext(r)); err != nil {
		h.log.Error("reset password failed", zap.Int64("user_id", userIDFromContext(r)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

type accountUpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// updateAccount changes the caller's own name, email or password. Role and pharmacy
// are not editable here.
func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil && req.Email == nil && req.Password == nil {
		respondError(w, http.StatusBadRequest, "name, email or password is required")
		return
	}
	ctx := r.Context()
	uid := userIDFromContext(r)

	var name, email, hashed *string
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		if n == "" {
			respondError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		name = &n
	}
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		if !strings.Contains(e, "@") {
			respondError(w, http.StatusBadRequest, "invalid email")
			return
		}
		var taken bool
		if err := h.db.GetContext(ctx, &taken, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? AND id <> ?)`), e, uid); err != nil {
			h.log.Error("email lookup failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "unable to update account")
			return
		}
		if taken {
			respondError(w, http.StatusConflict, "email already exists")
			return
		}
		email = &e
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		b, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to secure password")
			return
		}
		p := string(b)
		hashed = &p
	}

	var user domain.User
	err := h.db.GetContext(ctx, &user, h.db.Rebind(`UPDATE users
                SET name = COALESCE(?, name), email = COALESCE(?, email), password = COALESCE(?, password)
                WHERE id = ?
                RETURNING `+staffColumns), name, email, hashed, uid)
	if err != nil {
		h.log.Error("update account failed", zap.Int64("user_id", uid), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to update account")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
