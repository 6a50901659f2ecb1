package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmahub/m/domain"
)

type ctxKey string

const (
	ctxUserID     ctxKey = "userID"
	ctxRole       ctxKey = "role"
	ctxPharmacyID ctxKey = "pharmacyID"
)

// Authentication helpers

type authClaims struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	PharmacyID int64  `json:"pharmacy_id,omitempty"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, role string, pharmacyID int64) (string, error) {
	claims := authClaims{
		UserID:     userID,
		Role:       role,
		PharmacyID: pharmacyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.UserID <= 0 || claims.Role == "" {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		staff := claims.Role == domain.RolePharmacyAdmin || claims.Role == domain.RoleCashier
		if staff && claims.PharmacyID <= 0 {
			respondError(w, http.StatusForbidden, "user is not linked to a pharmacy")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		ctx = context.WithValue(ctx, ctxPharmacyID, claims.PharmacyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func userIDFromContext(r *http.Request) int64 {
	if val := r.Context().Value(ctxUserID); val != nil {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

func roleFromContext(r *http.Request) string {
	role, _ := r.Context().Value(ctxRole).(string)
	return role
}

func pharmacyIDFromContext(r *http.Request) int64 {
	if val := r.Context().Value(ctxPharmacyID); val != nil {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

// Auth Handlers

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var user domain.User
	err := h.db.GetContext(r.Context(), &user, h.db.Rebind(`SELECT id, name, email, password, role, pharmacy_id, creator_id, created_at FROM users WHERE email = ?`), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			h.log.Error("login lookup failed", zap.Error(err))
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	var pharmacyID int64
	if user.PharmacyID != nil {
		pharmacyID = *user.PharmacyID
	}
	token, err := h.generateToken(user.ID, user.Role, pharmacyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) registerCustomer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, status, msg := h.createUser(r, req, domain.RoleCustomer, nil)
	if status != 0 {
		respondError(w, status, msg)
		return
	}

	token, err := h.generateToken(user.ID, user.Role, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: *user})
}

// createUser validates and inserts an account. A non-zero status reports a client or
// server failure to relay.
func (h *Handler) createUser(r *http.Request, req registerRequest, role string, pharmacyID *int64) (*domain.User, int, string) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, http.StatusBadRequest, "name, email and password are required"
	}
	if !strings.Contains(req.Email, "@") {
		return nil, http.StatusBadRequest, "invalid email"
	}
	if len(req.Password) < 8 {
		return nil, http.StatusBadRequest, "password must be at least 8 characters"
	}

	var exists bool
	if err := h.db.GetContext(r.Context(), &exists, h.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`), req.Email); err != nil {
		h.log.Error("email lookup failed", zap.Error(err))
		return nil, http.StatusInternalServerError, "unable to create account"
	}
	if exists {
		return nil, http.StatusConflict, "email already exists"
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, http.StatusInternalServerError, "unable to secure password"
	}

	user := domain.User{Name: req.Name, Email: req.Email, Role: role, PharmacyID: pharmacyID}
	if creator := userIDFromContext(r); creator > 0 {
		user.CreatorID = &creator
	}
	err = h.db.QueryRowxContext(r.Context(), h.db.Rebind(`INSERT INTO users (name, email, password, role, pharmacy_id, creator_id) VALUES (?, ?, ?, ?, ?, ?) RETURNING id, created_at`),
		user.Name, user.Email, string(hashed), user.Role, user.PharmacyID, user.CreatorID).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		h.log.Error("insert user failed", zap.String("role", role), zap.Error(err))
		return nil, http.StatusInternalServerError, "unable to create account"
	}
	return &user, 0, ""
}
