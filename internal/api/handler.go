package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"pharmahub/m/internal/discovery"
	"pharmahub/m/internal/fulfillment"
	"pharmahub/m/internal/logger"
)

// Options carries the optional collaborators of a Handler.
type Options struct {
	Engine      *fulfillment.Engine
	Searcher    *discovery.Searcher
	Metrics     http.Handler
	CORSOrigins []string
	Logger      *zap.Logger
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db       *sqlx.DB
	secret   string
	engine   *fulfillment.Engine
	searcher *discovery.Searcher
	metrics  http.Handler
	origins  []string
	log      *zap.Logger
}

// New constructs a Handler. Missing collaborators get working defaults on db.
func New(db *sqlx.DB, secret string, opts Options) *Handler {
	h := &Handler{
		db:       db,
		secret:   secret,
		engine:   opts.Engine,
		searcher: opts.Searcher,
		metrics:  opts.Metrics,
		origins:  opts.CORSOrigins,
		log:      opts.Logger,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.engine == nil {
		h.engine = fulfillment.New(db, nil, nil, h.log)
	}
	if h.searcher == nil {
		h.searcher = discovery.New(db, "")
	}
	if len(h.origins) == 0 {
		h.origins = []string{"*"}
	}
	return h
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Post("/auth/login", h.login)
	r.Post("/customers", h.registerCustomer)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.searchProducts)
		r.Get("/suggest", h.suggestProducts)
	})
	r.Get("/categories", h.listCategories)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Post("/auth/reset-password", h.resetPassword)
		pr.Put("/me", h.updateAccount)

		pr.Route("/pharmacies", func(r chi.Router) {
			r.Post("/", h.createPharmacy)
			r.Get("/", h.listPharmacies)
			r.Put("/{id}", h.updatePharmacy)
		})
		pr.Post("/categories", h.createCategory)
		pr.Route("/catalog", func(r chi.Router) {
			r.Post("/", h.createCatalogEntry)
			r.Get("/search", h.searchCatalog)
		})

		pr.Route("/staff", func(r chi.Router) {
			r.Post("/", h.createStaff)
			r.Get("/", h.listStaff)
			r.Get("/{id}", h.getStaff)
			r.Delete("/{id}", h.deleteStaff)
		})

		pr.Route("/listings", func(r chi.Router) {
			r.Post("/", h.createListing)
			r.Get("/", h.listListings)
			r.Get("/{id}", h.getListing)
			r.Put("/{id}", h.updateListing)
			r.Delete("/{id}", h.deleteListing)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.listSales)
		})

		pr.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Get("/mine", h.myOrders)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
