package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"pharmahub/m/internal/discovery"
)

type productResponse struct {
	ProductID     int64    `json:"productId"`
	ProductName   string   `json:"productName"`
	ProductImage  string   `json:"productImage"`
	Price         float64  `json:"price"`
	Amount        int64    `json:"amount"`
	PharmacyName  string   `json:"pharmacyName"`
	PharmacyEmail string   `json:"pharmacyEmail"`
	Distance      *float64 `json:"distance_m,omitempty"`
}

type productPage struct {
	Results   []productResponse `json:"results"`
	PageCount int               `json:"pageCount"`
}

// searchProducts is public. Malformed numeric parameters are treated as absent.
func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := discovery.Query{
		Name:       q.Get("name"),
		Page:       int(parseInt(q.Get("page"))),
		CategoryID: parseInt(q.Get("categoryId")),
		Latitude:   parseFloat(q.Get("latitude")),
		Longitude:  parseFloat(q.Get("longitude")),
	}

	page, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		h.log.Error("product search failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to search products")
		return
	}

	out := productPage{Results: make([]productResponse, 0, len(page.Results)), PageCount: page.PageCount}
	for _, res := range page.Results {
		out.Results = append(out.Results, productResponse{
			ProductID:     res.ListingID,
			ProductName:   res.ProductName,
			ProductImage:  res.ImageURL,
			Price:         res.Price.InexactFloat64(),
			Amount:        res.Amount,
			PharmacyName:  res.PharmacyName,
			PharmacyEmail: res.PharmacyEmail,
			Distance:      res.Distance,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) suggestProducts(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.searcher.Suggest(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		h.log.Error("product suggest failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to suggest products")
		return
	}
	respondJSON(w, http.StatusOK, suggestions)
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
