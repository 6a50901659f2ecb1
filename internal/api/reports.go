package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmahub/m/domain"
)

// Reports

type receiptItem struct {
	ID          int64           `db:"id" json:"id"`
	Receipt     string          `db:"receipt" json:"-"`
	ListingID   int64           `db:"listing_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"-"`
	UnitPrice   float64         `db:"-" json:"price"`
	Fulfilled   *bool           `db:"fulfilled" json:"fulfilled,omitempty"`
}

type receiptHeader struct {
	Receipt   string          `db:"receipt" json:"receipt"`
	ActorID   int64           `db:"actor_id" json:"actorId"`
	CreatedAt string          `db:"created_at" json:"createdAt"`
	Total     decimal.Decimal `db:"total" json:"-"`
}

type receiptEntry struct {
	receiptHeader
	TotalAmount float64       `json:"totalAmount"`
	Items       []receiptItem `json:"items"`
}

type reportScope struct {
	table    string
	actorCol string
	orders   bool
}

var (
	salesScope  = reportScope{table: "sales", actorCol: "cashier_id"}
	ordersScope = reportScope{table: "orders", actorCol: "customer_id", orders: true}
)

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	h.receiptReport(w, r, salesScope, "l.pharmacy_id = ?", pharmacyIDFromContext(r))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RolePharmacyAdmin) {
		return
	}
	h.receiptReport(w, r, ordersScope, "l.pharmacy_id = ?", pharmacyIDFromContext(r))
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleCustomer) {
		return
	}
	h.receiptReport(w, r, ordersScope, "t.customer_id = ?", userIDFromContext(r))
}

// receiptReport lists ledger lines grouped by receipt, newest first, optionally bounded by
// start_date and end_date (YYYY-MM-DD, inclusive).
func (h *Handler) receiptReport(w http.ResponseWriter, r *http.Request, scope reportScope, ownerClause string, ownerID int64) {
	args := []any{ownerID}
	clauses := []string{ownerClause}

	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			respondError(w, http.StatusBadRequest, "start_date must be in YYYY-MM-DD format")
			return
		}
		args = append(args, startDate)
		clauses = append(clauses, "DATE(t.created_at) >= ?")
	}

	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			respondError(w, http.StatusBadRequest, "end_date must be in YYYY-MM-DD format")
			return
		}
		args = append(args, endDate)
		clauses = append(clauses, "DATE(t.created_at) <= ?")
	}

	query := fmt.Sprintf(`SELECT t.receipt, t.%[2]s AS actor_id, MIN(t.created_at) AS created_at, SUM(t.price * t.quantity) AS total
                FROM %[1]s t
                JOIN listings l ON l.id = t.listing_id
                WHERE %[3]s
                GROUP BY t.receipt, t.%[2]s
                ORDER BY MIN(t.created_at) DESC, t.receipt ASC`, scope.table, scope.actorCol, strings.Join(clauses, " AND "))

	var headers []receiptHeader
	if err := h.db.SelectContext(r.Context(), &headers, h.db.Rebind(query), args...); err != nil {
		h.log.Error("receipt report failed", zap.String("ledger", scope.table), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to fetch "+scope.table)
		return
	}
	if len(headers) == 0 {
		respondJSON(w, http.StatusOK, []receiptEntry{})
		return
	}

	receipts := make([]string, len(headers))
	for i, hd := range headers {
		receipts[i] = hd.Receipt
	}

	fulfilledCol := "NULL AS fulfilled"
	if scope.orders {
		fulfilledCol = "t.fulfilled"
	}
	itemsQuery, itemsArgs, err := sqlx.In(fmt.Sprintf(`SELECT t.id, t.receipt, t.listing_id, t.quantity, t.price, %s, c.name AS product_name
                FROM %s t
                JOIN listings l ON l.id = t.listing_id
                JOIN catalog_entries c ON c.id = l.catalog_entry_id
                WHERE t.receipt IN (?)
                ORDER BY t.id ASC`, fulfilledCol, scope.table), receipts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to prepare items query")
		return
	}

	var rows []receiptItem
	if err := h.db.SelectContext(r.Context(), &rows, h.db.Rebind(itemsQuery), itemsArgs...); err != nil {
		h.log.Error("receipt items failed", zap.String("ledger", scope.table), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to load "+scope.table+" items")
		return
	}
	itemsByReceipt := make(map[string][]receiptItem)
	for _, row := range rows {
		row.UnitPrice = row.Price.InexactFloat64()
		itemsByReceipt[row.Receipt] = append(itemsByReceipt[row.Receipt], row)
	}

	report := make([]receiptEntry, len(headers))
	for i, hd := range headers {
		report[i] = receiptEntry{receiptHeader: hd, TotalAmount: hd.Total.InexactFloat64(), Items: itemsByReceipt[hd.Receipt]}
	}
	respondJSON(w, http.StatusOK, report)
}
