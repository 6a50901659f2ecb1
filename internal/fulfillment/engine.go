// Package fulfillment turns a requested cart into ledger lines while depleting listing stock.
//
// Both the cashier point-of-sale and customer checkout go through Engine.Fulfill. The whole
// call runs in one database transaction, and every stock decrement is a conditional
// UPDATE (amount >= quantity), so concurrent calls against the same listing can never sell
// more than was on hand.
package fulfillment

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmahub/m/domain"
	"pharmahub/m/internal/metrics"
	"pharmahub/m/internal/payment"
)

var (
	// ErrInvalidLines is returned before any store access when the request is malformed.
	ErrInvalidLines = errors.New("invalid line items")
	// ErrNothingFulfillable is returned when every requested line was dropped.
	ErrNothingFulfillable = errors.New("no requested line can be fulfilled")
	// ErrPaymentDeclined is returned when the payment gateway refuses the checkout total.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrUnsupportedRole is returned for actors that cannot sell or order.
	ErrUnsupportedRole = errors.New("role cannot fulfill")
)

// Line is one requested (listing, quantity) pair. It decodes the listing id from either
// "listingId" or "productId".
type Line struct {
	ListingID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

func (l *Line) UnmarshalJSON(data []byte) error {
	var raw struct {
		ListingID *int64 `json:"listingId"`
		ProductID *int64 `json:"productId"`
		Quantity  int64  `json:"quantity"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.ListingID != nil && raw.ProductID != nil && *raw.ListingID != *raw.ProductID:
		return errors.New("listingId and productId disagree")
	case raw.ListingID != nil:
		l.ListingID = *raw.ListingID
	case raw.ProductID != nil:
		l.ListingID = *raw.ProductID
	default:
		l.ListingID = 0
	}
	l.Quantity = raw.Quantity
	return nil
}

// Actor is the authenticated caller. PharmacyID is set for cashiers and restricts
// them to their own pharmacy's listings.
type Actor struct {
	ID         int64
	Role       string
	PharmacyID int64
}

// Result describes a successful call. Lines holds only accepted lines; callers compare
// it with what they requested to detect under-fulfillment.
type Result struct {
	Receipt     string                   `json:"receipt"`
	Lines       []domain.TransactionLine `json:"lines"`
	TotalAmount decimal.Decimal          `json:"totalAmount"`
	Dropped     int                      `json:"-"`
}

type ledger struct {
	table    string
	actorCol string
}

var ledgers = map[string]ledger{
	domain.RoleCashier:  {table: "sales", actorCol: "cashier_id"},
	domain.RoleCustomer: {table: "orders", actorCol: "customer_id"},
}

// Engine runs fulfillment against the shared store.
type Engine struct {
	db       *sqlx.DB
	payments payment.Gateway
	metrics  *metrics.Fulfillment
	log      *zap.Logger

	// Overridden by tests to act inside the transaction.
	afterAppraise func(ctx context.Context, tx *sqlx.Tx) error
	commit        func(tx *sqlx.Tx) error
}

// New constructs an Engine. A nil gateway accepts every charge; nil metrics disables counting.
func New(db *sqlx.DB, payments payment.Gateway, m *metrics.Fulfillment, log *zap.Logger) *Engine {
	if payments == nil {
		payments = payment.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, payments: payments, metrics: m, log: log, commit: (*sqlx.Tx).Commit}
}

// Fulfill validates lines, drops any that exceed live stock, and for the rest writes one
// ledger line each and decrements stock, all-or-nothing.
func (e *Engine) Fulfill(ctx context.Context, actor Actor, lines []Line) (*Result, error) {
	start := time.Now()
	res, err := e.fulfill(ctx, actor, lines)
	e.observe(actor.Role, start, res, err)
	return res, err
}

func (e *Engine) fulfill(ctx context.Context, actor Actor, lines []Line) (*Result, error) {
	lg, ok := ledgers[actor.Role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRole, actor.Role)
	}
	if actor.ID <= 0 {
		return nil, fmt.Errorf("%w: missing actor", ErrInvalidLines)
	}
	merged, err := normalize(lines)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fulfillment: %w", err)
	}
	defer tx.Rollback()

	survivors, err := e.appraise(ctx, tx, actor, merged)
	if err != nil {
		return nil, err
	}
	if e.afterAppraise != nil {
		if err := e.afterAppraise(ctx, tx); err != nil {
			return nil, err
		}
	}

	res := &Result{Receipt: uuid.NewString(), TotalAmount: decimal.Zero}
	for _, l := range survivors {
		line, err := e.commitLine(ctx, tx, lg, actor, res.Receipt, l)
		if errors.Is(err, sql.ErrNoRows) {
			// Stock was taken by a concurrent call after appraisal.
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Lines = append(res.Lines, *line)
		res.TotalAmount = res.TotalAmount.Add(line.Price.Mul(decimal.NewFromInt(line.Quantity)))
	}
	res.Dropped = len(merged) - len(res.Lines)

	if len(res.Lines) == 0 {
		return nil, ErrNothingFulfillable
	}

	var charge *payment.Charge
	if actor.Role == domain.RoleCustomer {
		charge = &payment.Charge{CustomerID: actor.ID, Receipt: res.Receipt, Amount: res.TotalAmount}
		if err := e.payments.Charge(ctx, *charge); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
		}
	}

	if err := e.commit(tx); err != nil {
		if charge != nil {
			// The order does not exist, so the collected amount goes back.
			if vErr := e.payments.Void(context.WithoutCancel(ctx), *charge); vErr != nil {
				e.log.Error("void after failed commit", zap.String("receipt", charge.Receipt), zap.Int64("customer_id", charge.CustomerID), zap.Error(vErr))
			}
		}
		return nil, fmt.Errorf("commit fulfillment: %w", err)
	}
	return res, nil
}

// appraise reads each listing once and keeps the lines that live stock can cover.
func (e *Engine) appraise(ctx context.Context, tx *sqlx.Tx, actor Actor, lines []Line) ([]Line, error) {
	type snapshot struct {
		Amount     int64 `db:"amount"`
		PharmacyID int64 `db:"pharmacy_id"`
	}
	query := tx.Rebind(`SELECT amount, pharmacy_id FROM listings WHERE id = ?`)

	survivors := make([]Line, 0, len(lines))
	for _, l := range lines {
		var snap snapshot
		err := tx.GetContext(ctx, &snap, query, l.ListingID)
		if errors.Is(err, sql.ErrNoRows) {
			e.log.Debug("dropping unknown listing", zap.Int64("listing_id", l.ListingID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("appraise listing %d: %w", l.ListingID, err)
		}
		if actor.Role == domain.RoleCashier && snap.PharmacyID != actor.PharmacyID {
			e.log.Debug("dropping foreign listing", zap.Int64("listing_id", l.ListingID), zap.Int64("pharmacy_id", snap.PharmacyID))
			continue
		}
		if l.Quantity > snap.Amount {
			e.log.Debug("dropping over-requested line", zap.Int64("listing_id", l.ListingID), zap.Int64("requested", l.Quantity), zap.Int64("available", snap.Amount))
			continue
		}
		survivors = append(survivors, l)
	}
	return survivors, nil
}

// commitLine atomically takes quantity from the listing and records the ledger line at the
// price read by the same statement. sql.ErrNoRows means the stock was no longer there.
func (e *Engine) commitLine(ctx context.Context, tx *sqlx.Tx, lg ledger, actor Actor, receipt string, l Line) (*domain.TransactionLine, error) {
	var price decimal.Decimal
	err := tx.GetContext(ctx, &price, tx.Rebind(`UPDATE listings SET amount = amount - ?, updated_at = CURRENT_TIMESTAMP
                WHERE id = ? AND amount >= ?
                RETURNING price`), l.Quantity, l.ListingID, l.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("decrement listing %d: %w", l.ListingID, err)
	}

	line := domain.TransactionLine{
		Receipt:   receipt,
		ListingID: l.ListingID,
		Quantity:  l.Quantity,
		Price:     price,
		ActorID:   actor.ID,
	}
	if actor.Role == domain.RoleCustomer {
		fulfilled := false
		line.Fulfilled = &fulfilled
	}

	insert := fmt.Sprintf(`INSERT INTO %s (receipt, listing_id, quantity, price, %s) VALUES (?, ?, ?, ?, ?) RETURNING id, created_at`, lg.table, lg.actorCol)
	if err := tx.QueryRowxContext(ctx, tx.Rebind(insert), receipt, l.ListingID, l.Quantity, price, actor.ID).Scan(&line.ID, &line.CreatedAt); err != nil {
		return nil, fmt.Errorf("record %s line for listing %d: %w", lg.table, l.ListingID, err)
	}
	return &line, nil
}

// normalize rejects malformed input and merges repeated listings so that one listing is
// appraised once. The result is ordered by listing id, which keeps lock order stable.
func normalize(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidLines)
	}
	byID := make(map[int64]int64, len(lines))
	for i, l := range lines {
		if l.ListingID <= 0 || l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d needs a positive productId and quantity", ErrInvalidLines, i)
		}
		if byID[l.ListingID] > math.MaxInt64-l.Quantity {
			return nil, fmt.Errorf("%w: total quantity for listing %d is too large", ErrInvalidLines, l.ListingID)
		}
		byID[l.ListingID] += l.Quantity
	}
	merged := make([]Line, 0, len(byID))
	for id, q := range byID {
		merged = append(merged, Line{ListingID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ListingID < merged[j].ListingID })
	return merged, nil
}

func (e *Engine) observe(role string, start time.Time, res *Result, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ErrInvalidLines), errors.Is(err, ErrUnsupportedRole):
		outcome = "invalid"
	case errors.Is(err, ErrNothingFulfillable):
		outcome = "nothing_fulfillable"
	case errors.Is(err, ErrPaymentDeclined):
		outcome = "payment_declined"
	case err != nil:
		outcome = "error"
	}
	e.metrics.Calls.WithLabelValues(role, outcome).Inc()
	e.metrics.Duration.WithLabelValues(role).Observe(time.Since(start).Seconds())
	if res != nil {
		e.metrics.AcceptedLines.WithLabelValues(role).Add(float64(len(res.Lines)))
		e.metrics.DroppedLines.WithLabelValues(role).Add(float64(res.Dropped))
	}
}
