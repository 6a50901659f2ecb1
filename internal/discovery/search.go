// Package discovery implements the public product search: a paginated, case-insensitive
// substring match over the catalog joined to in-stock listings, optionally ranked by
// great-circle distance from the caller.
package discovery

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pharmahub/m/internal/metrics"
)

// PageSize is the fixed number of results per page.
const PageSize = 10

// EarthRadiusMeters is the sphere radius used for distances.
const EarthRadiusMeters = 6371000

// Query is a product search request. Zero values mean "not supplied".
type Query struct {
	Name       string
	Page       int
	CategoryID int64
	Latitude   float64
	Longitude  float64
}

// Localized reports whether results are ranked by distance. Both coordinates must be
// supplied and non-zero.
func (q Query) Localized() bool {
	return q.Latitude != 0 && q.Longitude != 0
}

func (q Query) normalized() Query {
	q.Name = strings.ToLower(strings.TrimSpace(q.Name))
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > math.MaxInt/PageSize {
		q.Page = math.MaxInt / PageSize
	}
	if q.CategoryID < 0 {
		q.CategoryID = 0
	}
	if math.Abs(q.Latitude) > 90 || math.Abs(q.Longitude) > 180 || math.IsNaN(q.Latitude) || math.IsNaN(q.Longitude) {
		q.Latitude, q.Longitude = 0, 0
	}
	return q
}

func (q Query) cacheKey() string {
	key := "products:" + strconv.Itoa(q.Page) + ":" + strconv.FormatInt(q.CategoryID, 10) + ":" + q.Name
	if q.Localized() {
		key += ":" + strconv.FormatFloat(q.Latitude, 'f', 6, 64) + "," + strconv.FormatFloat(q.Longitude, 'f', 6, 64)
	}
	return key
}

// Result is one listing row of a search page.
type Result struct {
	ListingID     int64           `db:"listing_id" json:"productId"`
	ProductName   string          `db:"product_name" json:"productName"`
	ProductImage  *string         `db:"product_image" json:"-"`
	ImageURL      string          `db:"-" json:"productImage,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Amount        int64           `db:"amount" json:"amount"`
	PharmacyName  string          `db:"pharmacy_name" json:"pharmacyName"`
	PharmacyEmail string          `db:"pharmacy_email" json:"pharmacyEmail"`
	Distance      *float64        `db:"distance_m" json:"distance_m,omitempty"`
}

// Page is the response of Search.
type Page struct {
	Results   []Result `json:"results"`
	PageCount int      `json:"pageCount"`
}

// Suggestion is a catalog name match for the search bar.
type Suggestion struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Cache stores search pages. Implementations report a miss with (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Searcher runs product searches. It is safe for concurrent use.
type Searcher struct {
	db         *sqlx.DB
	staticBase string
	cache      Cache
	metrics    *metrics.Search
	log        *zap.Logger
	group      singleflight.Group
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithCache puts c in front of the store.
func WithCache(c Cache) Option {
	return func(s *Searcher) { s.cache = c }
}

// WithMetrics counts cache hits and misses.
func WithMetrics(m *metrics.Search) Option {
	return func(s *Searcher) { s.metrics = m }
}

// WithLogger sets the logger used for cache failures.
func WithLogger(log *zap.Logger) Option {
	return func(s *Searcher) { s.log = log }
}

// New returns a Searcher. staticBase prefixes image paths, e.g. "http://host/static".
func New(db *sqlx.DB, staticBase string, opts ...Option) *Searcher {
	s := &Searcher{db: db, staticBase: strings.TrimRight(staticBase, "/"), log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns one page of in-stock listings matching q.
func (s *Searcher) Search(ctx context.Context, q Query) (*Page, error) {
	q = q.normalized()
	if s.cache == nil {
		return s.load(ctx, q)
	}

	key := q.cacheKey()
	var cached Page
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("search cache get failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		s.count(true)
		return &cached, nil
	}
	s.count(false)

	v, err, _ := s.group.Do(key, func() (any, error) {
		page, err := s.load(ctx, q)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, page); err != nil {
			s.log.Warn("search cache set failed", zap.String("key", key), zap.Error(err))
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Page), nil
}

type patternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// Invalidate drops cached pages after stock or prices change. Caches that cannot delete
// by pattern are left to expire.
func (s *Searcher) Invalidate(ctx context.Context) {
	d, ok := s.cache.(patternDeleter)
	if !ok {
		return
	}
	if err := d.DeletePattern(ctx, "products:*"); err != nil {
		s.log.Warn("search cache invalidation failed", zap.Error(err))
	}
}

func (s *Searcher) count(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}
}

func (s *Searcher) load(ctx context.Context, q Query) (*Page, error) {
	query, args := s.selectQuery(q)
	results := []Result{}
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	for i := range results {
		if img := results[i].ProductImage; img != nil && *img != "" {
			results[i].ImageURL = s.staticBase + "/productImages/" + *img
		}
	}

	countQuery, countArgs := s.countQuery(q)
	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}

	return &Page{Results: results, PageCount: (total + PageSize - 1) / PageSize}, nil
}

// Suggest returns up to five catalog entries whose name contains name, ordered by name.
func (s *Searcher) Suggest(ctx context.Context, name string) ([]Suggestion, error) {
	suggestions := []Suggestion{}
	query := s.db.Rebind(`SELECT id, name FROM catalog_entries WHERE LOWER(name) LIKE ? ESCAPE '\' ORDER BY name ASC LIMIT 5`)
	if err := s.db.SelectContext(ctx, &suggestions, query, LikePattern(name)); err != nil {
		return nil, fmt.Errorf("suggest catalog entries: %w", err)
	}
	return suggestions, nil
}

func (s *Searcher) selectQuery(q Query) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT l.id AS listing_id, c.name AS product_name, c.image AS product_image, l.price AS price, l.amount AS amount,
                p.name AS pharmacy_name, p.email AS pharmacy_email`)
	if q.Localized() {
		sb.WriteString(", " + s.distanceExpr() + " AS distance_m")
		args = append(args, q.Latitude, q.Longitude, q.Latitude)
	}
	sb.WriteString(`
                FROM listings l
                JOIN pharmacies p ON p.id = l.pharmacy_id
                JOIN catalog_entries c ON c.id = l.catalog_entry_id`)
	where, whereArgs := filters(q)
	sb.WriteString(where)
	args = append(args, whereArgs...)
	if q.Localized() {
		sb.WriteString(" ORDER BY distance_m ASC, l.id ASC")
	} else {
		sb.WriteString(" ORDER BY c.name ASC, l.id ASC")
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, PageSize, (q.Page-1)*PageSize)
	return s.db.Rebind(sb.String()), args
}

func (s *Searcher) countQuery(q Query) (string, []any) {
	where, args := filters(q)
	query := `SELECT COUNT(*) FROM listings l JOIN catalog_entries c ON c.id = l.catalog_entry_id` + where
	return s.db.Rebind(query), args
}

// distanceExpr is the spherical law of cosines in metres, with the acos argument clamped
// to [-1, 1] so identical points do not fall outside its domain.
func (s *Searcher) distanceExpr() string {
	least, greatest := "MIN", "MAX"
	if s.db.DriverName() == "pgx" {
		least, greatest = "LEAST", "GREATEST"
	}
	return fmt.Sprintf(`(%d * ACOS(%s(1.0, %s(-1.0,
                COS(RADIANS(?)) * COS(RADIANS(p.latitude)) * COS(RADIANS(p.longitude) - RADIANS(?))
                + SIN(RADIANS(?)) * SIN(RADIANS(p.latitude))))))`, EarthRadiusMeters, least, greatest)
}

func filters(q Query) (string, []any) {
	where := " WHERE l.amount > 0"
	var args []any
	if q.Name != "" {
		where += ` AND LOWER(c.name) LIKE ? ESCAPE '\'`
		args = append(args, LikePattern(q.Name))
	}
	if q.CategoryID > 0 {
		where += " AND c.category_id = ?"
		args = append(args, q.CategoryID)
	}
	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern turns s into a lowercase substring pattern for LIKE ... ESCAPE '\', with
// wildcard characters in s matched literally.
func LikePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// Haversine returns the distance in metres between two coordinates using the same
// formula as the search query.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	x := math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Cos(rad(lon2)-rad(lon1)) + math.Sin(rad(lat1))*math.Sin(rad(lat2))
	return EarthRadiusMeters * math.Acos(math.Max(-1, math.Min(1, x)))
}
