package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmahub/m/domain"
	"pharmahub/m/internal/discovery"
	"pharmahub/m/internal/fulfillment"
	"pharmahub/m/internal/metrics"
	"pharmahub/m/internal/payment"
	"pharmahub/m/internal/storetest"
)

const testSecret = "test_secret"

type testServer struct {
	f      *storetest.Fixture
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	f := storetest.New(t)
	if opts.Searcher == nil {
		opts.Searcher = discovery.New(f.DB, "http://static.test")
	}
	h := New(f.DB, testSecret, opts)
	return &testServer{f: f, h: h, router: h.Router()}
}

func (s *testServer) token(t *testing.T, u domain.User) string {
	t.Helper()
	var pharmacyID int64
	if u.PharmacyID != nil {
		pharmacyID = *u.PharmacyID
	}
	tok, err := s.h.generateToken(u.ID, u.Role, pharmacyID)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type declineGateway struct{}

func (declineGateway) Charge(context.Context, payment.Charge) error { return payment.ErrDeclined }
func (declineGateway) Void(context.Context, payment.Charge) error { return nil }

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, Options{})

	testCases := []struct {
		name     string
		body     any
		expected int
	}{
		{"valid credentials", loginRequest{Email: "ARMIN@example.com", Password: storetest.Password}, http.StatusOK},
		{"wrong password", loginRequest{Email: "armin@example.com", Password: "nope"}, http.StatusUnauthorized},
		{"unknown email", loginRequest{Email: "nobody@example.com", Password: storetest.Password}, http.StatusUnauthorized},
		{"missing fields", loginRequest{Email: "armin@example.com"}, http.StatusBadRequest},
		{"unknown field", `{"email":"armin@example.com","password":"x","role":"admin"}`, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/auth/login", "", tc.body)
			assert.Equal(t, tc.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestLoginTokenCarriesPharmacy(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodPost, "/auth/login", "", loginRequest{Email: "armin@example.com", Password: storetest.Password})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[authResponse](t, rec)
	assert.Empty(t, resp.User.Password)
	assert.Equal(t, domain.RoleCashier, resp.User.Role)

	// The issued token is accepted for a cashier-only route scoped to the cashier's pharmacy.
	rec = s.do(t, http.MethodGet, "/listings", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listings := decode[[]listingResponse](t, rec)
	require.Len(t, listings, 2)
	for _, l := range listings {
		assert.Equal(t, s.f.PharmacyOne.ID, l.PharmacyID)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodGet, "/listings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/listings", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := New(s.f.DB, "other_secret", Options{})
	tok, err := forged.generateToken(s.f.Cashier.ID, domain.RoleCashier, s.f.PharmacyOne.ID)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/listings", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err = s.h.generateToken(s.f.Cashier.ID, domain.RoleCashier, 0)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/listings", tok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/pharmacies", s.token(t, s.f.Customer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterCustomer(t *testing.T) {
	s := newTestServer(t, Options{})
	body := registerRequest{Name: "Levi Ackerman", Email: "levi@example.com", Password: "longenough"}

	rec := s.do(t, http.MethodPost, "/customers", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[authResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, domain.RoleCustomer, resp.User.Role)
	assert.Nil(t, resp.User.PharmacyID)

	rec = s.do(t, http.MethodPost, "/customers", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/customers", "", registerRequest{Name: "x", Email: "x@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateStaff(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.token(t, s.f.PharmacyAdmin)

	body := map[string]string{"name": "Jean Kirstein", "email": "jean@example.com", "password": "longenough", "role": domain.RoleCashier}
	rec := s.do(t, http.MethodPost, "/staff", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[domain.User](t, rec)
	require.NotNil(t, user.PharmacyID)
	assert.Equal(t, s.f.PharmacyOne.ID, *user.PharmacyID)
	require.NotNil(t, user.CreatorID)
	assert.Equal(t, s.f.PharmacyAdmin.ID, *user.CreatorID)

	body["email"], body["role"] = "other@example.com", domain.RoleSystemAdmin
	rec = s.do(t, http.MethodPost, "/staff", admin, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/staff", s.token(t, s.f.Cashier), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSystemAdminCatalog(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.token(t, s.f.SystemAdmin)

	rec := s.do(t, http.MethodPost, "/pharmacies", admin, pharmacyRequest{Name: "Pharmacie Bastos", Email: "bastos@example.com", Phone: "699000000", Latitude: 3.89, Longitude: 11.51})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/pharmacies", admin, pharmacyRequest{Name: "Pharmacie Bastos", Email: "b2@example.com", Phone: "699000001"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/pharmacies", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Pharmacy](t, rec), 3)

	rec = s.do(t, http.MethodPost, "/categories", admin, categoryRequest{Name: "Vitamins"})
	require.Equal(t, http.StatusCreated, rec.Code)
	category := decode[domain.Category](t, rec)

	rec = s.do(t, http.MethodGet, "/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Category](t, rec), 3)

	rec = s.do(t, http.MethodPost, "/catalog", admin, catalogRequest{Name: "Vitamin C", ReferencePrice: 250.5, CategoryID: &category.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[catalogResponse](t, rec)
	assert.Equal(t, 250.5, entry.ReferencePrice)

	rec = s.do(t, http.MethodPost, "/catalog", admin, catalogRequest{Name: "Vitamin C"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	missing := int64(999)
	rec = s.do(t, http.MethodPost, "/catalog", admin, catalogRequest{Name: "Zinc", CategoryID: &missing})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/catalog/search?q=VITA", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]catalogResponse](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, entry.ID, found[0].ID)
}

func TestListingLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.token(t, s.f.PharmacyAdmin)

	rec := s.do(t, http.MethodPost, "/listings", admin, listingRequest{CatalogEntryID: s.f.Penicillin.ID, Price: 1700, Amount: 3})
	assert.Equal(t, http.StatusConflict, rec.Code)

	entryID := insertCatalogEntry(t, s, "Ibuprofen")
	rec = s.do(t, http.MethodPost, "/listings", admin, listingRequest{CatalogEntryID: entryID, Price: 800, Amount: 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[listingResponse](t, rec)
	assert.Equal(t, s.f.PharmacyOne.ID, created.PharmacyID)
	assert.Equal(t, "Ibuprofen", created.Name)

	path := fmt.Sprintf("/listings/%d", created.ID)
	rec = s.do(t, http.MethodPut, path, admin, map[string]any{"amount": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, admin, map[string]any{"amount": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[listingResponse](t, rec)
	assert.Equal(t, int64(0), updated.Amount)
	assert.Equal(t, 800.0, updated.Price)

	rec = s.do(t, http.MethodPut, path, admin, map[string]any{"price": 950.25})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 950.25, decode[listingResponse](t, rec).Price)

	rec = s.do(t, http.MethodPut, fmt.Sprintf("/listings/%d", s.f.ListingFour.ID), admin, map[string]any{"amount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/listings/abc", admin, map[string]any{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteListingWithHistory(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodPost, "/sales", s.token(t, s.f.Cashier), saleRequest{Products: []fulfillment.Line{{ListingID: s.f.ListingOne.ID, Quantity: 1}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/listings/%d", s.f.ListingOne.ID), s.token(t, s.f.PharmacyAdmin), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(4), s.f.Amount(t, s.f.ListingOne.ID))
}

func TestDeleteForeignListingIsNotFound(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodPost, "/orders", s.token(t, s.f.Customer), orderRequest{Cart: []fulfillment.Line{{ListingID: s.f.ListingFour.ID, Quantity: 1}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	// ListingFour belongs to PharmacyTwo and now has an order against it.
	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/listings/%d", s.f.ListingFour.ID), s.token(t, s.f.PharmacyAdmin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Equal(t, int64(19), s.f.Amount(t, s.f.ListingFour.ID))
}

func TestGetListing(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/listings/%d", s.f.ListingOne.ID), s.token(t, s.f.Cashier), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[listingResponse](t, rec)
	assert.Equal(t, s.f.ListingOne.ID, got.ID)
	assert.Equal(t, "Doliprane 1000mg", got.Name)
	assert.Equal(t, int64(5), got.Amount)
	assert.Equal(t, 1000.0, got.Price)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/listings/%d", s.f.ListingFour.ID), s.token(t, s.f.PharmacyAdmin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/listings/%d", s.f.ListingOne.ID), s.token(t, s.f.Customer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCatalogSearchMatchesWildcardsLiterally(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.token(t, s.f.SystemAdmin)
	glucose := insertCatalogEntry(t, s, "Glucose 50%")

	rec := s.do(t, http.MethodGet, "/catalog/search?q=%25", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	found := decode[[]catalogResponse](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, glucose, found[0].ID)

	rec = s.do(t, http.MethodGet, "/catalog/search?q=_", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]catalogResponse](t, rec))

	rec = s.do(t, http.MethodGet, "/catalog/search?q=", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalogResponse](t, rec), 3)
}

func TestUpdatePharmacy(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.token(t, s.f.SystemAdmin)
	path := fmt.Sprintf("/pharmacies/%d", s.f.PharmacyOne.ID)

	body := pharmacyRequest{Name: "Pharmacie de Messa II", Email: " MESSA2@example.com ", Phone: "677538951", Address: "Messa", Hours: "24/7", AllNight: true, Latitude: 3.87, Longitude: 11.50}
	rec := s.do(t, http.MethodPut, path, admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Pharmacy](t, rec)
	assert.Equal(t, s.f.PharmacyOne.ID, updated.ID)
	assert.Equal(t, "Pharmacie de Messa II", updated.Name)
	assert.Equal(t, "messa2@example.com", updated.Email)
	assert.Equal(t, "24/7", updated.Hours)
	assert.InDelta(t, 3.87, updated.Latitude, 1e-9)

	// Saving the same details again is not a conflict with itself.
	rec = s.do(t, http.MethodPut, path, admin, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	body.Name = s.f.PharmacyTwo.Name
	rec = s.do(t, http.MethodPut, path, admin, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, "/pharmacies/999", admin, pharmacyRequest{Name: "Ghost", Email: "ghost@example.com", Phone: "600000000"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, path, admin, pharmacyRequest{Name: "No Phone", Email: "np@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, path, s.token(t, s.f.PharmacyAdmin), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSale(t *testing.T) {
	s := newTestServer(t, Options{})
	cashier := s.token(t, s.f.Cashier)

	rec := s.do(t, http.MethodPost, "/sales", cashier, saleRequest{Products: []fulfillment.Line{
		{ListingID: s.f.ListingOne.ID, Quantity: 4},
		{ListingID: s.f.ListingTwo.ID, Quantity: 49},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[fulfillmentResponse](t, rec)
	assert.Equal(t, "Sale completed.", resp.Message)
	assert.Equal(t, 82400.0, resp.TotalAmount)
	assert.NotEmpty(t, resp.Receipt)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, s.f.ListingOne.ID, resp.Lines[0].ProductID)
	assert.Equal(t, 1000.0, resp.Lines[0].Price)
	assert.Nil(t, resp.Lines[0].Fulfilled)
	assert.Equal(t, int64(1), s.f.Amount(t, s.f.ListingOne.ID))
	assert.Equal(t, int64(1), s.f.Amount(t, s.f.ListingTwo.ID))
}

func TestCreateSaleErrors(t *testing.T) {
	s := newTestServer(t, Options{})
	cashier := s.token(t, s.f.Cashier)

	testCases := []struct {
		name     string
		token    string
		body     any
		expected int
	}{
		{
			name:     "all lines dropped",
			token:    cashier,
			body:     saleRequest{Products: []fulfillment.Line{{ListingID: s.f.ListingOne.ID, Quantity: 6}, {ListingID: s.f.ListingTwo.ID, Quantity: 51}}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "empty products",
			token:    cashier,
			body:     saleRequest{},
			expected: http.StatusBadRequest,
		},
		{
			name:     "zero quantity",
			token:    cashier,
			body:     saleRequest{Products: []fulfillment.Line{{ListingID: s.f.ListingOne.ID}}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			token:    cashier,
			body:     `{"products": "all of them"}`,
			expected: http.StatusBadRequest,
		},
		{
			name:     "listing of another pharmacy",
			token:    cashier,
			body:     saleRequest{Products: []fulfillment.Line{{ListingID: s.f.ListingFour.ID, Quantity: 1}}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "customer cannot sell",
			token:    s.token(t, s.f.Customer),
			body:     saleRequest{Products: []fulfillment.Line{{ListingID: s.f.ListingOne.ID, Quantity: 1}}},
			expected: http.StatusForbidden,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/sales", tc.token, tc.body)
			assert.Equal(t, tc.expected, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	assert.Equal(t, 0, s.f.Count(t, "sales"))
	assert.Equal(t, int64(5), s.f.Amount(t, s.f.ListingOne.ID))
	assert.Equal(t, int64(50), s.f.Amount(t, s.f.ListingTwo.ID))
}

func TestPlaceOrder(t *testing.T) {
	s := newTestServer(t, Options{})
	customer := s.token(t, s.f.Customer)

	rec := s.do(t, http.MethodPost, "/orders", customer, orderRequest{Cart: []fulfillment.Line{
		{ListingID: s.f.ListingOne.ID, Quantity: 5},
		{ListingID: s.f.ListingTwo.ID, Quantity: 51},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[fulfillmentResponse](t, rec)
	assert.Equal(t, "Order has been placed.", resp.Message)
	assert.Equal(t, 5000.0, resp.TotalAmount)
	require.Len(t, resp.Lines, 1)
	require.NotNil(t, resp.Lines[0].Fulfilled)
	assert.False(t, *resp.Lines[0].Fulfilled)
	assert.Equal(t, int64(0), s.f.Amount(t, s.f.ListingOne.ID))
	assert.Equal(t, int64(50), s.f.Amount(t, s.f.ListingTwo.ID))

	rec = s.do(t, http.MethodPost, "/orders", customer, map[string]any{"lines": []fulfillment.Line{{ListingID: s.f.ListingFour.ID, Quantity: 2}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 3000.0, decode[fulfillmentResponse](t, rec).TotalAmount)

	rec = s.do(t, http.MethodGet, "/orders/mine", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]receiptEntry](t, rec)
	require.Len(t, mine, 2)
	totals := []float64{mine[0].TotalAmount, mine[1].TotalAmount}
	assert.ElementsMatch(t, []float64{5000, 3000}, totals)
}

func TestPlaceOrderAcceptsListingID(t *testing.T) {
	s := newTestServer(t, Options{})

	body := fmt.Sprintf(`{"lines":[{"listingId":%d,"quantity":1}]}`, s.f.ListingOne.ID)
	rec := s.do(t, http.MethodPost, "/orders", s.token(t, s.f.Customer), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[fulfillmentResponse](t, rec)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, s.f.ListingOne.ID, resp.Lines[0].ProductID)
	assert.Equal(t, 1000.0, resp.TotalAmount)
	assert.Equal(t, int64(4), s.f.Amount(t, s.f.ListingOne.ID))

	rec = s.do(t, http.MethodPost, "/orders", s.token(t, s.f.Customer), `{"lines":[{"listing":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderPaymentDeclined(t *testing.T) {
	f := storetest.New(t)
	h := New(f.DB, testSecret, Options{Engine: fulfillment.New(f.DB, declineGateway{}, nil, nil)})
	s := &testServer{f: f, h: h, router: h.Router()}

	rec := s.do(t, http.MethodPost, "/orders", s.token(t, f.Customer), orderRequest{Cart: []fulfillment.Line{{ListingID: f.ListingOne.ID, Quantity: 2}}})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, int64(5), f.Amount(t, f.ListingOne.ID))
	assert.Equal(t, 0, f.Count(t, "orders"))
}

func TestReports(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodPost, "/sales", s.token(t, s.f.Cashier), saleRequest{Products: []fulfillment.Line{
		{ListingID: s.f.ListingOne.ID, Quantity: 4},
		{ListingID: s.f.ListingTwo.ID, Quantity: 49},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	sale := decode[fulfillmentResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/orders", s.token(t, s.f.Customer), orderRequest{Cart: []fulfillment.Line{{ListingID: s.f.ListingFour.ID, Quantity: 1}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	admin := s.token(t, s.f.PharmacyAdmin)
	rec = s.do(t, http.MethodGet, "/sales", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sales := decode[[]receiptEntry](t, rec)
	require.Len(t, sales, 1)
	assert.Equal(t, sale.Receipt, sales[0].Receipt)
	assert.Equal(t, s.f.Cashier.ID, sales[0].ActorID)
	assert.Equal(t, 82400.0, sales[0].TotalAmount)
	require.Len(t, sales[0].Items, 2)
	assert.Equal(t, "Doliprane 1000mg", sales[0].Items[0].ProductName)
	assert.Equal(t, 1000.0, sales[0].Items[0].UnitPrice)

	// The order was placed at PharmacyTwo, outside this admin's pharmacy.
	rec = s.do(t, http.MethodGet, "/orders", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]receiptEntry](t, rec))

	rec = s.do(t, http.MethodGet, "/sales?start_date=2000-01-01&end_date=2000-12-31", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]receiptEntry](t, rec))

	rec = s.do(t, http.MethodGet, "/sales?start_date=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchProducts(t *testing.T) {
	s := newTestServer(t, Options{})

	path := fmt.Sprintf("/products?name=peni&page=1&latitude=%f&longitude=%f", storetest.CallerLatitude, storetest.CallerLongitude)
	rec := s.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[productPage](t, rec)
	require.Len(t, page.Results, 2)
	assert.Equal(t, 1, page.PageCount)
	assert.Equal(t, s.f.ListingFour.ID, page.Results[0].ProductID)
	assert.Equal(t, 1500.0, page.Results[0].Price)
	require.NotNil(t, page.Results[0].Distance)
	assert.InDelta(t, 892.376, *page.Results[0].Distance, 0.01)

	rec = s.do(t, http.MethodGet, "/products?name=DOLI&page=abc&latitude=north&categoryId=x", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "distance_m")
	page = decode[productPage](t, rec)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "http://static.test/productImages/doliprane.png", page.Results[0].ProductImage)

	rec = s.do(t, http.MethodGet, "/products?name=nothing-like-this", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[],"pageCount":0}`, rec.Body.String())
}

func TestSearchReflectsSales(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodPost, "/sales", s.token(t, s.f.Cashier), saleRequest{Products: []fulfillment.Line{{ListingID: s.f.ListingOne.ID, Quantity: 5}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/products?name=doli", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[productPage](t, rec).Results)
}

func TestSuggestProducts(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodGet, "/products/suggest?name=pen", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`[{"id":%d,"name":"Penicillin"}]`, s.f.Penicillin.ID), rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.New()
	f := storetest.New(t)
	h := New(f.DB, testSecret, Options{
		Engine:  fulfillment.New(f.DB, nil, reg.Fulfillment, nil),
		Metrics: reg.Handler(),
	})
	s := &testServer{f: f, h: h, router: h.Router()}

	rec := s.do(t, http.MethodPost, "/sales", s.token(t, f.Cashier), saleRequest{Products: []fulfillment.Line{{ListingID: f.ListingOne.ID, Quantity: 1}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `pharmahub_fulfillment_calls_total{outcome="ok",role="cashier"} 1`), rec.Body.String())
}

func insertCatalogEntry(t *testing.T, s *testServer, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, s.f.DB.QueryRowx(`INSERT INTO catalog_entries (name, reference_price) VALUES (?, ?) RETURNING id`, name, 700).Scan(&id))
	return id
}
