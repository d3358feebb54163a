package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	products := catalog.NewMemory(
		cart.Product{ID: "prod-a", Name: "Product A", UnitPrice: 10000, Unit: "pcs"},
		cart.Product{ID: "prod-b", Name: "Product B", UnitPrice: 5000, Unit: "pcs"},
	)
	store := &stubStore{}
	registry := NewRegistry(func(userID string) *Session {
		return New(Config{
			BranchID: "branch-1",
			UserID:   userID,
			TaxBps:   1000,
			Shipping: 2000,
			Currency: "IDR",
			Catalog:  products,
			Store:    store,
			Logger:   zerolog.Nop(),
			Now:      func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
		})
	})
	h := &Handler{Registry: registry, Validator: validator.New()}
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCashierID, "cashier-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestEndToEndSaleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/shifts", map[string]any{"startingBalance": 50000})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open shift: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/cart/items", map[string]any{"productId": "prod-a", "qty": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add prod-a: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, srv.URL+"/cart/items/prod-a/discount", map[string]any{"kind": "percentage", "value": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discount prod-a: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/cart/items", map[string]any{"productId": "prod-b", "qty": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add prod-b: status %d", resp.StatusCode)
	}
	var view CartView
	decodeData(t, resp, &view)
	if view.Totals.Subtotal != 23000 || view.Totals.Tax != 2300 || view.Totals.Total != 27300 {
		t.Fatalf("totals = %+v, want 23000/2300/27300", view.Totals)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"method": "cash", "cashTendered": 30000})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: status %d", resp.StatusCode)
	}
	var receipt Receipt
	decodeData(t, resp, &receipt)
	if receipt.Sale.Details.Change != 2700 {
		t.Fatalf("change = %d, want 2700", receipt.Sale.Details.Change)
	}
	if receipt.Currency != "IDR" {
		t.Fatalf("currency = %q", receipt.Currency)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/shifts/close", map[string]any{"actualCashAtEnd": 77300})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close shift: status %d", resp.StatusCode)
	}
	var report CloseReport
	decodeData(t, resp, &report)
	if report.Calculations.ExpectedCash != 77300 {
		t.Fatalf("expected cash = %d, want 77300", report.Calculations.ExpectedCash)
	}
}

func TestOutOfRangePercentageLeavesLineUnchanged(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/cart/items", map[string]any{"productId": "prod-a", "qty": 1})
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, srv.URL+"/cart/items/prod-a/discount", map[string]any{"kind": "percentage", "value": 150})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("over-100 percentage: status %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/cart", nil)
	var view CartView
	decodeData(t, resp, &view)
	if len(view.Lines) != 1 || view.Lines[0].UnitPrice != 10000 {
		t.Fatalf("line changed after rejected discount: %+v", view.Lines)
	}
	if view.Lines[0].Discount.Kind != pricing.DiscountNone {
		t.Fatalf("discount kind = %q, want none", view.Lines[0].Discount.Kind)
	}
}

func TestQuantityUpdateAndRemoveOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/cart/items", map[string]any{"productId": "prod-a", "qty": 1})
	resp.Body.Close()

	resp = doJSON(t, http.MethodPatch, srv.URL+"/cart/items/prod-a", map[string]any{"qty": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch qty: status %d", resp.StatusCode)
	}
	var view CartView
	decodeData(t, resp, &view)
	if view.Lines[0].Qty != 3 {
		t.Fatalf("qty = %d, want 3", view.Lines[0].Qty)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/cart/items/prod-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete line: status %d", resp.StatusCode)
	}
	decodeData(t, resp, &view)
	if len(view.Lines) != 0 {
		t.Fatalf("lines after delete = %d, want 0", len(view.Lines))
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/cart/items/prod-a", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing line: status %d, want 404", resp.StatusCode)
	}
}

func TestMissingCashierHeader(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/cart")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCheckoutWithoutShiftConflicts(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/cart/items", map[string]any{"productId": "prod-b", "qty": 1})
	resp.Body.Close()
	resp = doJSON(t, http.MethodPost, srv.URL+"/checkout", map[string]any{"method": "cash", "cashTendered": 50000})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestUnknownProductIs404(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/cart/items", map[string]any{"productId": "nope", "qty": 1})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
