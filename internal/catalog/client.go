package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// ErrProductNotFound indicates the catalog has no product for the identifier.
var ErrProductNotFound = errors.New("product not found")

// Lookup resolves product references for the POS session. The engine never
// fetches catalog data itself; the orchestrator consumes this collaborator.
type Lookup interface {
	Product(ctx context.Context, id string) (cart.Product, error)
}

// Client fetches product references from the back-office catalog API.
type Client struct {
	BaseURL string
	HTTP    resilience.Client
}

// Product resolves a product by identifier.
func (c Client) Product(ctx context.Context, id string) (cart.Product, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return cart.Product{}, errors.New("catalog client not configured")
	}
	endpoint := fmt.Sprintf("%s/api/products/%s", strings.TrimRight(c.BaseURL, "/"), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return cart.Product{}, fmt.Errorf("catalog: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return cart.Product{}, fmt.Errorf("catalog: fetch product: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return cart.Product{}, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	default:
		return cart.Product{}, fmt.Errorf("catalog: unexpected status %s", resp.Status)
	}

	var payload struct {
		Data cart.Product `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return cart.Product{}, fmt.Errorf("catalog: decode product: %w", err)
	}
	if payload.Data.ID == "" {
		return cart.Product{}, fmt.Errorf("product %s: empty catalog response: %w", id, ErrProductNotFound)
	}
	return payload.Data, nil
}

// Memory is an in-memory Lookup used in tests and local seeding.
type Memory struct {
	mu       sync.RWMutex
	products map[string]cart.Product
}

// NewMemory builds a Memory catalog preloaded with the given products.
func NewMemory(products ...cart.Product) *Memory {
	m := &Memory{products: make(map[string]cart.Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put adds or replaces a product.
func (m *Memory) Put(p cart.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// Product implements Lookup.
func (m *Memory) Product(_ context.Context, id string) (cart.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return cart.Product{}, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	return p, nil
}
