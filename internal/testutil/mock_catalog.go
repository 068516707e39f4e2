// Package testutil provides testing utilities for the catalog browser.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Product is a catalog record served by MockCatalog. A nil Brand is served as null.
type Product struct {
	ID      string
	Brand   *string
	Product string
	Price   float64
}

// MockFailure makes an action answer with an error.
type MockFailure struct {
	StatusCode int
	Body       string
	// Times limits how often the failure fires; 0 means always.
	Times int
}

// MockCatalog is a configurable fake of the catalog action API.
type MockCatalog struct {
	server *httptest.Server

	mu       sync.RWMutex
	products []Product
	failures map[string]*MockFailure
	delays   map[string]time.Duration

	// Tracking
	RequestCount  int
	ActionCounts  map[string]int
	LastAuth      string
	LastUserAgent string
	LastParams    map[string]json.RawMessage
}

// NewMockCatalog creates a fake catalog server holding products.
func NewMockCatalog(products []Product) *MockCatalog {
	mock := &MockCatalog{
		products:     products,
		failures:     make(map[string]*MockFailure),
		delays:       make(map[string]time.Duration),
		ActionCounts: make(map[string]int),
		LastParams:   make(map[string]json.RawMessage),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ActionCounts = make(map[string]int)
	m.LastAuth = ""
	m.LastUserAgent = ""
	m.LastParams = make(map[string]json.RawMessage)
}

// SetFailure makes action fail as described until cleared.
func (m *MockCatalog) SetFailure(action string, failure MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := failure
	m.failures[action] = &f
}

// ClearFailure removes a configured failure.
func (m *MockCatalog) ClearFailure(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, action)
}

// SetDelay delays every answer to action.
func (m *MockCatalog) SetDelay(action string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[action] = d
}

// GetActionCount returns how many times action was called.
func (m *MockCatalog) GetActionCount(action string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ActionCounts[action]
}

// GetLastAuth returns the X-Auth header of the last request.
func (m *MockCatalog) GetLastAuth() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastAuth
}

// GetLastParams returns the raw params of the last call to action.
func (m *MockCatalog) GetLastParams(action string) json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastParams[action]
}

type mockRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.RequestCount++
	m.ActionCounts[req.Action]++
	m.LastAuth = r.Header.Get("X-Auth")
	m.LastUserAgent = r.Header.Get("User-Agent")
	m.LastParams[req.Action] = req.Params
	delay := m.delays[req.Action]
	var failure *MockFailure
	if f, ok := m.failures[req.Action]; ok {
		failure = f
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(m.failures, req.Action)
			}
		}
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if failure != nil {
		w.WriteHeader(failure.StatusCode)
		if failure.Body != "" {
			w.Write([]byte(failure.Body))
		}
		return
	}

	result, err := m.dispatch(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func (m *MockCatalog) dispatch(req mockRequest) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch req.Action {
	case "get_ids":
		var p struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("get_ids params: %w", err)
		}
		ids := []string{}
		for i := p.Offset; i < len(m.products) && i < p.Offset+p.Limit; i++ {
			ids = append(ids, m.products[i].ID)
		}
		return ids, nil

	case "get_items":
		var p struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("get_items params: %w", err)
		}
		items := []map[string]any{}
		for _, id := range p.IDs {
			for _, prod := range m.products {
				if prod.ID == id {
					items = append(items, encodeProduct(prod))
				}
			}
		}
		return items, nil

	case "get_fields":
		var p struct {
			Field string `json:"field"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("get_fields params: %w", err)
		}
		if p.Field != "brand" {
			return nil, fmt.Errorf("unsupported field %q", p.Field)
		}
		brands := []*string{}
		for _, prod := range m.products {
			brands = append(brands, prod.Brand)
		}
		return brands, nil

	case "filter":
		var p struct {
			Brand *string `json:"brand"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("filter params: %w", err)
		}
		ids := []string{}
		for _, prod := range m.products {
			if p.Brand != nil && prod.Brand != nil && *prod.Brand == *p.Brand {
				ids = append(ids, prod.ID)
			}
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}

func encodeProduct(p Product) map[string]any {
	var brand any
	if p.Brand != nil {
		brand = *p.Brand
	}
	return map[string]any{
		"id":      p.ID,
		"brand":   brand,
		"product": p.Product,
		"price":   p.Price,
	}
}

// Brand returns a pointer to s, for building Product values.
func Brand(s string) *string {
	return &s
}

// Products builds n products with ids "id-000".."id-<n-1>", alternating the given brands.
func Products(n int, brands ...string) []Product {
	products := make([]Product, 0, n)
	for i := 0; i < n; i++ {
		p := Product{
			ID:      fmt.Sprintf("id-%03d", i),
			Product: fmt.Sprintf("Product %d", i),
			Price:   float64(1000 + i),
		}
		if len(brands) > 0 {
			p.Brand = Brand(brands[i%len(brands)])
		}
		products = append(products, p)
	}
	return products
}
