package retrieval

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"halcon/internal/domain"

	"go.uber.org/zap"
)

const apiFixture = `{
	"results": [
		{
			"title": "iPhone 13 128GB Azul",
			"price": 1850000,
			"currency_id": "COP",
			"condition": "new",
			"thumbnail": "https://http2.mlstatic.com/D_NQ_NP_123456-I.jpg",
			"permalink": "https://articulo.mercadolibre.com.co/MCO-600000001",
			"shipping": {"free_shipping": true},
			"address": {"state_name": "Bogotá D.C.", "city_name": "Bogotá"},
			"seller": {"seller_reputation": {"level_id": "5_green"}}
		},
		{
			"title": "iPhone 13 usado",
			"price": 1500000,
			"currency_id": "COP",
			"condition": "used",
			"thumbnail": "",
			"permalink": "https://articulo.mercadolibre.com.co/MCO-600000002",
			"shipping": {"free_shipping": false},
			"address": {"state_name": "Antioquia", "city_name": ""},
			"seller": {"seller_reputation": {"level_id": ""}}
		},
		{
			"title": "",
			"price": 900000,
			"currency_id": "COP",
			"condition": "new",
			"permalink": "https://articulo.mercadolibre.com.co/MCO-600000003"
		}
	]
}`

func TestAPIStrategyFetch(t *testing.T) {
	var gotQuery, gotLimit, gotPrice, gotCondition, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		gotPrice = r.URL.Query().Get("price")
		gotCondition = r.URL.Query().Get("condition")
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(apiFixture))
	}))
	defer server.Close()

	price := 2000000.0
	strategy := NewAPIStrategy(server.URL, "MCO", "test-token", "", 5*time.Second, zap.NewNop())

	listings, err := strategy.Fetch(context.Background(), domain.StructuredQuery{
		ProductName: "iPhone 13",
		MaxPrice:    &price,
		Condition:   domain.ConditionNew,
		NumResults:  10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Request shape
	if gotQuery != "iPhone 13" {
		t.Errorf("expected q=iPhone 13, got %q", gotQuery)
	}
	if gotLimit != "10" {
		t.Errorf("expected limit=10, got %q", gotLimit)
	}
	if gotPrice != "0-2000000" {
		t.Errorf("expected price=0-2000000, got %q", gotPrice)
	}
	if gotCondition != "new" {
		t.Errorf("expected condition=new, got %q", gotCondition)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}

	// Malformed third item is skipped, not fatal
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.Title != "iPhone 13 128GB Azul" {
		t.Errorf("unexpected title %q", first.Title)
	}
	if first.ConditionLabel != domain.ConditionLabelNew {
		t.Errorf("expected condition %q, got %q", domain.ConditionLabelNew, first.ConditionLabel)
	}
	if first.Thumbnail != "https://http2.mlstatic.com/D_NQ_NP_123456-O.jpg" {
		t.Errorf("thumbnail was not upscaled: %q", first.Thumbnail)
	}
	if !first.FreeShipping {
		t.Error("expected free shipping on first listing")
	}
	if first.Location != "Bogotá, Bogotá D.C." {
		t.Errorf("unexpected location %q", first.Location)
	}
	if first.SellerReputation != "5_green" {
		t.Errorf("unexpected seller reputation %q", first.SellerReputation)
	}

	second := listings[1]
	if second.ConditionLabel != domain.ConditionLabelUsed {
		t.Errorf("expected condition %q, got %q", domain.ConditionLabelUsed, second.ConditionLabel)
	}
	if second.Location != "Antioquia" {
		t.Errorf("expected state-only location, got %q", second.Location)
	}
}

func TestAPIStrategyCapsLimit(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	strategy := NewAPIStrategy(server.URL, "MCO", "", "", 5*time.Second, zap.NewNop())

	// NumResults above the endpoint cap is clamped in the request
	listings, err := strategy.Fetch(context.Background(), domain.StructuredQuery{
		ProductName: "televisor",
		Condition:   domain.ConditionAny,
		NumResults:  200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != "50" {
		t.Errorf("expected limit=50, got %q", gotLimit)
	}
	if len(listings) != 0 {
		t.Errorf("expected no listings, got %d", len(listings))
	}
}

func TestAPIStrategyNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	strategy := NewAPIStrategy(server.URL, "MCO", "", "", 5*time.Second, zap.NewNop())

	_, err := strategy.Fetch(context.Background(), domain.StructuredQuery{
		ProductName: "televisor",
		Condition:   domain.ConditionAny,
		NumResults:  10,
	})
	if !errors.Is(err, ErrAPIRequest) {
		t.Fatalf("expected ErrAPIRequest, got %v", err)
	}
}
