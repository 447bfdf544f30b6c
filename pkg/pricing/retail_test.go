package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/finchops/azreserve/pkg/catalog"
)

func retailServer(t *testing.T, body string, hits *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRetailClient_OnDemandPicksCheapestAndSkipsSpot(t *testing.T) {
	srv := retailServer(t, `{"Items": [
		{"unitPrice": 0.05, "productName": "D4s v5 Spot", "meterName": "D4s v5 Spot", "type": "Consumption"},
		{"unitPrice": 0.06, "productName": "D4s v5", "meterName": "D4s v5 Low Priority", "type": "Consumption"},
		{"unitPrice": 0.25, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"},
		{"unitPrice": 0.20, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"}
	]}`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	price, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(0.20)) {
		t.Errorf("Expected cheapest non-spot meter 0.20, got %s", price)
	}
}

func TestRetailClient_LinuxExcludesWindowsMeters(t *testing.T) {
	srv := retailServer(t, `{"Items": [
		{"unitPrice": 0.40, "productName": "D4s v5 Windows", "meterName": "D4s v5", "type": "Consumption"},
		{"unitPrice": 0.25, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"}
	]}`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	price, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("Expected linux meter 0.25, got %s", price)
	}
}

func TestRetailClient_ReservationAmortizesToHourly(t *testing.T) {
	// 8760 over a 1-year term at 730 h/mo is exactly 1.00/hr.
	srv := retailServer(t, `{"Items": [
		{"unitPrice": 8760, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"},
		{"unitPrice": 15768, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "3 Years"}
	]}`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))

	oneYr, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermReserved1Yr)
	if err != nil {
		t.Fatalf("1yr query failed: %v", err)
	}
	if !oneYr.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected 1yr hourly 1, got %s", oneYr)
	}

	threeYr, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermReserved3Yr)
	if err != nil {
		t.Fatalf("3yr query failed: %v", err)
	}
	// 15768 / (36 * 730) = 0.6
	if !threeYr.Equal(decimal.NewFromFloat(0.6)) {
		t.Errorf("Expected 3yr hourly 0.6, got %s", threeYr)
	}
}

func TestRetailClient_WindowsReservationExcludesHybridBenefit(t *testing.T) {
	srv := retailServer(t, `{"Items": [
		{"unitPrice": 5000, "productName": "D4s v5 Windows AHB", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"},
		{"unitPrice": 6000, "productName": "D4s v5 Hybrid Benefit", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"},
		{"unitPrice": 8760, "productName": "D4s v5 Windows", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"}
	]}`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	price, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSWindows, TermReserved1Yr)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected license-included meter (8760 -> 1/hr), got %s", price)
	}
}

func TestRetailClient_WindowsFallbackKeepsHighest(t *testing.T) {
	// Only AHB meters exist: fall back to the generic set and keep the
	// highest-priced meter for the term.
	srv := retailServer(t, `{"Items": [
		{"unitPrice": 5256, "productName": "D4s v5 AHB", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"},
		{"unitPrice": 8760, "productName": "D4s v5 Hybrid", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"}
	]}`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	price, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSWindows, TermReserved1Yr)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected highest fallback meter (8760 -> 1/hr), got %s", price)
	}
}

func TestRetailClient_Pagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"Items": [
				{"unitPrice": 0.20, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"}
			]}`)
			return
		}
		fmt.Fprintf(w, `{"Items": [
			{"unitPrice": 0.30, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"}
		], "NextPageLink": "%s?page=2"}`, srv.URL)
	}))
	defer srv.Close()

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	price, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(0.20)) {
		t.Errorf("Expected cheapest across pages 0.20, got %s", price)
	}
}

func TestRetailClient_SingleFetchPerPair(t *testing.T) {
	var hits int64
	srv := retailServer(t, `{"Items": [
		{"unitPrice": 0.20, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"},
		{"unitPrice": 8760, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Reservation", "reservationTerm": "1 Year"}
	]}`, &hits)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	ctx := context.Background()
	if _, err := c.Query(ctx, "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand); err != nil {
		t.Fatalf("on-demand query failed: %v", err)
	}
	if _, err := c.Query(ctx, "standard_d4s_v5", "eastus", catalog.OSLinux, TermReserved1Yr); err != nil {
		t.Fatalf("1yr query failed: %v", err)
	}

	if hits != 1 {
		t.Errorf("Expected 1 API round trip for both terms, got %d", hits)
	}
}

func TestRetailClient_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	_, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand)
	if !errors.Is(err, ErrThrottled) {
		t.Errorf("Expected ErrThrottled, got %v", err)
	}
}

func TestRetailClient_MalformedPayloadIsNotFound(t *testing.T) {
	srv := retailServer(t, `<html>not json</html>`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	_, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for malformed payload, got %v", err)
	}
}

func TestRetailClient_NegativePriceRejected(t *testing.T) {
	srv := retailServer(t, `{"Items": [
		{"unitPrice": -5, "productName": "D4s v5 Series", "meterName": "D4s v5", "type": "Consumption"}
	]}`, nil)

	c := NewRetailClient(nil, WithRetailEndpoint(srv.URL))
	_, err := c.Query(context.Background(), "standard_d4s_v5", "eastus", catalog.OSLinux, TermOnDemand)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for malformed price, got %v", err)
	}
}
