package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/finchops/azreserve/pkg/catalog"
	"github.com/finchops/azreserve/pkg/config"
)

// hoursPerMonth is the utilization baseline used to amortize term totals
// into hourly-equivalent rates.
var hoursPerMonth = decimal.NewFromInt(730)

// retailResponse mirrors one page of the Azure Retail Prices API.
type retailResponse struct {
	Items        []retailItem `json:"Items"`
	NextPageLink string       `json:"NextPageLink"`
	Count        int          `json:"Count"`
}

type retailItem struct {
	UnitPrice       float64 `json:"unitPrice"`
	RetailPrice     float64 `json:"retailPrice"`
	ArmRegionName   string  `json:"armRegionName"`
	ArmSkuName      string  `json:"armSkuName"`
	ProductName     string  `json:"productName"`
	MeterName       string  `json:"meterName"`
	Type            string  `json:"type"`
	ReservationTerm string  `json:"reservationTerm"`
	CurrencyCode    string  `json:"currencyCode"`
}

// RetailClient is the primary price source: the Azure Retail Prices API.
//
// The API is queried once per SKU/region pair and the raw item list is held
// in memory for the rest of the batch, so the three term lookups for one
// resource cost a single round trip.
type RetailClient struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint string

	mu    sync.Mutex
	items map[string][]retailItem
}

// RetailOption overrides RetailClient defaults.
type RetailOption func(*RetailClient)

// WithRetailEndpoint points the client at a non-default API base URL.
func WithRetailEndpoint(endpoint string) RetailOption {
	return func(c *RetailClient) { c.endpoint = endpoint }
}

// WithRetailHTTPClient injects the HTTP client.
func WithRetailHTTPClient(h *http.Client) RetailOption {
	return func(c *RetailClient) { c.http = h }
}

// NewRetailClient initializes the primary source adapter.
func NewRetailClient(logger *slog.Logger, opts ...RetailOption) *RetailClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &RetailClient{
		logger:   logger,
		http:     &http.Client{Timeout: 30 * time.Second},
		endpoint: config.DefaultRetailEndpoint,
		items:    make(map[string][]retailItem),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query returns the hourly-equivalent unit price for a SKU/region/term, or
// ErrNotFound. Prices from this source are compute-only; OS licensing is
// reflected in meter selection, not in a separate charge.
func (c *RetailClient) Query(ctx context.Context, sku, region, os string, term Term) (*decimal.Decimal, error) {
	items, err := c.itemsFor(ctx, sku, region)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}

	if term == TermOnDemand {
		return selectOnDemand(items, os)
	}
	return selectReservation(items, os, term)
}

// itemsFor fetches (or replays) the full item list for a SKU/region pair,
// following NextPageLink pagination.
func (c *RetailClient) itemsFor(ctx context.Context, sku, region string) ([]retailItem, error) {
	key := Key(sku, region)

	c.mu.Lock()
	cached, ok := c.items[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	filter := fmt.Sprintf("serviceName eq 'Virtual Machines' and armSkuName eq '%s' and armRegionName eq '%s'", sku, region)
	next := c.endpoint + "?$filter=" + url.QueryEscape(filter)

	var all []retailItem
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		next = page.NextPageLink
	}

	c.mu.Lock()
	c.items[key] = all
	c.mu.Unlock()

	c.logger.Debug("retail prices fetched", "sku", sku, "region", region, "items", len(all))
	return all, nil
}

func (c *RetailClient) fetchPage(ctx context.Context, pageURL string) (*retailResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retail prices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retail prices: unexpected status %d", resp.StatusCode)
	}

	var page retailResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		// Undecodable page: treat as empty, not fatal.
		c.logger.Warn("retail prices page undecodable", "url", pageURL, "error", err)
		return &retailResponse{}, nil
	}
	return &page, nil
}

// selectOnDemand picks the pay-as-you-go meter. Spot and Low Priority
// meters never qualify. Linux takes the cheapest matching consumption
// meter; Windows does too, since its consumption meters already include
// the license charge.
func selectOnDemand(items []retailItem, os string) (*decimal.Decimal, error) {
	var best *decimal.Decimal
	for _, it := range items {
		if it.Type != "Consumption" || !matchesOS(it, os) {
			continue
		}
		price, ok := itemPrice(it)
		if !ok {
			continue
		}
		if best == nil || price.LessThan(*best) {
			best = &price
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// selectReservation picks the reserved meter for a term and amortizes its
// term total into an hourly-equivalent rate.
//
// Windows excludes hybrid-benefit meters so the license-included price
// wins; when no clean meter exists the generic reservation set is used and
// the highest-priced meter per term is kept, matching how license-included
// reservations price relative to AHB ones.
func selectReservation(items []retailItem, os string, term Term) (*decimal.Decimal, error) {
	wantYears := "1"
	months := int64(12)
	if term == TermReserved3Yr {
		wantYears = "3"
		months = 36
	}

	candidates := reservationCandidates(items, os)

	var picked *decimal.Decimal
	for _, it := range candidates {
		if !strings.Contains(it.ReservationTerm, wantYears) {
			continue
		}
		price, ok := itemPrice(it)
		if !ok {
			continue
		}
		if picked == nil {
			picked = &price
			continue
		}
		if os == catalog.OSWindows && price.GreaterThan(*picked) {
			picked = &price
		}
		if os != catalog.OSWindows && price.LessThan(*picked) {
			picked = &price
		}
	}
	if picked == nil {
		return nil, ErrNotFound
	}

	hourly := picked.Div(decimal.NewFromInt(months).Mul(hoursPerMonth))
	return &hourly, nil
}

func reservationCandidates(items []retailItem, os string) []retailItem {
	var out []retailItem
	if os == catalog.OSWindows {
		for _, it := range items {
			if it.Type != "Reservation" {
				continue
			}
			name := strings.ToLower(it.ProductName + it.MeterName)
			if strings.Contains(name, "ahb") || strings.Contains(name, "hybrid") {
				continue
			}
			out = append(out, it)
		}
		if len(out) > 0 {
			return out
		}
		// No clean license-included meter; fall back to the generic set.
		for _, it := range items {
			if it.Type == "Reservation" {
				out = append(out, it)
			}
		}
		return out
	}

	for _, it := range items {
		if it.Type == "Reservation" && matchesOS(it, os) {
			out = append(out, it)
		}
	}
	return out
}

// matchesOS applies the source's naming convention: Windows meters carry
// "windows" in the product or meter name, Linux meters do not. Spot and
// Low Priority meters are always excluded.
func matchesOS(it retailItem, os string) bool {
	name := strings.ToLower(it.ProductName)
	meter := strings.ToLower(it.MeterName)

	if strings.Contains(meter, "spot") || strings.Contains(meter, "low priority") {
		return false
	}

	if os == catalog.OSWindows {
		return strings.Contains(name, "windows") || strings.Contains(meter, "windows")
	}
	return !strings.Contains(name, "windows") && !strings.Contains(meter, "windows")
}

// itemPrice validates and coerces a source price. Non-positive values are
// malformed data and rejected here, at the adapter boundary.
func itemPrice(it retailItem) (decimal.Decimal, bool) {
	v := it.UnitPrice
	if v == 0 {
		v = it.RetailPrice
	}
	if v <= 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(v), true
}
