package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/sync/semaphore"

	"github.com/finchops/azreserve/pkg/config"
)

// Scraper is the secondary price source: a third-party pricing page listing
// license-inclusive monthly prices for all three plans at once.
//
// The underlying page session supports a single in-flight request, so the
// scraper serializes all fetches through a weighted semaphore. Acquisition
// is scoped with guaranteed release, including on parse failures.
type Scraper struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint string
	session  *semaphore.Weighted
}

// ScrapeOption overrides Scraper defaults.
type ScrapeOption func(*Scraper)

// WithScrapeEndpoint points the scraper at a non-default page base URL.
func WithScrapeEndpoint(endpoint string) ScrapeOption {
	return func(s *Scraper) { s.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithScrapeHTTPClient injects the HTTP client.
func WithScrapeHTTPClient(h *http.Client) ScrapeOption {
	return func(s *Scraper) { s.http = h }
}

// NewScraper initializes the secondary source adapter.
func NewScraper(logger *slog.Logger, opts ...ScrapeOption) *Scraper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scraper{
		logger:   logger,
		http:     &http.Client{Timeout: 45 * time.Second},
		endpoint: config.DefaultScrapeEndpoint,
		session:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch retrieves the price page for a SKU/region pair and extracts the
// three plan prices. Prices on the page are monthly and license-inclusive;
// they are normalized to hourly-equivalent rates here.
func (s *Scraper) Fetch(ctx context.Context, sku, region string) (PageQuote, error) {
	if err := s.session.Acquire(ctx, 1); err != nil {
		return PageQuote{}, err
	}
	defer s.session.Release(1)

	pageURL := fmt.Sprintf("%s/%s?currency=USD&platform=windows&duration=monthly&pricingType=Standard.allUpfront&region=%s",
		s.endpoint, SanitizeSKU(sku), strings.ToLower(strings.TrimSpace(region)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return PageQuote{}, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return PageQuote{}, fmt.Errorf("scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PageQuote{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return PageQuote{}, fmt.Errorf("scrape: unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return PageQuote{}, fmt.Errorf("scrape parse: %w", err)
	}

	quote := extractPageQuote(doc)
	if quote.OnDemand == nil && quote.Reserved1Yr == nil && quote.Reserved3Yr == nil {
		return PageQuote{}, ErrNotFound
	}

	s.logger.Debug("scraped price page", "sku", sku, "region", region, "complete", quote.Complete())
	return quote, nil
}

// SanitizeSKU converts an inventory SKU to the page's URL convention:
// "Standard_D4s_v3" becomes "d4s-v3".
func SanitizeSKU(sku string) string {
	s := strings.TrimSpace(sku)
	if len(s) >= len("standard_") && strings.EqualFold(s[:len("standard_")], "standard_") {
		s = s[len("standard_"):]
	}
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}

// extractPageQuote walks the document looking for bold price paragraphs
// whose enclosing block names one of the three plans.
func extractPageQuote(doc *html.Node) PageQuote {
	quote := PageQuote{IncludesLicense: true}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			if price, ok := parseMoney(textContent(n)); ok && n.Parent != nil {
				label := strings.ToLower(textContent(n.Parent))
				switch {
				case strings.Contains(label, "on demand"):
					quote.OnDemand = hourlyFromMonthly(price)
				case strings.Contains(label, "1-year reserved"):
					quote.Reserved1Yr = hourlyFromMonthly(price)
				case strings.Contains(label, "3-year reserved"):
					quote.Reserved3Yr = hourlyFromMonthly(price)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return quote
}

func hourlyFromMonthly(monthly decimal.Decimal) *decimal.Decimal {
	hourly := monthly.Div(hoursPerMonth)
	return &hourly
}

// parseMoney extracts a leading dollar amount like "$1,234.56" from a text
// fragment. Anything else fails validation and is ignored.
func parseMoney(text string) (decimal.Decimal, bool) {
	field := strings.Fields(strings.TrimSpace(text))
	if len(field) == 0 || !strings.HasPrefix(field[0], "$") {
		return decimal.Decimal{}, false
	}
	raw := strings.ReplaceAll(strings.TrimPrefix(field[0], "$"), ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return d, true
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
