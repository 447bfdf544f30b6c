package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/finchops/azreserve/pkg/catalog"
)

// Resolver reconciles the two price sources under a fixed precedence:
//
//  1. Primary (the pricing API). A usable price wins outright and is
//     compute-only.
//  2. The cache, then the secondary source on a miss, storing the result.
//  3. Both exhausted: a quote with Source=None and no price. That is a
//     recoverable per-resource gap, never a batch failure.
//
// Concurrent lookups for the same SKU/region pair coalesce into a single
// secondary fetch; a pair whose fetch failed is not retried within the
// batch.
type Resolver struct {
	logger    *slog.Logger
	primary   PrimarySource
	secondary SecondarySource
	cache     *QuoteCache

	flight singleflight.Group

	mu     sync.Mutex
	failed map[string]bool
}

// NewResolver wires the reconciliation engine.
func NewResolver(logger *slog.Logger, primary PrimarySource, secondary SecondarySource, cache *QuoteCache) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		logger:    logger,
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		failed:    make(map[string]bool),
	}
}

// Resolve produces the authoritative quote for one descriptor and term.
func (r *Resolver) Resolve(ctx context.Context, desc catalog.ResourceDescriptor, term Term) PriceQuote {
	q, _ := r.resolve(ctx, desc, term)
	return q
}

// resolve also reports whether the primary pushed back, so callers running
// under an adaptive pool can feed the signal upstream. The quote itself is
// always usable regardless of the error.
func (r *Resolver) resolve(ctx context.Context, desc catalog.ResourceDescriptor, term Term) (PriceQuote, error) {
	sku := catalog.NormalizeSKU(desc.SKU)
	region := catalog.NormalizeRegion(desc.Region)

	price, err := r.primary.Query(ctx, sku, region, desc.OS, term)
	if err == nil && price != nil {
		return PriceQuote{
			SKU:       sku,
			Region:    region,
			Term:      term,
			UnitPrice: price,
			Source:    SourcePrimary,
		}, nil
	}
	var throttleErr error
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Unavailable is recovered locally: treated as not-found, logged.
		r.logger.Warn("primary source unavailable", "sku", sku, "region", region, "term", term, "error", err)
		if errors.Is(err, ErrThrottled) {
			throttleErr = ErrThrottled
		}
	}

	if page, ok := r.pageFor(ctx, sku, region); ok {
		if p := page.ForTerm(term); p != nil {
			return PriceQuote{
				SKU:               sku,
				Region:            region,
				Term:              term,
				UnitPrice:         p,
				Source:            SourceSecondary,
				IncludesOSLicense: page.IncludesLicense,
			}, throttleErr
		}
	}

	return PriceQuote{SKU: sku, Region: region, Term: term, Source: SourceNone}, throttleErr
}

// ResolveAll resolves the full three-term comparison set for a resource.
//
// The set must not mix license-inclusive and compute-only prices. When
// precedence produces a mixed set and the secondary page covers all three
// terms, the whole set is rebuilt from the page; otherwise the mixed set is
// returned as-is and the savings calculator excludes the resource.
//
// The returned error is purely a backpressure signal (ErrThrottled when the
// primary pushed back on any term); the quotes are valid either way.
func (r *Resolver) ResolveAll(ctx context.Context, desc catalog.ResourceDescriptor) (TermQuotes, error) {
	var quotes TermQuotes
	var throttleErr error
	for _, term := range AllTerms {
		q, err := r.resolve(ctx, desc, term)
		if err != nil {
			throttleErr = err
		}
		switch term {
		case TermOnDemand:
			quotes.OnDemand = q
		case TermReserved1Yr:
			quotes.Reserved1Yr = q
		case TermReserved3Yr:
			quotes.Reserved3Yr = q
		}
	}

	if !MixedLicenseBasis(quotes) {
		return quotes, throttleErr
	}

	sku := catalog.NormalizeSKU(desc.SKU)
	region := catalog.NormalizeRegion(desc.Region)
	if page, ok := r.pageFor(ctx, sku, region); ok && page.Complete() {
		for _, term := range AllTerms {
			q := PriceQuote{
				SKU:               sku,
				Region:            region,
				Term:              term,
				UnitPrice:         page.ForTerm(term),
				Source:            SourceSecondary,
				IncludesOSLicense: page.IncludesLicense,
			}
			switch term {
			case TermOnDemand:
				quotes.OnDemand = q
			case TermReserved1Yr:
				quotes.Reserved1Yr = q
			case TermReserved3Yr:
				quotes.Reserved3Yr = q
			}
		}
	}

	return quotes, throttleErr
}

// Prefetch warms the cache with the secondary snapshot for a SKU/region
// pair. Useful for running the scrape session alongside primary lookups
// instead of on their miss path.
func (r *Resolver) Prefetch(ctx context.Context, sku, region string) {
	r.pageFor(ctx, catalog.NormalizeSKU(sku), catalog.NormalizeRegion(region))
}

// MixedLicenseBasis reports whether resolved quotes disagree on license
// inclusion. Such a set must never feed one savings comparison.
func MixedLicenseBasis(quotes TermQuotes) bool {
	sawLicensed := false
	sawCompute := false
	for _, term := range AllTerms {
		q := quotes.ForTerm(term)
		if !q.Resolved() {
			continue
		}
		if q.IncludesOSLicense {
			sawLicensed = true
		} else {
			sawCompute = true
		}
	}
	return sawLicensed && sawCompute
}

// pageFor returns the secondary snapshot for a pair, consulting the cache
// first and coalescing concurrent fetches. A pair that already failed this
// batch short-circuits to a miss instead of re-scraping.
func (r *Resolver) pageFor(ctx context.Context, sku, region string) (PageQuote, bool) {
	if entry, ok := r.cache.Get(sku, region); ok {
		return entry.Page, true
	}

	key := Key(sku, region)

	r.mu.Lock()
	alreadyFailed := r.failed[key]
	r.mu.Unlock()
	if alreadyFailed {
		return PageQuote{}, false
	}

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		// Another caller may have populated the cache while we queued.
		if entry, ok := r.cache.Get(sku, region); ok {
			return entry.Page, nil
		}
		page, err := r.secondary.Fetch(ctx, sku, region)
		if err != nil {
			return PageQuote{}, err
		}
		r.cache.Put(sku, region, page)
		return page, nil
	})
	if err != nil {
		r.mu.Lock()
		r.failed[key] = true
		r.mu.Unlock()
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("secondary source unavailable", "sku", sku, "region", region, "error", err)
		}
		return PageQuote{}, false
	}

	return v.(PageQuote), true
}
