package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/finchops/azreserve/pkg/catalog"
	"github.com/finchops/azreserve/pkg/storage"
)

type fakePrimary struct {
	mu     sync.Mutex
	prices map[Term]decimal.Decimal
	err    error
	calls  int
}

func (f *fakePrimary) Query(ctx context.Context, sku, region, os string, term Term) (*decimal.Decimal, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.prices[term]; ok {
		return &p, nil
	}
	return nil, ErrNotFound
}

type fakeSecondary struct {
	mu    sync.Mutex
	page  PageQuote
	err   error
	calls int
}

func (f *fakeSecondary) Fetch(ctx context.Context, sku, region string) (PageQuote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return PageQuote{}, f.err
	}
	return f.page, nil
}

func testDescriptor() catalog.ResourceDescriptor {
	return catalog.ResourceDescriptor{
		Name:          "web-01",
		SKU:           "standard_d4s_v5",
		Region:        "eastus",
		OS:            catalog.OSLinux,
		HoursPerMonth: 730,
	}
}

func newTestResolver(t *testing.T, primary PrimarySource, secondary SecondarySource) (*Resolver, *QuoteCache) {
	t.Helper()
	cache := NewQuoteCache(nil, storage.NewLocalStore(t.TempDir()), "cache/prices.json")
	return NewResolver(nil, primary, secondary, cache), cache
}

func TestResolver_PrimaryWins(t *testing.T) {
	primary := &fakePrimary{prices: map[Term]decimal.Decimal{TermOnDemand: decimal.NewFromFloat(0.2)}}
	secondary := &fakeSecondary{page: testPage(1.0)}
	r, _ := newTestResolver(t, primary, secondary)

	q := r.Resolve(context.Background(), testDescriptor(), TermOnDemand)
	if q.Source != SourcePrimary {
		t.Fatalf("Expected primary source, got %s", q.Source)
	}
	if !q.UnitPrice.Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("Expected primary price 0.2, got %s", q.UnitPrice)
	}
	if q.IncludesOSLicense {
		t.Error("Primary prices are compute-only")
	}
	if secondary.calls != 0 {
		t.Errorf("Secondary should not be consulted, got %d calls", secondary.calls)
	}
}

func TestResolver_FallsBackToSecondary(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{page: testPage(1.0)}
	r, cache := newTestResolver(t, primary, secondary)

	q := r.Resolve(context.Background(), testDescriptor(), TermReserved1Yr)
	if q.Source != SourceSecondary {
		t.Fatalf("Expected secondary source, got %s", q.Source)
	}
	if !q.UnitPrice.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("Expected page 1yr price 0.5, got %s", q.UnitPrice)
	}
	if !q.IncludesOSLicense {
		t.Error("Secondary prices are license-inclusive")
	}
	if cache.Len() != 1 {
		t.Errorf("Expected successful scrape to be cached, got %d entries", cache.Len())
	}
}

func TestResolver_CacheBeatsSecondary(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{page: testPage(9.0)}
	r, cache := newTestResolver(t, primary, secondary)

	cache.Put("standard_d4s_v5", "eastus", testPage(1.0))

	q := r.Resolve(context.Background(), testDescriptor(), TermOnDemand)
	if !q.UnitPrice.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected cached price 1, got %s", q.UnitPrice)
	}
	if secondary.calls != 0 {
		t.Errorf("Cache hit must not scrape, got %d calls", secondary.calls)
	}
}

func TestResolver_BothExhausted(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{err: ErrNotFound}
	r, _ := newTestResolver(t, primary, secondary)

	q := r.Resolve(context.Background(), testDescriptor(), TermOnDemand)
	if q.Source != SourceNone {
		t.Fatalf("Expected SourceNone, got %s", q.Source)
	}
	if q.UnitPrice != nil {
		t.Error("Unpriced quote must not carry a price")
	}
	if q.Resolved() {
		t.Error("SourceNone quote must not report resolved")
	}
}

func TestResolver_SecondaryFetchedOncePerPair(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{page: testPage(1.0)}
	r, _ := newTestResolver(t, primary, secondary)

	// Three terms for two resources sharing a SKU/region pair.
	if _, err := r.ResolveAll(context.Background(), testDescriptor()); err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	other := testDescriptor()
	other.Name = "web-02"
	if _, err := r.ResolveAll(context.Background(), other); err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	if secondary.calls != 1 {
		t.Errorf("Expected one scrape for the pair, got %d", secondary.calls)
	}
}

func TestResolver_FailedPairNotRetried(t *testing.T) {
	primary := &fakePrimary{}
	secondary := &fakeSecondary{err: errors.New("session reset")}
	r, cache := newTestResolver(t, primary, secondary)

	if _, err := r.ResolveAll(context.Background(), testDescriptor()); err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	if secondary.calls != 1 {
		t.Errorf("Expected failed pair to short-circuit, got %d calls", secondary.calls)
	}
	if cache.Len() != 0 {
		t.Error("Failures must never be cached")
	}
}

func TestResolver_MixedLicenseRebuiltFromPage(t *testing.T) {
	// Primary covers only on-demand; reserved terms come from the page.
	// That mixes compute-only with license-inclusive, so the whole set is
	// rebuilt from the complete page.
	primary := &fakePrimary{prices: map[Term]decimal.Decimal{TermOnDemand: decimal.NewFromFloat(0.2)}}
	secondary := &fakeSecondary{page: testPage(1.0)}
	r, _ := newTestResolver(t, primary, secondary)

	quotes, err := r.ResolveAll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	if MixedLicenseBasis(quotes) {
		t.Fatal("Expected a uniform license basis after rebuild")
	}
	if quotes.OnDemand.Source != SourceSecondary {
		t.Errorf("Expected on-demand rebuilt from page, got %s", quotes.OnDemand.Source)
	}
	if !quotes.OnDemand.UnitPrice.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected page on-demand price 1, got %s", quotes.OnDemand.UnitPrice)
	}
	if !quotes.OnDemand.IncludesOSLicense {
		t.Error("Rebuilt quotes must be license-inclusive")
	}
}

func TestResolver_MixedLicenseKeptWhenPageIncomplete(t *testing.T) {
	page := testPage(1.0)
	page.Reserved3Yr = nil
	primary := &fakePrimary{prices: map[Term]decimal.Decimal{TermOnDemand: decimal.NewFromFloat(0.2)}}
	secondary := &fakeSecondary{page: page}
	r, _ := newTestResolver(t, primary, secondary)

	quotes, err := r.ResolveAll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	if !MixedLicenseBasis(quotes) {
		t.Error("Expected the mixed set to survive; exclusion happens downstream")
	}
}

func TestResolver_ThrottleSignalSurfaces(t *testing.T) {
	primary := &fakePrimary{err: ErrThrottled}
	secondary := &fakeSecondary{page: testPage(1.0)}
	r, _ := newTestResolver(t, primary, secondary)

	quotes, err := r.ResolveAll(context.Background(), testDescriptor())
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("Expected throttle signal, got %v", err)
	}
	// The quotes themselves still resolve via the fallback.
	if quotes.OnDemand.Source != SourceSecondary {
		t.Errorf("Expected fallback quote despite throttle, got %s", quotes.OnDemand.Source)
	}
}
