package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// PrimarySource queries the structured pricing API for a single
// SKU/region/term. Calls are synchronous from the resolver's viewpoint.
// A source that does not carry a term for a SKU returns ErrNotFound.
type PrimarySource interface {
	Query(ctx context.Context, sku, region, os string, term Term) (*decimal.Decimal, error)
}

// SecondarySource retrieves the license-inclusive price page for a
// SKU/region pair. Retrieval is the most expensive operation in a batch;
// callers must deduplicate through the cache.
type SecondarySource interface {
	Fetch(ctx context.Context, sku, region string) (PageQuote, error)
}
