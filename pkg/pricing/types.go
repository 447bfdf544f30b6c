// Package pricing reconciles VM prices from two independent sources: the
// Azure Retail Prices API (compute-only) and a scraped pricing page
// (license-inclusive), with a persisted cache in front of the scraper.
package pricing

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates a source has no usable price for the query.
// Transport failures and malformed source data are mapped to this error at
// the adapter boundary; neither aborts a batch.
var ErrNotFound = errors.New("price not found")

// ErrThrottled indicates the primary source rejected the call for rate
// limiting. The worker pool reacts by reducing concurrency; the resolver
// treats it like any other unavailable-source condition.
var ErrThrottled = errors.New("source throttled")

// Term identifies a billing plan.
type Term string

const (
	TermOnDemand    Term = "on_demand"
	TermReserved1Yr Term = "reserved_1yr"
	TermReserved3Yr Term = "reserved_3yr"
)

// AllTerms lists the billing plans in comparison order.
var AllTerms = []Term{TermOnDemand, TermReserved1Yr, TermReserved3Yr}

// Source identifies where a quote came from.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceNone      Source = "none"
)

// PriceQuote is the resolved hourly-equivalent unit price for one
// SKU/region/term. Reserved terms are already amortized by the adapters;
// the savings calculator never re-derives amortization. UnitPrice is nil
// when both sources were exhausted without a usable price.
//
// Quotes are never mutated after creation.
type PriceQuote struct {
	SKU               string           `json:"sku"`
	Region            string           `json:"region"`
	Term              Term             `json:"term"`
	UnitPrice         *decimal.Decimal `json:"unit_price"`
	Source            Source           `json:"source"`
	IncludesOSLicense bool             `json:"includes_os_license"`
}

// Resolved reports whether the quote carries a usable price.
func (q PriceQuote) Resolved() bool {
	return q.Source != SourceNone && q.UnitPrice != nil
}

// TermQuotes is the full comparison set for one resource.
type TermQuotes struct {
	OnDemand    PriceQuote `json:"on_demand"`
	Reserved1Yr PriceQuote `json:"reserved_1yr"`
	Reserved3Yr PriceQuote `json:"reserved_3yr"`
}

// ForTerm returns the quote for a term.
func (t TermQuotes) ForTerm(term Term) PriceQuote {
	switch term {
	case TermReserved1Yr:
		return t.Reserved1Yr
	case TermReserved3Yr:
		return t.Reserved3Yr
	default:
		return t.OnDemand
	}
}

// PageQuote is the secondary source's per-page result: hourly-equivalent
// prices for all three terms, scraped in one visit. Nil fields mean the
// page did not list that plan.
type PageQuote struct {
	OnDemand        *decimal.Decimal `json:"on_demand"`
	Reserved1Yr     *decimal.Decimal `json:"reserved_1yr"`
	Reserved3Yr     *decimal.Decimal `json:"reserved_3yr"`
	IncludesLicense bool             `json:"includes_license"`
}

// ForTerm returns the page price for a term, or nil.
func (p PageQuote) ForTerm(term Term) *decimal.Decimal {
	switch term {
	case TermReserved1Yr:
		return p.Reserved1Yr
	case TermReserved3Yr:
		return p.Reserved3Yr
	default:
		return p.OnDemand
	}
}

// Complete reports whether the page yielded all three terms.
func (p PageQuote) Complete() bool {
	return p.OnDemand != nil && p.Reserved1Yr != nil && p.Reserved3Yr != nil
}

// CacheEntry is a persisted PageQuote snapshot. Entries carry no TTL; the
// core only invalidates on explicit deletion and leaves staleness policy
// to the caller.
type CacheEntry struct {
	SKU       string    `json:"sku"`
	Region    string    `json:"region"`
	Page      PageQuote `json:"page"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key builds the normalized cache/dedup key for a SKU/region pair. Both
// sources use inconsistent casing, so all lookups go through this.
func Key(sku, region string) string {
	return strings.ToLower(strings.TrimSpace(sku)) + "|" + strings.ToLower(strings.TrimSpace(region))
}
