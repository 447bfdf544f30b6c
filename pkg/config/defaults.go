// Package config defines default configuration for filtering and pricing.
package config

// FilterConfig defines the candidate selection policy applied before pricing.
type FilterConfig struct {
	// MinAnnualSavings is the projected-savings threshold in currency units.
	MinAnnualSavings float64
	// MinCount is the floor: if fewer candidates pass the threshold, the
	// filter relaxes until this many are kept (or candidates run out).
	MinCount int
}

// PricingConfig defines batch pricing behavior.
type PricingConfig struct {
	// MaxConcurrency bounds parallel primary-source queries.
	MaxConcurrency int
	// HoursPerMonth is the default utilization assumed when the inventory
	// does not carry per-VM hours.
	HoursPerMonth float64
	// CacheKey is the blob key the persisted price cache lives under.
	CacheKey string
}

// Defaults.
const (
	DefaultRetailEndpoint = "https://prices.azure.com/api/retail/prices"
	DefaultScrapeEndpoint = "https://instances.vantage.sh/azure/vm"
	DefaultOutputDir      = "azreserve-out"
)

// DefaultFilterConfig returns the default selection policy.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinAnnualSavings: 100.0,
		MinCount:         20,
	}
}

// DefaultPricingConfig returns default pricing behavior.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		MaxConcurrency: 8,
		HoursPerMonth:  730,
		CacheKey:       "cache/prices.json",
	}
}
