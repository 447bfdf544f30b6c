// Package savings turns resolved price quotes into reservation savings
// figures. Resources that could not be fully priced are excluded from the
// arithmetic and surfaced separately, never silently zero-filled.
package savings

import (
	"github.com/shopspring/decimal"

	"github.com/finchops/azreserve/pkg/catalog"
	"github.com/finchops/azreserve/pkg/pricing"
)

// Exclusion reasons carried on Unpriced entries.
const (
	ReasonMissingPrice = "no price from any source"
	ReasonMixedLicense = "mixed license basis"
)

// Record holds the full savings comparison for one priced resource.
// Monthly figures are unit price times the resource's billing hours;
// annual figures are twelve months; the three-year total spans the whole
// commitment period.
type Record struct {
	Name   string `json:"vm_name"`
	SKU    string `json:"sku"`
	Region string `json:"region"`
	OS     string `json:"os"`

	MonthlyOnDemand    decimal.Decimal `json:"monthly_on_demand"`
	MonthlyReserved1Yr decimal.Decimal `json:"monthly_reserved_1yr"`
	MonthlyReserved3Yr decimal.Decimal `json:"monthly_reserved_3yr"`

	AnnualOnDemand    decimal.Decimal `json:"annual_on_demand"`
	AnnualReserved1Yr decimal.Decimal `json:"annual_reserved_1yr"`
	AnnualReserved3Yr decimal.Decimal `json:"annual_reserved_3yr"`

	AnnualSavings1Yr      decimal.Decimal `json:"annual_savings_1yr"`
	AnnualSavings3Yr      decimal.Decimal `json:"annual_savings_3yr"`
	TotalSavings3YrPeriod decimal.Decimal `json:"total_savings_3yr_period"`

	IncludesOSLicense bool           `json:"includes_os_license"`
	SourceOnDemand    pricing.Source `json:"source_on_demand"`
	SourceReserved1Yr pricing.Source `json:"source_reserved_1yr"`
	SourceReserved3Yr pricing.Source `json:"source_reserved_3yr"`
}

// Unpriced records a resource excluded from the savings arithmetic, with
// the terms that lacked a price and why.
type Unpriced struct {
	Name         string         `json:"vm_name"`
	SKU          string         `json:"sku"`
	Region       string         `json:"region"`
	MissingTerms []pricing.Term `json:"missing_terms,omitempty"`
	Reason       string         `json:"reason"`
}

// FleetSummary aggregates records across a batch. Averages cover priced
// resources only; excluded resources appear solely in UnpricedCount.
type FleetSummary struct {
	PricedCount   int `json:"priced_count"`
	UnpricedCount int `json:"unpriced_count"`

	TotalMonthlyOnDemand    decimal.Decimal `json:"total_monthly_on_demand"`
	TotalMonthlyReserved1Yr decimal.Decimal `json:"total_monthly_reserved_1yr"`
	TotalMonthlyReserved3Yr decimal.Decimal `json:"total_monthly_reserved_3yr"`

	TotalAnnualSavings1Yr   decimal.Decimal `json:"total_annual_savings_1yr"`
	TotalAnnualSavings3Yr   decimal.Decimal `json:"total_annual_savings_3yr"`
	TotalSavings3YrPeriod   decimal.Decimal `json:"total_savings_3yr_period"`
	AverageAnnualSavings1Yr decimal.Decimal `json:"average_annual_savings_1yr"`
	AverageAnnualSavings3Yr decimal.Decimal `json:"average_annual_savings_3yr"`
}

var (
	monthsPerYear = decimal.NewFromInt(12)
	yearsPerTerm  = decimal.NewFromInt(3)
)

// Compute builds the savings record for one resource. When any term lacks
// a price, or the quotes mix license bases, it returns a nil Record and an
// Unpriced entry instead.
func Compute(desc catalog.ResourceDescriptor, quotes pricing.TermQuotes) (*Record, *Unpriced) {
	var missing []pricing.Term
	for _, term := range pricing.AllTerms {
		if !quotes.ForTerm(term).Resolved() {
			missing = append(missing, term)
		}
	}
	if len(missing) > 0 {
		return nil, &Unpriced{
			Name:         desc.Name,
			SKU:          desc.SKU,
			Region:       desc.Region,
			MissingTerms: missing,
			Reason:       ReasonMissingPrice,
		}
	}

	if pricing.MixedLicenseBasis(quotes) {
		return nil, &Unpriced{
			Name:   desc.Name,
			SKU:    desc.SKU,
			Region: desc.Region,
			Reason: ReasonMixedLicense,
		}
	}

	hours := decimal.NewFromFloat(desc.HoursPerMonth)
	monthlyOD := quotes.OnDemand.UnitPrice.Mul(hours)
	monthly1 := quotes.Reserved1Yr.UnitPrice.Mul(hours)
	monthly3 := quotes.Reserved3Yr.UnitPrice.Mul(hours)

	annualOD := monthlyOD.Mul(monthsPerYear)
	annual1 := monthly1.Mul(monthsPerYear)
	annual3 := monthly3.Mul(monthsPerYear)

	savings3 := annualOD.Sub(annual3)

	return &Record{
		Name:   desc.Name,
		SKU:    desc.SKU,
		Region: desc.Region,
		OS:     desc.OS,

		MonthlyOnDemand:    monthlyOD,
		MonthlyReserved1Yr: monthly1,
		MonthlyReserved3Yr: monthly3,

		AnnualOnDemand:    annualOD,
		AnnualReserved1Yr: annual1,
		AnnualReserved3Yr: annual3,

		AnnualSavings1Yr:      annualOD.Sub(annual1),
		AnnualSavings3Yr:      savings3,
		TotalSavings3YrPeriod: savings3.Mul(yearsPerTerm),

		IncludesOSLicense: quotes.OnDemand.IncludesOSLicense,
		SourceOnDemand:    quotes.OnDemand.Source,
		SourceReserved1Yr: quotes.Reserved1Yr.Source,
		SourceReserved3Yr: quotes.Reserved3Yr.Source,
	}, nil
}

// Aggregate folds per-resource records into a fleet summary.
func Aggregate(records []Record, unpriced []Unpriced) FleetSummary {
	s := FleetSummary{
		PricedCount:   len(records),
		UnpricedCount: len(unpriced),
	}

	for _, r := range records {
		s.TotalMonthlyOnDemand = s.TotalMonthlyOnDemand.Add(r.MonthlyOnDemand)
		s.TotalMonthlyReserved1Yr = s.TotalMonthlyReserved1Yr.Add(r.MonthlyReserved1Yr)
		s.TotalMonthlyReserved3Yr = s.TotalMonthlyReserved3Yr.Add(r.MonthlyReserved3Yr)
		s.TotalAnnualSavings1Yr = s.TotalAnnualSavings1Yr.Add(r.AnnualSavings1Yr)
		s.TotalAnnualSavings3Yr = s.TotalAnnualSavings3Yr.Add(r.AnnualSavings3Yr)
		s.TotalSavings3YrPeriod = s.TotalSavings3YrPeriod.Add(r.TotalSavings3YrPeriod)
	}

	if len(records) > 0 {
		n := decimal.NewFromInt(int64(len(records)))
		s.AverageAnnualSavings1Yr = s.TotalAnnualSavings1Yr.DivRound(n, 6)
		s.AverageAnnualSavings3Yr = s.TotalAnnualSavings3Yr.DivRound(n, 6)
	}

	return s
}
