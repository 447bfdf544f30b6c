package savings

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/finchops/azreserve/pkg/catalog"
	"github.com/finchops/azreserve/pkg/pricing"
)

func quote(term pricing.Term, price float64, source pricing.Source, licensed bool) pricing.PriceQuote {
	p := decimal.NewFromFloat(price)
	return pricing.PriceQuote{
		SKU:               "standard_d4s_v5",
		Region:            "eastus",
		Term:              term,
		UnitPrice:         &p,
		Source:            source,
		IncludesOSLicense: licensed,
	}
}

func fullQuotes(od, r1, r3 float64) pricing.TermQuotes {
	return pricing.TermQuotes{
		OnDemand:    quote(pricing.TermOnDemand, od, pricing.SourcePrimary, false),
		Reserved1Yr: quote(pricing.TermReserved1Yr, r1, pricing.SourcePrimary, false),
		Reserved3Yr: quote(pricing.TermReserved3Yr, r3, pricing.SourcePrimary, false),
	}
}

func desc(name string) catalog.ResourceDescriptor {
	return catalog.ResourceDescriptor{
		Name:          name,
		SKU:           "standard_d4s_v5",
		Region:        "eastus",
		OS:            catalog.OSLinux,
		HoursPerMonth: 730,
	}
}

func TestCompute_Formulas(t *testing.T) {
	rec, miss := Compute(desc("web-01"), fullQuotes(1.0, 0.6, 0.4))
	if miss != nil {
		t.Fatalf("Unexpected exclusion: %+v", miss)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want int64
	}{
		{"monthly on-demand", rec.MonthlyOnDemand, 730},
		{"annual on-demand", rec.AnnualOnDemand, 8760},
		{"annual 1yr", rec.AnnualReserved1Yr, 5256},
		{"annual 3yr", rec.AnnualReserved3Yr, 3504},
		{"annual savings 1yr", rec.AnnualSavings1Yr, 3504},
		{"annual savings 3yr", rec.AnnualSavings3Yr, 5256},
		{"3yr period total", rec.TotalSavings3YrPeriod, 15768},
	}
	for _, c := range checks {
		if !c.got.Equal(decimal.NewFromInt(c.want)) {
			t.Errorf("%s: expected %d, got %s", c.name, c.want, c.got)
		}
	}
}

func TestCompute_HonorsResourceHours(t *testing.T) {
	d := desc("part-timer")
	d.HoursPerMonth = 100

	rec, miss := Compute(d, fullQuotes(1.0, 0.6, 0.4))
	if miss != nil {
		t.Fatalf("Unexpected exclusion: %+v", miss)
	}
	if !rec.MonthlyOnDemand.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected monthly 100 at 100 h/mo, got %s", rec.MonthlyOnDemand)
	}
}

func TestCompute_MissingTermExcludes(t *testing.T) {
	quotes := fullQuotes(1.0, 0.6, 0.4)
	quotes.Reserved3Yr = pricing.PriceQuote{Term: pricing.TermReserved3Yr, Source: pricing.SourceNone}

	rec, miss := Compute(desc("web-01"), quotes)
	if rec != nil {
		t.Fatal("Expected no record for a partially priced resource")
	}
	if miss == nil {
		t.Fatal("Expected an unpriced entry")
	}
	if miss.Reason != ReasonMissingPrice {
		t.Errorf("Expected reason %q, got %q", ReasonMissingPrice, miss.Reason)
	}
	if len(miss.MissingTerms) != 1 || miss.MissingTerms[0] != pricing.TermReserved3Yr {
		t.Errorf("Expected missing term reserved_3yr, got %v", miss.MissingTerms)
	}
}

func TestCompute_MixedLicenseExcludes(t *testing.T) {
	quotes := fullQuotes(1.0, 0.6, 0.4)
	quotes.Reserved1Yr = quote(pricing.TermReserved1Yr, 0.7, pricing.SourceSecondary, true)

	rec, miss := Compute(desc("web-01"), quotes)
	if rec != nil {
		t.Fatal("Expected no record for mixed license bases")
	}
	if miss == nil || miss.Reason != ReasonMixedLicense {
		t.Fatalf("Expected mixed-license exclusion, got %+v", miss)
	}
}

func TestAggregate(t *testing.T) {
	recA, _ := Compute(desc("web-01"), fullQuotes(1.0, 0.6, 0.4))
	recB, _ := Compute(desc("web-02"), fullQuotes(2.0, 1.2, 0.8))
	unpriced := []Unpriced{{Name: "db-01", Reason: ReasonMissingPrice}}

	s := Aggregate([]Record{*recA, *recB}, unpriced)

	if s.PricedCount != 2 || s.UnpricedCount != 1 {
		t.Fatalf("Expected 2 priced / 1 unpriced, got %d / %d", s.PricedCount, s.UnpricedCount)
	}
	if !s.TotalMonthlyOnDemand.Equal(decimal.NewFromInt(2190)) {
		t.Errorf("Expected fleet monthly 2190, got %s", s.TotalMonthlyOnDemand)
	}
	if !s.TotalAnnualSavings1Yr.Equal(decimal.NewFromInt(10512)) {
		t.Errorf("Expected fleet 1yr savings 10512, got %s", s.TotalAnnualSavings1Yr)
	}
	if !s.TotalSavings3YrPeriod.Equal(decimal.NewFromInt(47304)) {
		t.Errorf("Expected 3yr period total 47304, got %s", s.TotalSavings3YrPeriod)
	}
	// Averages cover priced resources only.
	if !s.AverageAnnualSavings1Yr.Equal(decimal.NewFromInt(5256)) {
		t.Errorf("Expected average 1yr savings 5256, got %s", s.AverageAnnualSavings1Yr)
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, nil)
	if s.PricedCount != 0 || s.UnpricedCount != 0 {
		t.Fatal("Expected zero counts")
	}
	if !s.AverageAnnualSavings1Yr.IsZero() {
		t.Error("Expected zero average with no priced resources")
	}
}
