// Package report renders batch results as JSON and CSV artifacts.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/finchops/azreserve/pkg/savings"
)

// Report is the full JSON artifact for one batch run.
type Report struct {
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     savings.FleetSummary `json:"summary"`
	Records     []savings.Record     `json:"records"`
	Unpriced    []savings.Unpriced   `json:"unpriced,omitempty"`
}

// New assembles a report with a fresh run ID, records sorted by on-demand
// cost descending.
func New(summary savings.FleetSummary, records []savings.Record, unpriced []savings.Unpriced) *Report {
	sorted := make([]savings.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MonthlyOnDemand.GreaterThan(sorted[j].MonthlyOnDemand)
	})

	return &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Records:     sorted,
		Unpriced:    unpriced,
	}
}

// WriteJSON writes the full report to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WriteCSV writes the per-resource savings table, one row per priced
// resource plus a totals row. Money columns are fixed to two decimals.
func (r *Report) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"VMName",
		"SKU",
		"Region",
		"OS",
		"MonthlyOnDemand",
		"MonthlyReserved1Yr",
		"MonthlyReserved3Yr",
		"AnnualSavings1Yr",
		"AnnualSavings3Yr",
		"TotalSavings3YrPeriod",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range r.Records {
		row := []string{
			rec.Name,
			rec.SKU,
			rec.Region,
			rec.OS,
			"$" + rec.MonthlyOnDemand.StringFixed(2),
			"$" + rec.MonthlyReserved1Yr.StringFixed(2),
			"$" + rec.MonthlyReserved3Yr.StringFixed(2),
			"$" + rec.AnnualSavings1Yr.StringFixed(2),
			"$" + rec.AnnualSavings3Yr.StringFixed(2),
			"$" + rec.TotalSavings3YrPeriod.StringFixed(2),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	totals := []string{
		fmt.Sprintf("TOTAL (%d priced, %d unpriced)", r.Summary.PricedCount, r.Summary.UnpricedCount),
		"", "", "",
		"$" + r.Summary.TotalMonthlyOnDemand.StringFixed(2),
		"$" + r.Summary.TotalMonthlyReserved1Yr.StringFixed(2),
		"$" + r.Summary.TotalMonthlyReserved3Yr.StringFixed(2),
		"$" + r.Summary.TotalAnnualSavings1Yr.StringFixed(2),
		"$" + r.Summary.TotalAnnualSavings3Yr.StringFixed(2),
		"$" + r.Summary.TotalSavings3YrPeriod.StringFixed(2),
	}
	return w.Write(totals)
}

// WriteRankedCSV writes the simple cost ranking: name and pay-as-you-go
// monthly cost, most expensive first.
func (r *Report) WriteRankedCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"VMName", "MonthlyOnDemand"}); err != nil {
		return err
	}
	for _, rec := range r.Records {
		if err := w.Write([]string{rec.Name, "$" + rec.MonthlyOnDemand.StringFixed(2)}); err != nil {
			return err
		}
	}
	return nil
}

// ReadJSON loads a previously written report.
func ReadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &r, nil
}
