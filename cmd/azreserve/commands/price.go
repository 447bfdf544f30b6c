package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/finchops/azreserve/pkg/catalog"
	internalconfig "github.com/finchops/azreserve/pkg/config"
	"github.com/finchops/azreserve/pkg/engine"
)

var catalogPath string

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price the candidate catalog across reservation terms",
	Long: `Resolves on-demand, 1-year and 3-year reserved prices for every VM in
the catalog, computes per-VM and fleet savings, and writes the report
artifacts.

Example:
  azreserve price
  azreserve price --catalog azreserve-out/catalog.json -o s3://reports/azreserve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(catalogPath)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()

		cat, err := catalog.Load(f, internalconfig.DefaultPricingConfig().HoursPerMonth)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		if !config.JsonLogs {
			config.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
		}

		eng, err := engine.New(cmd.Context(), engine.WithConfig(config))
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}

		rep, err := eng.Run(cmd.Context(), cat)
		if err != nil {
			return err
		}

		dir := eng.OutputDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}

		jsonPath := filepath.Join(dir, "savings.json")
		csvPath := filepath.Join(dir, "savings.csv")
		rankedPath := filepath.Join(dir, "ranked.csv")

		if err := rep.WriteJSON(jsonPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if err := rep.WriteCSV(csvPath); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		if err := rep.WriteRankedCSV(rankedPath); err != nil {
			return fmt.Errorf("write ranked csv: %w", err)
		}

		if err := eng.UploadArtifacts(cmd.Context()); err != nil {
			fmt.Printf("[WARN] Artifact upload failed: %v\n", err)
		}

		s := rep.Summary
		fmt.Printf("\nPriced %d VMs (%d unpriced).\n", s.PricedCount, s.UnpricedCount)
		fmt.Printf("Annual savings @ 1yr:  $%s\n", s.TotalAnnualSavings1Yr.StringFixed(2))
		fmt.Printf("Annual savings @ 3yr:  $%s\n", s.TotalAnnualSavings3Yr.StringFixed(2))
		fmt.Printf("3-year period total:   $%s\n", s.TotalSavings3YrPeriod.StringFixed(2))
		fmt.Printf("\nArtifacts: %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
	priceCmd.Flags().StringVar(&catalogPath, "catalog",
		filepath.Join(internalconfig.DefaultOutputDir, "catalog.json"),
		"Candidate catalog produced by 'recommend'")
}
