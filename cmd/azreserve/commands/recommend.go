package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/finchops/azreserve/pkg/catalog"
	internalconfig "github.com/finchops/azreserve/pkg/config"
)

var (
	inventoryPath string
	minSavings    float64
	minCount      int
	hoursPerMonth float64
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Select reservation candidates from a VM inventory",
	Long: `Reads a VM inventory export, keeps running VMs, deduplicates them, and
applies the savings threshold filter to produce the pricing catalog.

Example:
  azreserve recommend --inventory vms.json
  azreserve recommend --inventory vms.json --min-savings 250 --min-count 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(inventoryPath)
		if err != nil {
			return fmt.Errorf("open inventory: %w", err)
		}
		defer f.Close()

		cat, err := catalog.Load(f, hoursPerMonth)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		total := len(cat.Resources)

		policy := catalog.FilterPolicy{
			MinAnnualSavings: minSavings,
			MinCount:         minCount,
		}
		selected := policy.Apply(cat.Resources)

		dir := localOutputDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		path := filepath.Join(dir, "catalog.json")

		data, err := json.MarshalIndent(selected, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}

		fmt.Printf("Selected %d of %d running VMs as reservation candidates.\n", len(selected), total)
		fmt.Printf("Catalog written: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	defaults := internalconfig.DefaultFilterConfig()
	pricing := internalconfig.DefaultPricingConfig()
	recommendCmd.Flags().StringVar(&inventoryPath, "inventory", "inventory.json", "VM inventory export (JSON)")
	recommendCmd.Flags().Float64Var(&minSavings, "min-savings", defaults.MinAnnualSavings, "Projected annual savings threshold")
	recommendCmd.Flags().IntVar(&minCount, "min-count", defaults.MinCount, "Minimum candidate count floor")
	recommendCmd.Flags().Float64Var(&hoursPerMonth, "hours", pricing.HoursPerMonth, "Billing hours per month for VMs without explicit hours")
}

// localOutputDir resolves where artifacts land on disk. S3 targets still
// generate locally first and upload afterwards.
func localOutputDir() string {
	if config.OutputDir == "" || strings.HasPrefix(config.OutputDir, "s3://") {
		return internalconfig.DefaultOutputDir
	}
	return config.OutputDir
}
