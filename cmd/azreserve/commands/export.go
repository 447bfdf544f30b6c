package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	internalconfig "github.com/finchops/azreserve/pkg/config"
	"github.com/finchops/azreserve/pkg/report"
)

var (
	exportFormat string
	exportReport string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Re-export a saved savings report (CSV, ranked)",
	Long: `Reads a previously generated savings report and re-renders it without
re-pricing anything.

Example:
  azreserve export --format csv
  azreserve export --format ranked --report azreserve-out/savings.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := report.ReadJSON(exportReport)
		if err != nil {
			return fmt.Errorf("read report: %w", err)
		}

		dir := localOutputDir()
		switch exportFormat {
		case "csv":
			path := filepath.Join(dir, "savings.csv")
			if err := rep.WriteCSV(path); err != nil {
				return err
			}
			fmt.Printf("CSV written: %s\n", path)
		case "ranked":
			path := filepath.Join(dir, "ranked.csv")
			if err := rep.WriteRankedCSV(path); err != nil {
				return err
			}
			fmt.Printf("Ranked CSV written: %s\n", path)
		default:
			return fmt.Errorf("unknown format %q (csv, ranked)", exportFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Export format: csv or ranked")
	exportCmd.Flags().StringVar(&exportReport, "report",
		filepath.Join(internalconfig.DefaultOutputDir, "savings.json"),
		"Saved savings report to export from")
}
