package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	internalconfig "github.com/finchops/azreserve/pkg/config"
	"github.com/finchops/azreserve/pkg/pricing"
	"github.com/finchops/azreserve/pkg/storage"
)

var (
	cacheSKU    string
	cacheRegion string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or invalidate the persisted price cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cached SKU/region pair count",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		fmt.Printf("Cached pairs: %d\n", cache.Len())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete one cached SKU/region entry",
	Long: `Cached prices never expire on their own; stale entries are removed here.

Example:
  azreserve cache clear --sku Standard_D4s_v5 --region eastus`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheSKU == "" || cacheRegion == "" {
			return fmt.Errorf("both --sku and --region are required")
		}
		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		cache.Delete(cacheSKU, cacheRegion)
		if err := cache.Save(cmd.Context()); err != nil {
			return fmt.Errorf("persist cache: %w", err)
		}
		fmt.Printf("Deleted cache entry for %s/%s.\n", cacheSKU, cacheRegion)
		return nil
	},
}

func openCache(cmd *cobra.Command) (*pricing.QuoteCache, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cache := pricing.NewQuoteCache(logger, storage.NewLocalStore("."),
		internalconfig.DefaultPricingConfig().CacheKey)
	if err := cache.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return cache, nil
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheClearCmd.Flags().StringVar(&cacheSKU, "sku", "", "VM SKU of the entry to delete")
	cacheClearCmd.Flags().StringVar(&cacheRegion, "region", "", "Region of the entry to delete")
}
