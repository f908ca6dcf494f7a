package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nid2geo",
	Short: "Download and convert NID heritage register data",
	Long: `Discovers the per-unit archives published by the National Heritage Institute (NID),
downloads them and converts the shapefiles inside to GeoPackage or GeoParquet,
one dataset per register type and geometry kind.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
