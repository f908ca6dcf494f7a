package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nid2geo/internal/converter"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert downloaded archives to GeoPackage or GeoParquet",
	Long: `Reads every register-type subdirectory of --indir, extracts the point, line and area
shapefiles from each ZIP archive and writes one dataset per register type and
geometry kind: <register>.gpkg with one layer per kind, or
<register>_<kind>.parquet per kind.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if v, _ := cmd.Flags().GetString("indir"); v != "" {
			cfg.Convert.InDir = v
		}
		if v, _ := cmd.Flags().GetString("outdir"); v != "" {
			cfg.Convert.OutDir = v
		}
		if v, _ := cmd.Flags().GetString("format"); v != "" {
			cfg.Convert.Format = v
		}
		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		summary, err := converter.Convert(ctx, converter.Options{
			InDir:   cfg.Convert.InDir,
			OutDir:  cfg.Convert.OutDir,
			Format:  cfg.Convert.Format,
			TempDir: cfg.Convert.TempDir,
			Workers: cfg.Convert.Workers,
		})
		if err != nil {
			return eris.Wrap(err, "convert")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Converted %d register types (run %s)\n", len(summary.Registers), summary.RunID)
		for _, p := range summary.Written {
			fmt.Fprintf(out, "  %s\n", p)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().String("indir", "", "directory of downloaded archives (default: convert.indir)")
	convertCmd.Flags().String("outdir", "", "output directory (default: convert.outdir)")
	convertCmd.Flags().String("format", "", "output format: gpkg or parquet (default: convert.format)")
	rootCmd.AddCommand(convertCmd)
}
