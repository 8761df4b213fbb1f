package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geoharvest/internal/sink"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge CSV snapshots into one file in tag order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		if f.Changed("out-dir") {
			cfg.Harvest.OutDir, _ = f.GetString("out-dir")
		}
		if f.Changed("prefix") {
			cfg.Harvest.Prefix, _ = f.GetString("prefix")
		}
		out, _ := f.GetString("out")
		if out == "" {
			out = filepath.Join(cfg.Harvest.OutDir, cfg.Harvest.Prefix+"-all.csv")
		}

		n, err := sink.Consolidate(cfg.Harvest.OutDir, cfg.Harvest.Prefix, out)
		if err != nil {
			return err
		}
		zap.L().Info("consolidated snapshots", zap.String("out", out), zap.Int("rows", n))
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", n, out)
		return nil
	},
}

func init() {
	consolidateCmd.Flags().String("out-dir", "", "snapshot directory (default from config)")
	consolidateCmd.Flags().String("prefix", "", "snapshot prefix (default from config)")
	consolidateCmd.Flags().String("out", "", "output file (default <out-dir>/<prefix>-all.csv)")
	rootCmd.AddCommand(consolidateCmd)
}
