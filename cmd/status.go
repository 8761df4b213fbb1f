package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geoharvest/internal/sink"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show written snapshots, the resume point and recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if f := cmd.Flags(); f.Changed("out-dir") {
			cfg.Harvest.OutDir, _ = f.GetString("out-dir")
		}
		if f := cmd.Flags(); f.Changed("format") {
			cfg.Harvest.Format, _ = f.GetString("format")
		}
		if err := cfg.Validate("status"); err != nil {
			return eris.Wrap(err, "invalid configuration")
		}

		out, err := openSinks(ctx, cfg)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck

		snaps, err := out.catalog.Snapshots(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		runs, err := sink.ListManifests(cfg.Harvest.OutDir)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		limit, _ := cmd.Flags().GetInt("runs")
		formatStatus(os.Stdout, snaps, runs, limit)
		return nil
	},
}

func formatStatus(w io.Writer, snaps []sink.Snapshot, runs []*sink.Manifest, limit int) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TAG\tROWS\tFLUSHED\tLOCATION")
		for _, s := range snaps {
			rows := "-"
			if s.Rows >= 0 {
				rows = fmt.Sprint(s.Rows)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Tag, rows, s.FlushedAt.Format(time.DateTime), s.Location)
		}
		tw.Flush() //nolint:errcheck
	}
	fmt.Fprintf(w, "\nResume index: %d\n", sink.ResumePoint(snaps))

	if len(runs) == 0 {
		return
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tEXTRACTOR\tSTATUS\tPROCESSED\tFAILED\tRESUME\tSTARTED")
	for _, m := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d/%d\t%s\n",
			m.ID, m.Extractor, m.Status, m.Processed, m.Failed,
			m.ResumeIndex, m.TotalItems, m.StartedAt.Format(time.DateTime))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	statusCmd.Flags().String("out-dir", "", "snapshot directory (default from config)")
	statusCmd.Flags().String("format", "", "snapshot sinks; the first one is listed")
	statusCmd.Flags().Int("runs", 5, "number of recent runs to show (0 = all)")
	rootCmd.AddCommand(statusCmd)
}
