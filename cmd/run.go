package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geoharvest/internal/config"
	"github.com/sells-group/geoharvest/internal/extract"
	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/internal/sink"
	"github.com/sells-group/geoharvest/internal/source"
)

var runResume bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest a list of work items into checkpointed snapshots",
	Example: `  geoharvest run --extractor registry --items cns.txt
  geoharvest run --extractor page --items ids.csv --column wikimapia_id --resume
  geoharvest run --extractor bbox --items "grid:44.8,53.1,45.2,53.3:8x4" --format csv,sqlite
  geoharvest run --extractor registry --items out/result-errors.csv --column item_id --prefix retry`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate("run"); err != nil {
			return eris.Wrap(err, "invalid configuration")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		httpF := newHTTPFetcher(cfg)
		catalog := extract.DefaultCatalog(cfg)
		info, err := catalog.Info(cfg.Harvest.Extractor)
		if err != nil {
			return err
		}
		ext, err := catalog.Build(cfg.Harvest.Extractor, extract.Deps{HTTP: httpF, Geocoder: newGeocoder(cfg)})
		if err != nil {
			return err
		}

		loader := source.NewLoader(fetcher.NewRemote(httpF, nil))
		items, err := loader.Load(ctx, cfg.Harvest.Items, source.Options{Column: cfg.Harvest.Column, Sheet: cfg.Harvest.Sheet})
		if err != nil {
			return err
		}

		out, err := openSinks(ctx, cfg)
		if err != nil {
			return err
		}
		defer out.Close() //nolint:errcheck

		errLog, err := sink.OpenErrorLog(errorLogPath(cfg))
		if err != nil {
			return err
		}
		defer errLog.Close() //nolint:errcheck

		start := cfg.Harvest.StartIndex
		if runResume {
			snaps, err := out.catalog.Snapshots(ctx)
			if err != nil {
				return eris.Wrap(err, "read snapshot catalog")
			}
			start = sink.ResumePoint(snaps)
			zap.L().Info("resuming from snapshot catalog", zap.Int("start_index", start), zap.Int("snapshots", len(snaps)))
		}

		delay := info.DefaultDelay
		if cfg.Harvest.DelayMs >= 0 {
			delay = time.Duration(cfg.Harvest.DelayMs) * time.Millisecond
		}

		h, err := harvest.New(ext, out.rows, errLog, harvest.Options{
			StartIndex: start,
			BatchSize:  cfg.Harvest.BatchSize,
			Delay:      delay,
			Workers:    cfg.Harvest.Workers,
		})
		if err != nil {
			return err
		}

		m := sink.NewManifest(ext.Name(), cfg.Harvest.Items)
		m.TotalItems = len(items)
		m.StartIndex = start
		m.BatchSize = cfg.Harvest.BatchSize
		m.Workers = cfg.Harvest.Workers
		m.DelayMs = delay.Milliseconds()
		m.Outputs = out.outputs
		m.ErrorLog = errLog.Path()
		if _, err := sink.WriteManifest(cfg.Harvest.OutDir, m); err != nil {
			return err
		}

		sum, runErr := h.Run(ctx, items)
		m.Finish(sum, runErr)
		manifestPath, err := sink.WriteManifest(cfg.Harvest.OutDir, m)
		if err != nil {
			zap.L().Error("write run manifest", zap.Error(err))
		}

		printSummary(m, manifestPath)
		if runErr != nil {
			return eris.Wrapf(runErr, "run %s stopped at item %d; resume with --start %d", m.ID, m.ResumeIndex, m.ResumeIndex)
		}
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	str("extractor", &c.Harvest.Extractor)
	str("items", &c.Harvest.Items)
	str("column", &c.Harvest.Column)
	str("sheet", &c.Harvest.Sheet)
	str("out-dir", &c.Harvest.OutDir)
	str("prefix", &c.Harvest.Prefix)
	str("format", &c.Harvest.Format)
	str("error-log", &c.Harvest.ErrorLog)
	num("start", &c.Harvest.StartIndex)
	num("batch-size", &c.Harvest.BatchSize)
	num("delay-ms", &c.Harvest.DelayMs)
	num("workers", &c.Harvest.Workers)
}

func printSummary(m *sink.Manifest, manifestPath string) {
	w := os.Stdout
	fmt.Fprintf(w, "run:        %s (%s)\n", m.ID, m.Status)
	fmt.Fprintf(w, "extractor:  %s\n", m.Extractor)
	fmt.Fprintf(w, "processed:  %d\n", m.Processed)
	fmt.Fprintf(w, "failed:     %d (see %s)\n", m.Failed, m.ErrorLog)
	fmt.Fprintf(w, "skipped:    %d\n", m.Skipped)
	fmt.Fprintf(w, "snapshots:  %d\n", m.Flushes)
	if m.LastTag != nil {
		fmt.Fprintf(w, "last tag:   %s\n", m.LastTag)
	}
	fmt.Fprintf(w, "resume at:  %d of %d\n", m.ResumeIndex, m.TotalItems)
	if manifestPath != "" {
		fmt.Fprintf(w, "manifest:   %s\n", manifestPath)
	}
}

func init() {
	f := runCmd.Flags()
	f.String("extractor", "", "extractor name (see `geoharvest extractors`)")
	f.String("items", "", "work item table: file, zip, URL or grid:<bbox>:<cols>x<rows>")
	f.String("column", "", "id column of a CSV/TSV/XLSX table or shapefile attribute")
	f.String("sheet", "", "XLSX sheet name")
	f.Int("start", 0, "index of the first item to process")
	f.Int("batch-size", 500, "items per snapshot")
	f.Int("delay-ms", -1, "pause between items in ms (-1 = extractor default)")
	f.Int("workers", 1, "concurrent extractions")
	f.String("out-dir", "", "snapshot and manifest directory")
	f.String("prefix", "", "snapshot file prefix")
	f.String("format", "", "snapshot sinks, comma separated: csv, xlsx, sqlite, postgres")
	f.String("error-log", "", "error log path (default <out-dir>/<prefix>-errors.csv)")
	f.BoolVar(&runResume, "resume", false, "start after the last snapshot instead of --start")
	rootCmd.AddCommand(runCmd)
}
