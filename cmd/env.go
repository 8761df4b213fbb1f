package main

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/config"
	"github.com/sells-group/geoharvest/internal/db"
	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/internal/resilience"
	"github.com/sells-group/geoharvest/internal/sink"
	"github.com/sells-group/geoharvest/pkg/geocode"
)

// newHTTPFetcher builds the shared fetcher from the http section.
func newHTTPFetcher(c *config.Config) *fetcher.HTTPFetcher {
	h := c.HTTP
	policy := resilience.PolicyFromConfig(h.MaxRetries, h.RetryBackoffMs, h.MaxBackoffMs, h.LinearBackoff)
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:          h.UserAgent,
		Timeout:            h.Timeout(),
		Retry:              policy,
		RatePerSecond:      h.RatePerSecond,
		InsecureSkipVerify: h.InsecureSkipVerify,
		BreakerThreshold:   h.BreakerThreshold,
		BreakerCooldown:    time.Duration(h.BreakerCooldownSecs) * time.Second,
	})
}

// newGeocoder returns nil when no provider key is configured.
func newGeocoder(c *config.Config) geocode.Client {
	g := c.Geocode
	if g.YandexKey == "" && g.GoogleKey == "" {
		return nil
	}
	var opts []geocode.Option
	if g.YandexKey != "" {
		opts = append(opts, geocode.WithYandexKey(g.YandexKey))
	}
	if g.GoogleKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(g.GoogleKey))
	}
	if g.Language != "" {
		opts = append(opts, geocode.WithLanguage(g.Language))
	}
	if g.RateLimit > 0 {
		opts = append(opts, geocode.WithRateLimit(g.RateLimit))
	}
	return geocode.NewClient(opts...)
}

func errorLogPath(c *config.Config) string {
	if c.Harvest.ErrorLog != "" {
		return c.Harvest.ErrorLog
	}
	return filepath.Join(c.Harvest.OutDir, c.Harvest.Prefix+"-errors.csv")
}

// sinks holds the snapshot writers of a run. catalog is the first configured
// sink and is the one resume points are read from.
type sinks struct {
	rows    harvest.RowSink
	catalog sink.Catalog
	outputs []string
	closers []io.Closer
}

func (s *sinks) Close() error {
	return sink.CloseAll(s.closers...)
}

// openSinks opens one sink per configured format.
func openSinks(ctx context.Context, c *config.Config) (*sinks, error) {
	out := &sinks{}
	var multi sink.Multi
	for _, format := range c.Harvest.Formats() {
		s, cat, closer, location, err := openSink(ctx, c, format)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		multi = append(multi, s)
		if out.catalog == nil {
			out.catalog = cat
		}
		if closer != nil {
			out.closers = append(out.closers, closer)
		}
		out.outputs = append(out.outputs, format+":"+location)
	}
	if len(multi) == 0 {
		return nil, eris.New("no snapshot sinks configured")
	}
	out.rows = multi
	if len(multi) == 1 {
		out.rows = multi[0]
	}
	return out, nil
}

func openSink(ctx context.Context, c *config.Config, format string) (harvest.RowSink, sink.Catalog, io.Closer, string, error) {
	h := c.Harvest
	switch format {
	case "csv":
		s, err := sink.NewCSV(h.OutDir, h.Prefix)
		return s, s, nil, h.OutDir, err
	case "xlsx":
		s, err := sink.NewXLSX(h.OutDir, h.Prefix)
		return s, s, nil, h.OutDir, err
	case "sqlite":
		s, err := sink.NewSQLite(ctx, c.Store.SQLitePath, c.Store.Table, h.Prefix)
		if err != nil {
			return nil, nil, nil, "", err
		}
		return s, s, s, c.Store.SQLitePath, nil
	case "postgres":
		s, err := sink.NewPostgres(ctx, c.Store.DatabaseURL, c.Store.Table, h.Prefix, db.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, nil, nil, "", err
		}
		return s, s, s, c.Store.Table, nil
	default:
		return nil, nil, nil, "", eris.Errorf("unknown sink %q", format)
	}
}
