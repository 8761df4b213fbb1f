// Package source reads the work-item table a run iterates over. Tables are
// read once at startup into memory; the harvester addresses items by their
// position in the returned slice.
package source

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
)

// Options selects what to read from a table.
type Options struct {
	// Column names the id column of CSV, TSV and XLSX tables (default: the
	// first column) or the id attribute of a shapefile (default: the record
	// number).
	Column string
	// Sheet names the XLSX sheet to read (default: the first sheet).
	Sheet string
}

// Loader reads work items from local files, archives, remote URLs and grid
// specs.
type Loader struct {
	remote fetcher.Downloader
}

// NewLoader builds a Loader. remote may be nil, in which case URLs are
// rejected.
func NewLoader(remote fetcher.Downloader) *Loader {
	return &Loader{remote: remote}
}

// Load reads src and returns its items indexed by position.
//
// src is one of:
//   - a .txt or .lst file with one id per line
//   - a .csv or .tsv table with a header row (an error log is such a table)
//   - an .xlsx workbook
//   - a .shp shapefile, one item per shape
//   - a .zip archive containing one of the above
//   - an http(s):// or ftp:// URL of one of the above
//   - "grid:<minLon,minLat,maxLon,maxLat>:<cols>x<rows>", one bbox item per tile
func (l *Loader) Load(ctx context.Context, src string, opts Options) ([]harvest.WorkItem, error) {
	var items []harvest.WorkItem
	var err error
	switch {
	case strings.HasPrefix(src, gridPrefix):
		items, err = Grid(strings.TrimPrefix(src, gridPrefix))
	case fetcher.IsRemote(src):
		items, err = l.loadRemote(ctx, src, opts)
	default:
		items, err = loadFile(src, opts)
	}
	if err != nil {
		return nil, err
	}

	harvest.Reindex(items)
	zap.L().Info("loaded work items",
		zap.String("component", "source"),
		zap.String("source", src),
		zap.Int("items", len(items)),
	)
	return items, nil
}

func (l *Loader) loadRemote(ctx context.Context, rawURL string, opts Options) ([]harvest.WorkItem, error) {
	if l.remote == nil {
		return nil, eris.Errorf("source: %s is remote but no downloader is configured", rawURL)
	}
	tmp, err := os.MkdirTemp("", "geoharvest-src-*")
	if err != nil {
		return nil, eris.Wrap(err, "source: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	name := "items.txt"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			name = base
		}
	}
	local := filepath.Join(tmp, name)
	n, err := l.remote.DownloadToFile(ctx, rawURL, local)
	if err != nil {
		return nil, eris.Wrapf(err, "source: download %s", rawURL)
	}
	zap.L().Debug("downloaded work item table", zap.String("url", rawURL), zap.Int64("bytes", n))
	return loadFile(local, opts)
}

func loadFile(p string, opts Options) ([]harvest.WorkItem, error) {
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".txt", ".lst", "":
		return readLinesFile(p)
	case ".csv":
		return readTableFile(p, ',', opts.Column)
	case ".tsv":
		return readTableFile(p, '\t', opts.Column)
	case ".xlsx":
		return ReadXLSX(p, opts.Sheet, opts.Column)
	case ".shp":
		return ReadShapefile(p, opts.Column)
	case ".zip":
		return loadZIP(p, opts)
	default:
		return nil, eris.Errorf("source: unsupported table type %q (%s)", ext, p)
	}
}

// zipMembers lists the table types looked for inside an archive, in order of
// preference. Shapefiles need their sidecar files extracted too.
var zipMembers = []struct {
	ext   string
	files []string
}{
	{".shp", []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}},
	{".xlsx", []string{".xlsx"}},
	{".csv", []string{".csv"}},
	{".tsv", []string{".tsv"}},
	{".txt", []string{".txt"}},
	{".lst", []string{".lst"}},
}

func loadZIP(p string, opts Options) ([]harvest.WorkItem, error) {
	tmp, err := os.MkdirTemp("", "geoharvest-zip-*")
	if err != nil {
		return nil, eris.Wrap(err, "source: create temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	for _, m := range zipMembers {
		paths, err := fetcher.ExtractZIPMatching(p, tmp, m.files...)
		if err != nil {
			return nil, eris.Wrapf(err, "source: extract %s", p)
		}
		if first, ok := fetcher.FirstWithExt(paths, m.ext); ok {
			return loadFile(first, opts)
		}
	}
	return nil, eris.Errorf("source: %s contains no supported table", p)
}
