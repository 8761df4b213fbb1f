package sink

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// CSV writes each flush as <dir>/<prefix>-<tag>.csv. The header is the sorted
// union of the columns of the flushed rows.
type CSV struct {
	dir    string
	prefix string
}

// NewCSV creates dir if needed.
func NewCSV(dir, prefix string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", dir)
	}
	return &CSV{dir: dir, prefix: prefix}, nil
}

// Path returns where the snapshot for tag is written.
func (c *CSV) Path(tag harvest.Tag) string {
	return filepath.Join(c.dir, SnapshotName(c.prefix, tag, "csv"))
}

// Flush implements harvest.RowSink.
func (c *CSV) Flush(_ context.Context, rows []harvest.Row, tag harvest.Tag) error {
	path := c.Path(tag)
	err := writeAtomic(path, func(w io.Writer) error {
		return writeCSV(w, harvest.UnionColumns(rows), rows)
	})
	return eris.Wrapf(err, "sink: csv snapshot %s", tag)
}

// Snapshots implements Catalog.
func (c *CSV) Snapshots(_ context.Context) ([]Snapshot, error) {
	return ListSnapshots(c.dir, c.prefix, "csv")
}

func writeCSV(w io.Writer, cols []string, rows []harvest.Row) error {
	cw := csv.NewWriter(w)
	if len(cols) > 0 {
		if err := cw.Write(cols); err != nil {
			return eris.Wrap(err, "sink: write header")
		}
	}
	rec := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			rec[i] = harvest.FormatValue(row[col])
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "sink: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "sink: flush csv")
}
