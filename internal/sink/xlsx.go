package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/geoharvest/internal/harvest"
)

const xlsxSheet = "rows"

// XLSX writes each flush as a one-sheet workbook <dir>/<prefix>-<tag>.xlsx.
type XLSX struct {
	dir    string
	prefix string
}

// NewXLSX creates dir if needed.
func NewXLSX(dir, prefix string) (*XLSX, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", dir)
	}
	return &XLSX{dir: dir, prefix: prefix}, nil
}

// Path returns where the snapshot for tag is written.
func (x *XLSX) Path(tag harvest.Tag) string {
	return filepath.Join(x.dir, SnapshotName(x.prefix, tag, "xlsx"))
}

// Flush implements harvest.RowSink.
func (x *XLSX) Flush(_ context.Context, rows []harvest.Row, tag harvest.Tag) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(xlsxSheet)
	if err != nil {
		return eris.Wrap(err, "sink: xlsx add sheet")
	}

	cols := harvest.UnionColumns(rows)
	if len(cols) > 0 {
		header := sheet.AddRow()
		for _, c := range cols {
			header.AddCell().SetString(c)
		}
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, c := range cols {
			setCell(r.AddCell(), row[c])
		}
	}

	err = writeAtomic(x.Path(tag), func(w io.Writer) error {
		return eris.Wrap(f.Write(w), "sink: xlsx encode")
	})
	return eris.Wrapf(err, "sink: xlsx snapshot %s", tag)
}

// Snapshots implements Catalog.
func (x *XLSX) Snapshots(_ context.Context) ([]Snapshot, error) {
	return ListSnapshots(x.dir, x.prefix, "xlsx")
}

func setCell(cell *xlsx.Cell, v any) {
	switch val := v.(type) {
	case float64:
		cell.SetFloat(val)
	case int:
		cell.SetInt(val)
	case int64:
		cell.SetInt64(val)
	default:
		cell.SetString(harvest.FormatValue(v))
	}
}
