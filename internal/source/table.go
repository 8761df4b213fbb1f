package source

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// ReadTable reads a delimited table with a header row. column picks the id
// column by header name (case-insensitive); empty means the first column.
// Every column is kept in WorkItem.Fields.
func ReadTable(r io.Reader, comma rune, column string) ([]harvest.WorkItem, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "source: read table")
	}
	return tableItems(records, column)
}

func readTableFile(p string, comma rune, column string) ([]harvest.WorkItem, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", p)
	}
	defer f.Close() //nolint:errcheck

	items, err := ReadTable(f, comma, column)
	return items, eris.Wrapf(err, "source: %s", p)
}

// ReadXLSX reads a sheet of a workbook as a table with a header row.
func ReadXLSX(p, sheet, column string) ([]harvest.WorkItem, error) {
	f, err := xlsx.OpenFile(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open workbook %s", p)
	}

	var sh *xlsx.Sheet
	if sheet != "" {
		var ok bool
		if sh, ok = f.Sheet[sheet]; !ok {
			return nil, eris.Errorf("source: sheet %q not found in %s", sheet, p)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("source: %s has no sheets", p)
		}
		sh = f.Sheets[0]
	}

	records := make([][]string, 0, len(sh.Rows))
	for _, row := range sh.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	items, err := tableItems(records, column)
	return items, eris.Wrapf(err, "source: %s", p)
}

func tableItems(records [][]string, column string) ([]harvest.WorkItem, error) {
	if len(records) == 0 {
		return nil, nil
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, bom))
	}

	idCol := 0
	if column != "" {
		idCol = -1
		for i, h := range header {
			if strings.EqualFold(h, column) {
				idCol = i
				break
			}
		}
		if idCol < 0 {
			return nil, eris.Errorf("column %q not in header %v", column, header)
		}
	}
	if len(header) == 0 {
		return nil, eris.New("empty header row")
	}

	items := make([]harvest.WorkItem, 0, len(records)-1)
	blank := 0
	for _, rec := range records[1:] {
		if idCol >= len(rec) || strings.TrimSpace(rec[idCol]) == "" {
			blank++
			continue
		}
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) && h != "" {
				fields[h] = strings.TrimSpace(rec[i])
			}
		}
		items = append(items, harvest.WorkItem{ID: strings.TrimSpace(rec[idCol]), Fields: fields})
	}
	if blank > 0 {
		zap.L().Debug("skipped rows without an id", zap.String("column", header[idCol]), zap.Int("rows", blank))
	}
	return items, nil
}
