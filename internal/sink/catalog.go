package sink

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// ListSnapshots finds the snapshot files of prefix in dir, ordered by end
// index. Rows are counted for CSV snapshots only.
func ListSnapshots(dir, prefix, ext string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sink: list %s", dir)
	}

	var out []Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		tag, ok := ParseSnapshotName(prefix, e.Name(), ext)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, eris.Wrapf(err, "sink: stat %s", e.Name())
		}
		s := Snapshot{Tag: tag, Location: filepath.Join(dir, e.Name()), Rows: -1, FlushedAt: info.ModTime()}
		if ext == "csv" {
			n, err := countCSVRows(s.Location)
			if err != nil {
				return nil, err
			}
			s.Rows = n
		}
		out = append(out, s)
	}
	SortSnapshots(out)
	return out, nil
}

// SortSnapshots orders snapshots by end index, then kind.
func SortSnapshots(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, b := snaps[i].Tag, snaps[j].Tag
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Kind < b.Kind
	})
}

// ResumePoint is the index a new run should start from: the largest end
// index among the snapshots, or 0 when there are none.
func ResumePoint(snaps []Snapshot) int {
	next := 0
	for _, s := range snaps {
		next = max(next, s.Tag.End)
	}
	return next
}

func countCSVRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "sink: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	n := -1 // header
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, eris.Wrapf(err, "sink: read %s", path)
		}
		n++
	}
	return max(n, 0), nil
}

// Consolidate concatenates the CSV snapshots of prefix in dir, in tag order,
// into a single CSV at out. The header is the union of the snapshot headers.
// It returns the number of data rows written.
func Consolidate(dir, prefix, out string) (int, error) {
	snaps, err := ListSnapshots(dir, prefix, "csv")
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, eris.Errorf("sink: no %s-*.csv snapshots in %s", prefix, dir)
	}

	var rows []harvest.Row
	for _, s := range snaps {
		part, err := readCSVRows(s.Location)
		if err != nil {
			return 0, err
		}
		rows = append(rows, part...)
	}

	err = writeAtomic(out, func(w io.Writer) error {
		return writeCSV(w, harvest.UnionColumns(rows), rows)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "sink: consolidate into %s", out)
	}
	return len(rows), nil
}

func readCSVRows(path string) ([]harvest.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "sink: read %s", path)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]harvest.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(harvest.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
