package source

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/geo"
	"github.com/sells-group/geoharvest/internal/harvest"
)

const gridPrefix = "grid:"

// Grid expands "<minLon,minLat,maxLon,maxLat>:<cols>x<rows>" into one item
// per tile. The id and the "bbox" field are the tile box.
func Grid(def string) ([]harvest.WorkItem, error) {
	box, dims, ok := strings.Cut(def, ":")
	if !ok {
		return nil, eris.Errorf("source: grid %q: want <bbox>:<cols>x<rows>", def)
	}
	b, err := geo.ParseBBox(box)
	if err != nil {
		return nil, eris.Wrap(err, "source: grid")
	}
	cs, rs, ok := strings.Cut(strings.ToLower(dims), "x")
	if !ok {
		return nil, eris.Errorf("source: grid %q: want <cols>x<rows>", dims)
	}
	cols, err := strconv.Atoi(cs)
	if err != nil {
		return nil, eris.Wrapf(err, "source: grid columns %q", cs)
	}
	rows, err := strconv.Atoi(rs)
	if err != nil {
		return nil, eris.Wrapf(err, "source: grid rows %q", rs)
	}

	tiles, err := geo.Grid(b, cols, rows)
	if err != nil {
		return nil, eris.Wrap(err, "source: grid")
	}
	items := make([]harvest.WorkItem, len(tiles))
	for i, t := range tiles {
		s := geo.FormatBBox(t)
		items[i] = harvest.WorkItem{ID: s, Fields: map[string]string{
			"bbox": s,
			"row":  strconv.Itoa(i / cols),
			"col":  strconv.Itoa(i % cols),
		}}
	}
	return items, nil
}
