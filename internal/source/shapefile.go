package source

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geoharvest/internal/geo"
	"github.com/sells-group/geoharvest/internal/harvest"
)

// ReadShapefile turns every shape into an item carrying its attributes plus
// "bbox", "lon", "lat" (centre) and "geom_ewkb" (hex EWKB, SRID 4326).
// idField names the attribute used as id; empty uses the record number.
// Point shapes have no extent and get no "bbox" field.
func ReadShapefile(p, idField string) ([]harvest.WorkItem, error) {
	reader, err := shp.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", p)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var items []harvest.WorkItem
	skipped := 0
	for reader.Next() {
		n, shape := reader.Shape()
		g := geo.FromShape(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names)+4)
		for i, name := range names {
			attrs[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		b := g.Bounds()
		if geo.Validate(b) == nil {
			attrs["bbox"] = geo.FormatBBox(b)
		}
		lon, lat := geo.Center(b)
		attrs["lon"] = strconv.FormatFloat(lon, 'f', -1, 64)
		attrs["lat"] = strconv.FormatFloat(lat, 'f', -1, 64)
		if hexGeom, err := geo.EWKBHex(g); err == nil {
			attrs["geom_ewkb"] = hexGeom
		}

		id := strconv.Itoa(n)
		if idField != "" {
			id = attrs[strings.ToLower(idField)]
		}
		if id == "" {
			skipped++
			continue
		}
		items = append(items, harvest.WorkItem{ID: id, Fields: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "source: read shapefile %s", p)
	}

	if skipped > 0 {
		zap.L().Debug("skipped shapefile records",
			zap.String("path", p),
			zap.Int("skipped", skipped),
		)
	}
	return items, nil
}
