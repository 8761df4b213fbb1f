package geo

import (
	"encoding/hex"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SRID of every geometry produced here (WGS 84).
const SRID = 4326

// FromShape converts a shapefile record to a go-geom geometry. Unsupported
// or empty shapes return nil.
func FromShape(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(SRID)
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points)).SetSRID(SRID)
	case *shp.PolyLine:
		return lines(s.Parts, s.Points)
	case *shp.Polygon:
		return polygons(s.Parts, s.Points)
	default:
		return nil
	}
}

// EWKBHex encodes g as hex EWKB, the text form PostGIS accepts for geometry
// columns.
func EWKBHex(g geom.T) (string, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return "", eris.Wrap(err, "geo: encode ewkb")
	}
	return hex.EncodeToString(data), nil
}

// partRange returns the point slice bounds of part i.
func partRange(parts []int32, n, i int) (int, int) {
	start := int(parts[i])
	end := n
	if i+1 < len(parts) {
		end = int(parts[i+1])
	}
	return start, end
}

func lines(parts []int32, pts []shp.Point) geom.T {
	if len(parts) == 0 || len(pts) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(SRID)
	for i := range parts {
		start, end := partRange(parts, len(pts), i)
		if start < 0 || end > len(pts) || end-start < 2 {
			zap.L().Debug("geo: skipping malformed line part", zap.Int("part", i))
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatPoints(pts[start:end]))); err != nil {
			zap.L().Debug("geo: skipping line part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygons(parts []int32, pts []shp.Point) geom.T {
	if len(parts) == 0 || len(pts) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)
	for i := range parts {
		start, end := partRange(parts, len(pts), i)
		if start < 0 || end > len(pts) || end-start < 4 {
			zap.L().Debug("geo: skipping malformed ring", zap.Int("part", i))
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flatPoints(pts[start:end]))); err != nil {
			zap.L().Debug("geo: skipping ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping polygon", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func flatPoints(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
