// Package geo holds the geometry helpers shared by the bbox extractor and the
// shapefile work-item source.
package geo

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ParseBBox parses "minLon,minLat,maxLon,maxLat" into bounds.
func ParseBBox(s string) (*geom.Bounds, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return nil, eris.Errorf("geo: bbox %q: want 4 comma-separated numbers", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: bbox %q", s)
		}
		v[i] = f
	}
	b := geom.NewBounds(geom.XY).Set(v[0], v[1], v[2], v[3])
	if err := Validate(b); err != nil {
		return nil, eris.Wrapf(err, "geo: bbox %q", s)
	}
	return b, nil
}

// Validate checks that b is non-degenerate and within lon/lat range.
func Validate(b *geom.Bounds) error {
	if b.Min(0) >= b.Max(0) || b.Min(1) >= b.Max(1) {
		return eris.New("min must be below max")
	}
	if b.Min(0) < -180 || b.Max(0) > 180 || b.Min(1) < -90 || b.Max(1) > 90 {
		return eris.New("outside lon/lat range")
	}
	return nil
}

// FormatBBox renders bounds as "minLon,minLat,maxLon,maxLat".
func FormatBBox(b *geom.Bounds) string {
	return strings.Join([]string{
		formatCoord(b.Min(0)), formatCoord(b.Min(1)),
		formatCoord(b.Max(0)), formatCoord(b.Max(1)),
	}, ",")
}

// Center returns the midpoint of b as lon, lat.
func Center(b *geom.Bounds) (lon, lat float64) {
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
}

func formatCoord(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
