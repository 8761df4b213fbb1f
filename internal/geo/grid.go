package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Grid splits b into cols x rows equal tiles, ordered row by row from the
// south-west corner.
func Grid(b *geom.Bounds, cols, rows int) ([]*geom.Bounds, error) {
	if cols <= 0 || rows <= 0 {
		return nil, eris.Errorf("geo: grid %dx%d: dimensions must be positive", cols, rows)
	}
	dx := (b.Max(0) - b.Min(0)) / float64(cols)
	dy := (b.Max(1) - b.Min(1)) / float64(rows)

	tiles := make([]*geom.Bounds, 0, cols*rows)
	for r := range rows {
		minY := b.Min(1) + float64(r)*dy
		maxY := b.Min(1) + float64(r+1)*dy
		if r == rows-1 {
			maxY = b.Max(1)
		}
		for c := range cols {
			minX := b.Min(0) + float64(c)*dx
			maxX := b.Min(0) + float64(c+1)*dx
			if c == cols-1 {
				maxX = b.Max(0)
			}
			tiles = append(tiles, geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY))
		}
	}
	return tiles, nil
}

// Quarter splits b into four tiles, the usual refinement for a box that
// returned too many features.
func Quarter(b *geom.Bounds) []*geom.Bounds {
	tiles, _ := Grid(b, 2, 2)
	return tiles
}
