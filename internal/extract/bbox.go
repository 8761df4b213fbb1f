package extract

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/geo"
	"github.com/sells-group/geoharvest/internal/harvest"
)

// osmElement is one feature in an OSM-style XML response.
type osmElement struct {
	ID   string   `xml:"id,attr"`
	Lat  *float64 `xml:"lat,attr"`
	Lon  *float64 `xml:"lon,attr"`
	Tags []osmTag `xml:"tag"`
}

type osmTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

// BBoxOptions configures BBoxExtractor.
type BBoxOptions struct {
	// URL contains {bbox}, or {minlon} {minlat} {maxlon} {maxlat}.
	URL string
	// Element is the XML element counted as a feature (default "node").
	Element string
	// SplitThreshold flags boxes whose feature count reaches it as needing a
	// finer grid (default 100).
	SplitThreshold int
}

// BBoxExtractor counts the features a map service returns for a box.
type BBoxExtractor struct {
	client Getter
	opts   BBoxOptions
}

// NewBBox builds a BBoxExtractor.
func NewBBox(client Getter, opts BBoxOptions) (*BBoxExtractor, error) {
	if client == nil {
		return nil, eris.New("extract: bbox needs an http client")
	}
	if opts.URL == "" {
		return nil, eris.New("extract: bbox url is required")
	}
	if opts.Element == "" {
		opts.Element = "node"
	}
	if opts.SplitThreshold <= 0 {
		opts.SplitThreshold = 100
	}
	return &BBoxExtractor{client: client, opts: opts}, nil
}

// Name implements harvest.Extractor.
func (b *BBoxExtractor) Name() string { return "bbox" }

// Extract implements harvest.Extractor. The box comes from the item's "bbox"
// field, falling back to its id.
func (b *BBoxExtractor) Extract(ctx context.Context, item harvest.WorkItem) (harvest.Row, error) {
	bounds, err := geo.ParseBBox(item.Field("bbox"))
	if err != nil {
		return nil, harvest.NewExtractorError(err)
	}

	reqURL := b.url(bounds)
	resp, err := get(ctx, b.client, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, harvest.NewFetchError(reqURL, resp.StatusCode, nil)
	}

	elems, err := fetcher.CollectXML[osmElement](ctx, bytes.NewReader(resp.Body), b.opts.Element)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, harvest.NewParseError(err)
	}

	ids := make([]any, 0, len(elems))
	named := 0
	for _, e := range elems {
		ids = append(ids, e.ID)
		for _, t := range e.Tags {
			if t.K == "name" && t.V != "" {
				named++
				break
			}
		}
	}

	lon, lat := geo.Center(bounds)
	row := harvest.Row{
		"id":              item.ID,
		"bbox":            geo.FormatBBox(bounds),
		"center_lon":      lon,
		"center_lat":      lat,
		"feature_count":   len(elems),
		"named_count":     named,
		"feature_ids":     ids,
		"needs_splitting": len(elems) >= b.opts.SplitThreshold,
	}
	if len(elems) >= b.opts.SplitThreshold {
		// quarters can be fed back as items for a finer pass
		var quarters []any
		for _, q := range geo.Quarter(bounds) {
			quarters = append(quarters, geo.FormatBBox(q))
		}
		row["split_into"] = quarters
	}
	return row, nil
}

func (b *BBoxExtractor) url(bounds *geom.Bounds) string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	return strings.NewReplacer(
		"{bbox}", geo.FormatBBox(bounds),
		"{minlon}", f(bounds.Min(0)),
		"{minlat}", f(bounds.Min(1)),
		"{maxlon}", f(bounds.Max(0)),
		"{maxlat}", f(bounds.Max(1)),
	).Replace(b.opts.URL)
}
