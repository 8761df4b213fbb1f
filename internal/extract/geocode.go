package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/pkg/geocode"
)

// GeocodeExtractor resolves an address column to coordinates.
type GeocodeExtractor struct {
	client       geocode.Client
	addressField string
	city         string
}

// NewGeocode builds a GeocodeExtractor. addressField names the work item
// field holding the address; items without it use their id. city is
// prepended to addresses that do not mention it.
func NewGeocode(client geocode.Client, addressField, city string) (*GeocodeExtractor, error) {
	if client == nil {
		return nil, eris.New("extract: geocode needs a client")
	}
	return &GeocodeExtractor{client: client, addressField: addressField, city: city}, nil
}

// Name implements harvest.Extractor.
func (g *GeocodeExtractor) Name() string { return "geocode" }

// Extract implements harvest.Extractor. An address no provider matches is an
// ExtractorError so it lands in the error log for a later retry.
func (g *GeocodeExtractor) Extract(ctx context.Context, item harvest.WorkItem) (harvest.Row, error) {
	addr := geocode.AddressInput{ID: item.ID, Address: item.Field(g.addressField), City: g.city}
	if addr.OneLine() == "" {
		return nil, harvest.NewExtractorError(eris.New("empty address"))
	}

	res, err := g.client.Geocode(ctx, addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *geocode.StatusError
		if errors.As(err, &se) {
			return nil, harvest.NewFetchError(se.Provider, se.StatusCode, err)
		}
		var de *geocode.DecodeError
		if errors.As(err, &de) {
			return nil, harvest.NewParseError(err)
		}
		return nil, harvest.NewFetchError("geocode", 0, err)
	}
	if !res.Matched {
		return nil, harvest.NewExtractorError(eris.Errorf("no match for %q", addr.OneLine()))
	}

	return harvest.Row{
		"id":                item.ID,
		"query":             addr.OneLine(),
		"lat":               res.Latitude,
		"lon":               res.Longitude,
		"source":            res.Source,
		"quality":           res.Quality,
		"precision":         res.Precision,
		"kind":              res.Kind,
		"formatted_address": res.Address,
	}, nil
}
