package extract

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/internal/resilience"
)

// Getter is the slice of fetcher.HTTPFetcher the extractors use.
type Getter interface {
	Get(ctx context.Context, url string, hdr http.Header) (*fetcher.Response, error)
}

// get issues a request and turns transport failures into a harvest.FetchError.
// The response is returned for every status; callers decide what is a failure.
func get(ctx context.Context, g Getter, rawURL string, hdr http.Header) (*fetcher.Response, error) {
	resp, err := g.Get(ctx, rawURL, hdr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, harvest.NewFetchError(rawURL, resilience.StatusCode(err), err)
	}
	return resp, nil
}

// expand substitutes {id} and any {field} placeholders, escaping each value
// as a path segment.
func expand(tmpl string, item harvest.WorkItem) string {
	out := strings.ReplaceAll(tmpl, "{id}", url.PathEscape(item.ID))
	for k, v := range item.Fields {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(v))
	}
	return out
}
