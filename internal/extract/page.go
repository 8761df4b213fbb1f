package extract

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/internal/scrape"
)

// PageOptions configures PageExtractor.
type PageOptions struct {
	URLTemplate string
	UserAgent   string
	Timeout     time.Duration
	// Fields maps an output column to a regular expression; the first
	// capture group (tags stripped) becomes the value.
	Fields map[string]string
	// Required fields missing from a page make the item fail.
	Required []string
}

// PageExtractor fetches an HTML page and scrapes standard and configured
// fields from it.
type PageExtractor struct {
	client Getter
	opts   PageOptions
	fields map[string]*regexp.Regexp
	order  []string
}

// NewPage builds a PageExtractor, compiling the field patterns.
func NewPage(client Getter, opts PageOptions) (*PageExtractor, error) {
	if client == nil {
		return nil, eris.New("extract: page needs an http client")
	}
	if opts.URLTemplate == "" {
		return nil, eris.New("extract: page url template is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	p := &PageExtractor{client: client, opts: opts, fields: make(map[string]*regexp.Regexp)}
	for name, pattern := range opts.Fields {
		re, err := regexp.Compile("(?is)" + pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: page field %q", name)
		}
		p.fields[name] = re
		p.order = append(p.order, name)
	}
	sort.Strings(p.order)
	return p, nil
}

// Name implements harvest.Extractor.
func (p *PageExtractor) Name() string { return "page" }

// Extract implements harvest.Extractor.
func (p *PageExtractor) Extract(ctx context.Context, item harvest.WorkItem) (harvest.Row, error) {
	pageURL := expand(p.opts.URLTemplate, item)

	reqCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	hdr := http.Header{"Accept": {"text/html,application/xhtml+xml"}, "Accept-Language": {"ru,en;q=0.8"}}
	if p.opts.UserAgent != "" {
		hdr.Set("User-Agent", p.opts.UserAgent)
	}
	resp, err := get(reqCtx, p.client, pageURL, hdr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, harvest.NewFetchError(pageURL, 0, eris.Wrapf(err, "timed out after %s", p.opts.Timeout))
		}
		return nil, err
	}

	if blocked, kind := scrape.DetectBlock(resp.StatusCode, resp.Header, resp.Body); blocked {
		return nil, harvest.NewFetchError(pageURL, resp.StatusCode, eris.Errorf("blocked (%s)", kind))
	}
	if !resp.OK() {
		return nil, harvest.NewFetchError(pageURL, resp.StatusCode, nil)
	}

	doc, err := fetcher.DecodeHTML(resp.Header.Get("Content-Type"), resp.Body)
	if err != nil {
		return nil, harvest.NewParseError(err)
	}
	page := scrape.Parse(pageURL, resp.StatusCode, doc)

	row := harvest.Row{
		"id":          item.ID,
		"url":         page.URL,
		"title":       page.Title,
		"description": page.Description,
		"h1":          page.H1,
		"canonical":   page.Canonical,
		"lang":        page.Lang,
	}
	for _, name := range p.order {
		m := p.fields[name].FindStringSubmatch(doc)
		switch {
		case m == nil:
			row[name] = nil
		case len(m) > 1:
			row[name] = scrape.StripHTML(m[1])
		default:
			row[name] = scrape.StripHTML(m[0])
		}
	}
	for _, name := range p.opts.Required {
		if v, _ := row[name].(string); v == "" {
			return nil, harvest.NewExtractorError(eris.Errorf("required field %q not found on %s", name, pageURL))
		}
	}
	return row, nil
}
