package extract

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/geoharvest/internal/harvest"
)

// Registry row statuses.
const (
	StatusFound = "found"
	// StatusVoid marks a number the registry answered with 204 or an empty
	// search result. It is a row, not a failure.
	StatusVoid = "void"
)

var cnRe = regexp.MustCompile(`^\d+(:\d+){3}$`)

// NormalizeCN strips leading zeros from every block of a cadastral number:
// "42:02:0000012:42" becomes "42:2:12:42". Numbers that are not four
// colon-separated digit blocks are returned trimmed but otherwise unchanged.
func NormalizeCN(cn string) string {
	cn = strings.TrimSpace(cn)
	if !cnRe.MatchString(cn) {
		return cn
	}
	parts := strings.Split(cn, ":")
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return cn
		}
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, ":")
}

// RegistryOptions configures RegistryExtractor.
type RegistryOptions struct {
	// LookupURL searches by cadastral number and returns JSON holding the
	// object id at IDPath. Empty skips the search and uses the normalized
	// number as the id.
	LookupURL string
	DetailURL string
	// IDPath is a gjson path into the lookup response.
	IDPath string
	// DropFields are removed from the top level of the detail object.
	DropFields []string
}

// RegistryExtractor resolves a cadastral number to an object id, then
// fetches the object's detail record.
type RegistryExtractor struct {
	client Getter
	opts   RegistryOptions
}

// NewRegistry builds a RegistryExtractor.
func NewRegistry(client Getter, opts RegistryOptions) (*RegistryExtractor, error) {
	if client == nil {
		return nil, eris.New("extract: registry needs an http client")
	}
	if opts.DetailURL == "" {
		return nil, eris.New("extract: registry detail url is required")
	}
	if opts.LookupURL != "" && opts.IDPath == "" {
		opts.IDPath = "0.objectId"
	}
	return &RegistryExtractor{client: client, opts: opts}, nil
}

// Name implements harvest.Extractor.
func (r *RegistryExtractor) Name() string { return "registry" }

var jsonAccept = http.Header{"Accept": {"application/json"}}

// Extract implements harvest.Extractor.
func (r *RegistryExtractor) Extract(ctx context.Context, item harvest.WorkItem) (harvest.Row, error) {
	cn := strings.TrimSpace(item.ID)
	if cn == "" {
		return nil, harvest.NewExtractorError(eris.New("empty cadastral number"))
	}

	objectID := NormalizeCN(cn)
	if r.opts.LookupURL != "" {
		id, found, err := r.lookup(ctx, item)
		if err != nil {
			return nil, err
		}
		if !found {
			return voidRow(cn, ""), nil
		}
		objectID = id
	}

	detailURL := expand(r.opts.DetailURL, harvest.WorkItem{ID: objectID, Fields: item.Fields})
	resp, err := get(ctx, r.client, detailURL, jsonAccept)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return voidRow(cn, objectID), nil
	}
	if !resp.OK() {
		return nil, harvest.NewFetchError(detailURL, resp.StatusCode, nil)
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, harvest.NewParseError(eris.Errorf("detail for %s is not valid json", objectID))
	}

	detail, ok := gjson.ParseBytes(resp.Body).Value().(map[string]any)
	if !ok {
		return nil, harvest.NewParseError(eris.Errorf("detail for %s is not a json object", objectID))
	}
	for _, f := range r.opts.DropFields {
		delete(detail, f)
	}

	row := harvest.Row{
		"cn":        cn,
		"object_id": objectID,
		"status":    StatusFound,
	}
	for k, v := range detail {
		if _, taken := row[k]; taken {
			k = "detail_" + k
		}
		row[k] = v
	}
	return row, nil
}

// lookup runs the search stage. found is false when the registry knows no
// object for the number.
func (r *RegistryExtractor) lookup(ctx context.Context, item harvest.WorkItem) (string, bool, error) {
	lookupURL := expand(r.opts.LookupURL, item)
	resp, err := get(ctx, r.client, lookupURL, jsonAccept)
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return "", false, nil
	}
	if !resp.OK() {
		return "", false, harvest.NewFetchError(lookupURL, resp.StatusCode, nil)
	}
	if !gjson.ValidBytes(resp.Body) {
		return "", false, harvest.NewParseError(eris.Errorf("lookup for %s is not valid json", item.ID))
	}

	doc := gjson.ParseBytes(resp.Body)
	if doc.IsArray() && len(doc.Array()) == 0 {
		return "", false, nil
	}
	id := doc.Get(r.opts.IDPath)
	if !id.Exists() || id.String() == "" {
		return "", false, harvest.NewParseError(eris.Errorf("lookup for %s has no %q", item.ID, r.opts.IDPath))
	}
	return id.String(), true, nil
}

func voidRow(cn, objectID string) harvest.Row {
	return harvest.Row{"cn": cn, "object_id": objectID, "status": StatusVoid}
}
