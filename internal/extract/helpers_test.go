package extract

import (
	"context"
	"net/http"
	"sync"

	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
)

// stubGetter answers by exact URL. Unknown URLs get a 404.
type stubGetter struct {
	mu        sync.Mutex
	responses map[string]*fetcher.Response
	errs      map[string]error
	requested []string
	headers   []http.Header
}

func newStub() *stubGetter {
	return &stubGetter{responses: map[string]*fetcher.Response{}, errs: map[string]error{}}
}

func (s *stubGetter) on(url string, status int, body string) *stubGetter {
	s.responses[url] = &fetcher.Response{URL: url, StatusCode: status, Header: http.Header{}, Body: []byte(body)}
	return s
}

func (s *stubGetter) onHTML(url, contentType string, body []byte) *stubGetter {
	s.responses[url] = &fetcher.Response{URL: url, StatusCode: 200, Header: http.Header{"Content-Type": {contentType}}, Body: body}
	return s
}

func (s *stubGetter) fail(url string, err error) *stubGetter {
	s.errs[url] = err
	return s
}

func (s *stubGetter) Get(ctx context.Context, url string, hdr http.Header) (*fetcher.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, url)
	s.headers = append(s.headers, hdr)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	if r, ok := s.responses[url]; ok {
		return r, nil
	}
	return &fetcher.Response{URL: url, StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
}

func item(id string) harvest.WorkItem {
	return harvest.WorkItem{ID: id}
}
