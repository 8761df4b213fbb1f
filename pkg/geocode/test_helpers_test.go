package geocode

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

// routingTransport sends requests whose URL starts with a known provider
// endpoint to the matching test server.
type routingTransport struct {
	routes map[string]string // provider prefix -> test server URL
}

func (t *routingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	for prefix, target := range t.routes {
		if !strings.HasPrefix(orig, prefix) {
			continue
		}
		parsed, err := req.URL.Parse(target + "/" + strings.TrimPrefix(orig, prefix))
		if err != nil {
			return nil, err
		}
		out := req.Clone(req.Context())
		out.URL = parsed
		out.Host = parsed.Host
		return http.DefaultTransport.RoundTrip(out)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// testGeocoder builds a geocoder whose providers are served by handlers.
// A nil handler leaves that provider disabled.
func testGeocoder(t *testing.T, yandex, google http.HandlerFunc) *geocoder {
	t.Helper()
	routes := map[string]string{}
	g := &geocoder{lang: "ru_RU", limiter: rate.NewLimiter(rate.Inf, 1)}
	if yandex != nil {
		srv := httptest.NewServer(yandex)
		t.Cleanup(srv.Close)
		routes[yandexGeocodeURL] = srv.URL
		g.yandexKey = "y-key"
	}
	if google != nil {
		srv := httptest.NewServer(google)
		t.Cleanup(srv.Close)
		routes[googleGeocodeURL] = srv.URL
		g.googleKey = "g-key"
	}
	g.httpClient = &http.Client{Transport: &routingTransport{routes: routes}}
	return g
}
