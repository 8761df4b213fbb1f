// Package geocode resolves free-form addresses to coordinates via the Yandex
// Geocoder (primary) and Google Geocoding API (fallback).
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves one address. An address no provider could match is
	// returned as a Result with Matched false and a nil error.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput is an address to geocode.
type AddressInput struct {
	ID      string
	Address string
	// City is prepended when Address does not already mention it.
	City string
}

// OneLine renders the query string sent to providers.
func (a AddressInput) OneLine() string {
	addr := strings.TrimSpace(a.Address)
	city := strings.TrimSpace(a.City)
	if city == "" || strings.Contains(strings.ToLower(addr), strings.ToLower(city)) {
		return addr
	}
	if addr == "" {
		return city
	}
	return city + ", " + addr
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "yandex" or "google"
	Quality   string // "rooftop", "range", "street", "locality", "approximate"
	Precision string // provider-native precision label
	Kind      string // object kind (house, street, locality, ...)
	Address   string // formatted address as returned by the provider
	Matched   bool
}

// StatusError is a non-200 response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocode: %s returned status %d", e.Provider, e.StatusCode)
}

// DecodeError means a provider answered 200 with a body that could not be
// read as a geocoder response.
type DecodeError struct {
	Provider string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("geocode: %s response: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Option configures the geocoder.
type Option func(*geocoder)

// WithYandexKey enables the Yandex Geocoder.
func WithYandexKey(key string) Option {
	return func(g *geocoder) {
		g.yandexKey = key
	}
}

// WithGoogleAPIKey enables the Google Geocoding API.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithLanguage sets the response language (default "ru_RU").
func WithLanguage(lang string) Option {
	return func(g *geocoder) {
		g.lang = lang
	}
}

// WithHTTPClient sets the HTTP client used for every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by all providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

type geocoder struct {
	httpClient *http.Client
	yandexKey  string
	googleKey  string
	lang       string
	limiter    *rate.Limiter
}

// NewClient creates a geocoding Client. At least one provider key should be
// set; with none every address comes back unmatched.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lang:       "ru_RU",
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Yandex, then Google. Provider errors are returned only when
// no provider produced a match.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	var firstErr error

	if g.yandexKey != "" {
		r, err := g.geocodeYandex(ctx, addr)
		if err == nil && r.Matched {
			return r, nil
		}
		if err != nil {
			firstErr = err
		}
	}

	if g.googleKey != "" {
		r, err := g.geocodeGoogle(ctx, addr)
		if err == nil && r.Matched {
			return r, nil
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return &Result{Matched: false}, nil
}
