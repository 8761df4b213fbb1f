package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoharvest/internal/harvest"
	"github.com/sells-group/geoharvest/pkg/geocode"
)

type fakeGeocoder struct {
	results map[string]*geocode.Result
	err     error
	queries []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	f.queries = append(f.queries, addr.OneLine())
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[addr.OneLine()]; ok {
		return r, nil
	}
	return &geocode.Result{Matched: false}, nil
}

func TestGeocode_Match(t *testing.T) {
	fg := &fakeGeocoder{results: map[string]*geocode.Result{
		"Казань, ул. Баумана, 1": {Latitude: 55.789, Longitude: 49.118, Source: "yandex", Quality: "rooftop", Precision: "exact", Kind: "house", Address: "Россия, Казань, улица Баумана, 1", Matched: true},
	}}
	g, err := NewGeocode(fg, "address", "Казань")
	require.NoError(t, err)

	it := harvest.WorkItem{ID: "17", Fields: map[string]string{"address": "ул. Баумана, 1"}}
	row, err := g.Extract(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, "17", row["id"])
	assert.Equal(t, 55.789, row["lat"])
	assert.Equal(t, 49.118, row["lon"])
	assert.Equal(t, "yandex", row["source"])
	assert.Equal(t, "house", row["kind"])
	assert.Equal(t, "Казань, ул. Баумана, 1", row["query"])
}

func TestGeocode_AddressFallsBackToID(t *testing.T) {
	fg := &fakeGeocoder{}
	g, err := NewGeocode(fg, "address", "")
	require.NoError(t, err)

	_, err = g.Extract(context.Background(), item("Пенза, ул. Мира, 5"))
	require.Error(t, err)
	assert.Equal(t, []string{"Пенза, ул. Мира, 5"}, fg.queries)
}

func TestGeocode_NoMatchIsExtractorError(t *testing.T) {
	g, err := NewGeocode(&fakeGeocoder{}, "address", "")
	require.NoError(t, err)

	_, err = g.Extract(context.Background(), item("nowhere"))
	var ee *harvest.ExtractorError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, err.Error(), "no match")
}

func TestGeocode_EmptyAddress(t *testing.T) {
	g, err := NewGeocode(&fakeGeocoder{}, "address", "")
	require.NoError(t, err)
	_, err = g.Extract(context.Background(), item(""))
	assert.True(t, harvest.IsItemFailure(err))
}

func TestGeocode_ProviderStatusIsFetchError(t *testing.T) {
	g, err := NewGeocode(&fakeGeocoder{err: &geocode.StatusError{Provider: "yandex", StatusCode: 403}}, "address", "")
	require.NoError(t, err)

	_, err = g.Extract(context.Background(), item("x"))
	var fe *harvest.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 403, fe.StatusCode)
	assert.Equal(t, "yandex", fe.URL)
}

func TestGeocode_TransportErrorIsFetchError(t *testing.T) {
	g, err := NewGeocode(&fakeGeocoder{err: errors.New("connection refused")}, "address", "")
	require.NoError(t, err)
	_, err = g.Extract(context.Background(), item("x"))
	var fe *harvest.FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestGeocode_UndecodableResponseIsParseError(t *testing.T) {
	bad := &geocode.DecodeError{Provider: "google", Err: errors.New("unexpected end of JSON input")}
	g, err := NewGeocode(&fakeGeocoder{err: bad}, "address", "")
	require.NoError(t, err)

	_, err = g.Extract(context.Background(), item("x"))
	var pe *harvest.ParseError
	require.True(t, errors.As(err, &pe))
	var fe *harvest.FetchError
	assert.False(t, errors.As(err, &fe))
	assert.Equal(t, "parse", harvest.FailureFor(item("x"), err).Kind)
}

func TestNewGeocode_NilClient(t *testing.T) {
	_, err := NewGeocode(nil, "address", "")
	assert.Error(t, err)
}
