package geocode

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

const yandexGeocodeURL = "https://geocode-maps.yandex.ru/1.x/"

func (g *geocoder) geocodeYandex(ctx context.Context, addr AddressInput) (*Result, error) {
	if g.yandexKey == "" {
		return nil, eris.New("geocode: yandex api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: yandex rate limit")
	}

	params := url.Values{
		"apikey":  {g.yandexKey},
		"geocode": {addr.OneLine()},
		"format":  {"json"},
		"lang":    {g.lang},
		"results": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, yandexGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: yandex build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: yandex request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: "yandex", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: yandex read body")
	}
	if !gjson.ValidBytes(body) {
		return nil, &DecodeError{Provider: "yandex", Err: eris.New("invalid json")}
	}

	obj := gjson.GetBytes(body, "response.GeoObjectCollection.featureMember.0.GeoObject")
	if !obj.Exists() {
		return &Result{Matched: false, Source: "yandex"}, nil
	}

	// pos is "lon lat"
	lon, lat, ok := parsePos(obj.Get("Point.pos").String())
	if !ok {
		return nil, &DecodeError{Provider: "yandex", Err: eris.Errorf("malformed point %q", obj.Get("Point.pos").String())}
	}

	meta := obj.Get("metaDataProperty.GeocoderMetaData")
	precision := meta.Get("precision").String()
	return &Result{
		Latitude:  lat,
		Longitude: lon,
		Source:    "yandex",
		Quality:   yandexPrecisionToQuality(precision),
		Precision: precision,
		Kind:      meta.Get("kind").String(),
		Address:   meta.Get("text").String(),
		Matched:   true,
	}, nil
}

func parsePos(pos string) (lon, lat float64, ok bool) {
	parts := strings.Fields(pos)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lon, err1 := strconv.ParseFloat(parts[0], 64)
	lat, err2 := strconv.ParseFloat(parts[1], 64)
	return lon, lat, err1 == nil && err2 == nil
}

func yandexPrecisionToQuality(p string) string {
	switch p {
	case "exact":
		return "rooftop"
	case "number", "near":
		return "range"
	case "range", "street":
		return "street"
	case "other":
		return "locality"
	default:
		return "approximate"
	}
}
