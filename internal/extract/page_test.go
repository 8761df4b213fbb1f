package extract

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/geoharvest/internal/fetcher"
	"github.com/sells-group/geoharvest/internal/harvest"
)

const placeHTML = `<!DOCTYPE html>
<html lang="ru">
<head>
<title>Казанский кремль - Wikimapia</title>
<meta name="description" content="Крепость в центре Казани">
<link rel="canonical" href="https://wikimapia.test/42/">
</head>
<body>
<h1>Казанский <b>кремль</b></h1>
<div id="placeinfo-categories"><a>крепость</a>, <a>музей</a></div>
<div class="photo"><img src="/p/1.jpg"></div>
</body>
</html>`

func TestPage_Fields(t *testing.T) {
	g := newStub().onHTML("https://wikimapia.test/42/", "text/html; charset=utf-8", []byte(placeHTML))
	p, err := NewPage(g, PageOptions{
		URLTemplate: "https://wikimapia.test/{id}/",
		UserAgent:   "Mozilla/5.0 test",
		Fields: map[string]string{
			"categories": `<div id="placeinfo-categories">(.*?)</div>`,
			"photo":      `<div class="photo"><img src="([^"]+)"`,
			"address":    `<div class="address">(.*?)</div>`,
		},
	})
	require.NoError(t, err)

	row, err := p.Extract(context.Background(), item("42"))
	require.NoError(t, err)
	assert.Equal(t, "42", row["id"])
	assert.Equal(t, "Казанский кремль - Wikimapia", row["title"])
	assert.Equal(t, "Крепость в центре Казани", row["description"])
	assert.Equal(t, "Казанский кремль", row["h1"])
	assert.Equal(t, "https://wikimapia.test/42/", row["canonical"])
	assert.Equal(t, "ru", row["lang"])
	assert.Equal(t, "крепость , музей", row["categories"])
	assert.Equal(t, "/p/1.jpg", row["photo"])
	assert.Nil(t, row["address"])

	require.Len(t, g.headers, 1)
	assert.Equal(t, "Mozilla/5.0 test", g.headers[0].Get("User-Agent"))
	assert.Contains(t, g.headers[0].Get("Accept"), "text/html")
}

func TestPage_Windows1251(t *testing.T) {
	body, err := charmap.Windows1251.NewEncoder().String(`<html><head><title>Пенза</title></head><body><h1>Улица Московская</h1></body></html>`)
	require.NoError(t, err)

	g := newStub().onHTML("https://pages.test/1", "text/html; charset=windows-1251", []byte(body))
	p, err := NewPage(g, PageOptions{URLTemplate: "https://pages.test/{id}"})
	require.NoError(t, err)

	row, err := p.Extract(context.Background(), item("1"))
	require.NoError(t, err)
	assert.Equal(t, "Пенза", row["title"])
	assert.Equal(t, "Улица Московская", row["h1"])
}

func TestPage_RequiredFieldMissing(t *testing.T) {
	g := newStub().onHTML("https://pages.test/1", "text/html", []byte(placeHTML))
	p, err := NewPage(g, PageOptions{
		URLTemplate: "https://pages.test/{id}",
		Fields:      map[string]string{"address": `<div class="address">(.*?)</div>`},
		Required:    []string{"address"},
	})
	require.NoError(t, err)

	_, err = p.Extract(context.Background(), item("1"))
	var ee *harvest.ExtractorError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, err.Error(), "address")
}

func TestPage_Blocked(t *testing.T) {
	g := newStub().on("https://pages.test/1", 200, `<html><body>Please solve the CAPTCHA to continue</body></html>`)
	p, err := NewPage(g, PageOptions{URLTemplate: "https://pages.test/{id}"})
	require.NoError(t, err)

	_, err = p.Extract(context.Background(), item("1"))
	var fe *harvest.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "blocked (captcha)")
}

func TestPage_NotFound(t *testing.T) {
	p, err := NewPage(newStub(), PageOptions{URLTemplate: "https://pages.test/{id}"})
	require.NoError(t, err)

	_, err = p.Extract(context.Background(), item("missing"))
	var fe *harvest.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

type slowGetter struct{}

func (slowGetter) Get(ctx context.Context, _ string, _ http.Header) (*fetcher.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPage_Timeout(t *testing.T) {
	p, err := NewPage(slowGetter{}, PageOptions{URLTemplate: "https://pages.test/{id}", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Extract(context.Background(), item("1"))
	var fe *harvest.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestPage_ParentCancelIsNotItemFailure(t *testing.T) {
	p, err := NewPage(slowGetter{}, PageOptions{URLTemplate: "https://pages.test/{id}", Timeout: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Extract(ctx, item("1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, harvest.IsItemFailure(err))
}

func TestNewPage_Validation(t *testing.T) {
	_, err := NewPage(newStub(), PageOptions{})
	assert.Error(t, err)

	_, err = NewPage(newStub(), PageOptions{URLTemplate: "u", Fields: map[string]string{"bad": "("}})
	assert.Error(t, err)
}
