package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePage = `<!DOCTYPE html>
<html lang="ru">
<head>
  <title>Парк Белинского &amp; окрестности - Wikimapia</title>
  <meta name="description" content="Городской парк в Пензе">
  <meta property="og:description" content="ignored">
  <link rel="canonical" href="http://wikimapia.org/12345/ru/park">
  <script>var x = "<b>not text</b>";</script>
  <style>body{color:red}</style>
</head>
<body>
  <nav>Menu Login</nav>
  <h1>Парк <span>Белинского</span></h1>
  <p>Площадь&nbsp;12 га.</p>


  <p>Основан в 1821 году.</p>
  <footer>Copyright</footer>
</body>
</html>`

func TestParse(t *testing.T) {
	p := Parse("http://wikimapia.org/12345", 200, samplePage)

	assert.Equal(t, "http://wikimapia.org/12345", p.URL)
	assert.Equal(t, 200, p.StatusCode)
	assert.Equal(t, "Парк Белинского & окрестности - Wikimapia", p.Title)
	assert.Equal(t, "Городской парк в Пензе", p.Description)
	assert.Equal(t, "Парк Белинского", p.H1)
	assert.Equal(t, "http://wikimapia.org/12345/ru/park", p.Canonical)
	assert.Equal(t, "ru", p.Lang)

	assert.Contains(t, p.Text, "Площадь 12 га.")
	assert.Contains(t, p.Text, "Основан в 1821 году.")
	assert.NotContains(t, p.Text, "not text")
	assert.NotContains(t, p.Text, "color:red")
	assert.NotContains(t, p.Text, "Menu Login")
	assert.NotContains(t, p.Text, "Copyright")
	assert.NotContains(t, p.Text, "\n\n\n")
}

func TestParse_OGDescriptionFallback(t *testing.T) {
	p := Parse("u", 200, `<meta property="og:description" content='Только OG'>`)
	assert.Equal(t, "Только OG", p.Description)
}

func TestParse_Empty(t *testing.T) {
	p := Parse("u", 200, "")
	assert.Empty(t, p.Title)
	assert.Empty(t, p.Text)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a b", StripHTML("<p>a</p>   <p>b</p>"))
	assert.Equal(t, "x < y", StripHTML("x &lt; y"))
}
