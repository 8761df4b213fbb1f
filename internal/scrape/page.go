// Package scrape turns fetched HTML into structured page fields for the page
// extractor.
package scrape

import (
	"html"
	"regexp"
	"strings"
)

// Page is the parsed content of one HTML page.
type Page struct {
	URL         string
	StatusCode  int
	Title       string
	Description string
	H1          string
	Canonical   string
	Lang        string
	Text        string
}

var (
	titleRe     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	h1Re        = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	metaRe      = regexp.MustCompile(`(?is)<meta\s[^>]*>`)
	linkRe      = regexp.MustCompile(`(?is)<link\s[^>]*>`)
	langRe      = regexp.MustCompile(`(?is)<html[^>]*\slang=["']?([a-zA-Z\-]+)`)
	attrRe      = regexp.MustCompile(`(?is)([a-z\-:]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	dropBlockRe = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{"script", "style", "nav", "footer", "noscript"} {
		dropBlockRe[tag] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
}

// Parse extracts the standard fields from an HTML document.
func Parse(url string, status int, doc string) *Page {
	p := &Page{
		URL:        url,
		StatusCode: status,
		Title:      firstMatch(titleRe, doc),
		H1:         StripHTML(firstMatch(h1Re, doc)),
		Lang:       strings.ToLower(firstMatch(langRe, doc)),
		Text:       StripHTML(doc),
	}
	for _, tag := range metaRe.FindAllString(doc, -1) {
		attrs := attributes(tag)
		name := strings.ToLower(attrs["name"] + attrs["property"])
		if name == "description" || name == "og:description" && p.Description == "" {
			p.Description = attrs["content"]
		}
	}
	for _, tag := range linkRe.FindAllString(doc, -1) {
		attrs := attributes(tag)
		if strings.EqualFold(attrs["rel"], "canonical") {
			p.Canonical = attrs["href"]
			break
		}
	}
	return p
}

// StripHTML removes script, style, nav and footer blocks, drops the
// remaining tags, decodes entities and collapses whitespace.
func StripHTML(doc string) string {
	for _, re := range dropBlockRe {
		doc = re.ReplaceAllString(doc, "")
	}
	doc = tagRe.ReplaceAllString(doc, " ")
	doc = html.UnescapeString(doc)
	doc = strings.ReplaceAll(doc, "\u00a0", " ")
	doc = spaceRe.ReplaceAllString(doc, " ")

	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

func attributes(tag string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		out[strings.ToLower(m[1])] = html.UnescapeString(v)
	}
	return out
}
