package fetcher

import (
	"bytes"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?\s*([a-zA-Z0-9_\-]+)`)

// CharsetReader converts input in the named charset to UTF-8. It matches the
// signature of xml.Decoder.CharsetReader.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

// DetectCharset picks the charset of an HTML body from the Content-Type
// header, then a <meta charset> in the first 1 KiB. Returns "" when neither
// names one.
func DetectCharset(contentType string, body []byte) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := params["charset"]; cs != "" {
			return strings.ToLower(cs)
		}
	}
	head := body[:min(len(body), 1024)]
	if m := metaCharsetRe.FindSubmatch(head); m != nil {
		return strings.ToLower(string(m[1]))
	}
	return ""
}

// DecodeHTML returns body as UTF-8 text, decoding legacy charsets such as
// windows-1251. Bodies that declare no charset are treated as UTF-8 with
// invalid bytes replaced.
func DecodeHTML(contentType string, body []byte) (string, error) {
	cs := DetectCharset(contentType, body)
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		if !utf8.Valid(body) {
			return strings.ToValidUTF8(string(body), "�"), nil
		}
		return string(body), nil
	}
	r, err := CharsetReader(cs, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: decode %s body", cs)
	}
	return string(out), nil
}
