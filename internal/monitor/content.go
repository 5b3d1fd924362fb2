package monitor

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/HerbHall/uptimed/pkg/models"
)

// maxBodyBytes caps how much of a response body content validation reads.
const maxBodyBytes = 5 << 20

// validateContent returns an empty string when body satisfies cfg, or the
// reason it fails. Only the byte-length check runs when the text threshold
// is zero.
func validateContent(body []byte, cfg models.ContentValidationConfig) string {
	if cfg.MinContentLength > 0 && len(body) < cfg.MinContentLength {
		return fmt.Sprintf("insufficient content: received %d bytes, minimum %d", len(body), cfg.MinContentLength)
	}
	if cfg.MinTextLength > 0 {
		n := utf8.RuneCountInString(visibleText(body))
		if n < cfg.MinTextLength {
			return fmt.Sprintf("insufficient text content: %d visible characters, minimum %d", n, cfg.MinTextLength)
		}
	}
	return ""
}

// visibleText strips markup, scripts and styles from an HTML document and
// collapses runs of whitespace. Inline elements join their text directly;
// block elements separate it. Non-HTML bodies come back as their own text.
func visibleText(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	var (
		sb   strings.Builder
		skip int
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; keep what was collected.
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if hiddenTags[string(name)] {
				if tt == html.StartTagToken {
					skip++
				}
			} else if blockTags[string(name)] {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if hiddenTags[string(name)] && skip > 0 {
				skip--
			} else if blockTags[string(name)] {
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

var hiddenTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "head": true, "header": true, "hr": true, "html": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "title": true,
	"tr": true, "ul": true,
}
