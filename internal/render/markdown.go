// Package render turns user-supplied markdown into HTML that is safe to hand
// to vendors that display rich text.
package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
	textStripper  *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
	textStripper = bluemonday.StrictPolicy()
}

// Markdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func Markdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// Sanitize strips anything from caller-supplied HTML that is not safe for
// user-generated content.
func Sanitize(src string) string {
	return htmlSanitizer.Sanitize(src)
}

// PlainText removes all markup from HTML, producing the text alternative
// sent alongside HTML email bodies.
func PlainText(src string) string {
	stripped := textStripper.Sanitize(src)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
