package assistant

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML in model output is dropped by goldmark's default renderer,
// which leaves an "omitted" marker comment in its place.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown converts a model answer to HTML.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
