package report

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderMarkdown converts Markdown to HTML. Raw HTML in the input is
// omitted by goldmark's default renderer.
func RenderMarkdown(s string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(buf.String())
}

// HTML renders the document body as HTML, using the stored TL;DR when
// the run produced one.
func HTML(doc *Document) template.HTML {
	tldr := doc.TLDR
	if tldr == "" {
		tldr = fallbackTLDR(doc, orderedCategories(doc))
	}
	return RenderMarkdown(Markdown(doc, tldr))
}
