// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned for binary content with no known extractor.
var ErrUnsupported = errors.New("unsupported document type")

// minReadable is the shortest readability extraction accepted before
// falling back to the full page text.
const minReadable = 100

var spaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

// Upload describes one uploaded document.
type Upload struct {
	FileType      string `json:"filetype"`
	FileName      string `json:"filename"`
	FileExtension string `json:"file_extension"`
	FilePath      string `json:"filepath"`
}

// Ext returns the lower-case extension without the dot, preferring the
// declared one.
func (u Upload) Ext() string {
	if ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(u.FileExtension)), "."); ext != "" {
		return ext
	}
	name := u.FileName
	if name == "" {
		name = u.FilePath
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// IsLinkedIn reports whether the upload is a founder LinkedIn profile.
func (u Upload) IsLinkedIn() bool {
	t := strings.ToLower(strings.ReplaceAll(u.FileType, " ", ""))
	return strings.Contains(t, "linkedin")
}

// Text extracts text from data according to ext (without the dot).
func Text(ext string, data []byte) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return PDF(data)
	case "html", "htm":
		return HTML(data, nil)
	default:
		if bytes.HasPrefix(data, []byte("%PDF-")) {
			return PDF(data)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: .%s", ErrUnsupported, ext)
		}
		return normalize(string(data)), nil
	}
}

// File extracts text from a local file, choosing the extractor by extension.
func File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return Text(filepath.Ext(path), data)
}

// PDF returns the plain text of a PDF document.
func PDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return normalize(sb.String()), nil
}

// HTML returns the readable text of an HTML page. The main article is used
// when readability finds one; otherwise the full body text.
func HTML(data []byte, pageURL *url.URL) (string, error) {
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "file", Path: "/upload.html"}
	}
	if article, err := readability.FromReader(bytes.NewReader(data), pageURL); err == nil {
		if text := normalize(article.TextContent); len(text) > minReadable {
			return text, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return normalize(doc.Find("body").Text()), nil
}

func normalize(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}
