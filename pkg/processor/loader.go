package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/docuchat/internal/models"
)

// Selectors tried in order when looking for the main content of a page.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".documentation",
	"#documentation",
}

// Load turns a raw document into source texts. A PDF yields one page per
// PDF page, any other format yields a single page.
func Load(ctx context.Context, doc models.Document) ([]models.Page, error) {
	format := doc.Format
	if format == "" {
		format = models.FormatFromFilename(doc.Filename)
	}

	var (
		loaded []schema.Document
		err    error
	)

	switch format {
	case models.FormatPDF:
		loaded, err = documentloaders.NewPDF(bytes.NewReader(doc.Data), int64(len(doc.Data))).Load(ctx)
	case models.FormatText:
		loaded, err = documentloaders.NewText(bytes.NewReader(doc.Data)).Load(ctx)
	case models.FormatHTML:
		var text string
		text, _, err = ExtractHTML(bytes.NewReader(doc.Data))
		loaded = []schema.Document{{PageContent: text}}
	default:
		return nil, fmt.Errorf("unsupported document format %q for %s", format, doc.Filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", doc.Filename, err)
	}

	pages := make([]models.Page, 0, len(loaded))
	for i, d := range loaded {
		number := i + 1
		if n, ok := d.Metadata["page"].(int); ok {
			number = n
		}
		pages = append(pages, models.Page{
			DocumentID: doc.ID,
			Number:     number,
			Text:       sanitizeUTF8(d.PageContent),
		})
	}

	return pages, nil
}

// ExtractHTML returns the main text content and the title of an HTML page.
func ExtractHTML(r io.Reader) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	doc.Find("script, style, noscript").Remove()

	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.First().Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return collapseWhitespace(content), title, nil
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
