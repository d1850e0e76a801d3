package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// ExtractPages reads PDF bytes and returns per-page plain text. Pages with no
// extractable content are skipped.
func ExtractPages(data []byte) ([]Page, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	pages := make([]Page, 0, total)
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		pages = append(pages, Page{Number: n, Text: content})
	}
	return pages, nil
}

// ExtractText joins all pages into one plain-text document.
func ExtractText(data []byte) (string, error) {
	pages, err := ExtractPages(data)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, p := range pages {
		builder.WriteString(p.Text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
