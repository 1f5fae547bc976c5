package connector

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// maxExtractBytes caps in-memory extraction to avoid OOM on huge files.
const maxExtractBytes = 200 << 20

var whitespaceRegex = regexp.MustCompile(`[ \t]+`)

// ExtractedText is the normalized output of a single file extraction.
type ExtractedText struct {
	Text  string
	Pages int
}

// ExtractFile extracts normalized text from a local file by extension.
// Returns an empty Text (not an error) when the file yields no text, so the
// caller can decide whether to fall back to OCR.
func ExtractFile(path string) (*ExtractedText, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() > maxExtractBytes {
		return nil, fmt.Errorf("file too large for in-memory extraction: %d bytes", stat.Size())
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".xlsx", ".xlsm":
		return extractXLSX(path)
	case ".html", ".htm":
		return extractHTMLFile(path)
	default:
		return extractPlain(path)
	}
}

// extractPDF extracts per-page plain text.
func extractPDF(path string) (*ExtractedText, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue // skip unreadable pages, keep the rest
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	return &ExtractedText{
		Text:  NormalizeText(textBuilder.String()),
		Pages: pages,
	}, nil
}

// extractXLSX flattens every sheet to tab-separated rows.
func extractXLSX(path string) (*ExtractedText, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	sheets := f.GetSheetList()

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		textBuilder.WriteString(sheet)
		textBuilder.WriteString("\n")
		for _, row := range rows {
			textBuilder.WriteString(strings.Join(row, "\t"))
			textBuilder.WriteString("\n")
		}
		textBuilder.WriteString("\n")
	}

	return &ExtractedText{
		Text:  NormalizeText(textBuilder.String()),
		Pages: len(sheets),
	}, nil
}

func extractHTMLFile(path string) (*ExtractedText, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML: %w", err)
	}
	text, err := ReadableText(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &ExtractedText{Text: text, Pages: 1}, nil
}

func extractPlain(path string) (*ExtractedText, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return &ExtractedText{Text: NormalizeText(string(content)), Pages: 1}, nil
}

// ReadableText strips scripts, styles and navigation from HTML and returns
// the readable body text.
func ReadableText(r *bytes.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t != "" {
			parts = append(parts, t)
		}
	})

	if len(parts) == 0 {
		// Fall back to whole-body text for pages without semantic markup
		return NormalizeText(doc.Find("body").Text()), nil
	}

	return NormalizeText(strings.Join(parts, "\n\n")), nil
}

// NormalizeText collapses runs of spaces and trims blank line noise while
// preserving paragraph breaks for the chunker.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
