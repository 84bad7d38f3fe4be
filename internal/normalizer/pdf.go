package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNoText = errors.New("document contains no extractable text")

const (
	// glyphs whose baselines differ by less than this share a row, in units of font size
	rowTolerance = 0.5
	// a horizontal gap wider than this between two glyphs separates words, in units of font size
	wordGap = 0.2
)

// ExtractText runs the extraction pass: every page is laid out into rows (top to bottom,
// glyphs left to right) and the non-empty pages are joined with a newline in page order.
func ExtractText(data []byte) (text string, err error) {
	// the parser panics on some malformed objects
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		pageText := extractPage(reader.Page(i))
		if pageText == "" {
			continue
		}
		pages = append(pages, pageText)
	}

	if len(pages) == 0 {
		return "", ErrNoText
	}

	return strings.Join(pages, "\n"), nil
}

type row struct {
	y      float64
	glyphs []pdf.Text
}

// extractPage groups the positioned glyphs of a page into rows by baseline. Positions come
// from the full text state (Tm, Td, TD, T*, TJ adjustments), so lines placed with relative
// moves and kerned strings are laid out correctly.
func extractPage(page pdf.Page) string {
	if page.V.IsNull() || page.V.Key("Contents").IsNull() {
		return ""
	}

	var rows []*row
	for _, glyph := range page.Content().Text {
		if glyph.S == "" {
			continue
		}
		r := findRow(rows, glyph)
		if r == nil {
			r = &row{y: glyph.Y}
			rows = append(rows, r)
		}
		r.glyphs = append(r.glyphs, glyph)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].y > rows[j].y
	})

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		if line := r.text(); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n")
}

func findRow(rows []*row, glyph pdf.Text) *row {
	tolerance := rowTolerance * math.Max(glyph.FontSize, 1)
	for _, r := range rows {
		if math.Abs(r.y-glyph.Y) < tolerance {
			return r
		}
	}
	return nil
}

func (r *row) text() string {
	glyphs := r.glyphs

	// without widths every glyph of a string shares one X, so stream order is all there is
	if hasWidths(glyphs) {
		sort.SliceStable(glyphs, func(i, j int) bool {
			return glyphs[i].X < glyphs[j].X
		})
	}

	var b strings.Builder
	for i, glyph := range glyphs {
		if i > 0 {
			prev := glyphs[i-1]
			gap := glyph.X - (prev.X + prev.W)
			if gap > wordGap*math.Max(glyph.FontSize, 1) && !isSpace(prev.S) && !isSpace(glyph.S) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(glyph.S)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func hasWidths(glyphs []pdf.Text) bool {
	for _, g := range glyphs {
		if g.W <= 0 {
			return false
		}
	}
	return true
}

func isSpace(s string) bool {
	return strings.TrimSpace(s) == ""
}
