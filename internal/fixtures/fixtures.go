// Package fixtures builds small in-memory JPEG and PDF files for tests.
package fixtures

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
)

// JPEG returns a w×h JPEG filled with c.
func JPEG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PDF returns a minimal PDF with one page per argument. Each line of a page argument is
// drawn on its own baseline in Helvetica, positioned absolutely with Tm.
func PDF(pages ...string) []byte {
	streams := make([]string, 0, len(pages))
	for _, text := range pages {
		streams = append(streams, contentStream(text))
	}
	return PDFContent(streams...)
}

// PDFContent returns a minimal PDF with one page per raw content stream. The font resource
// /F1 is Helvetica with its standard widths, so streams may position text with Td, TD, T*
// and kerned TJ arrays the way word processors do.
func PDFContent(streams ...string) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)

	numObjects := 3 + 2*len(streams)
	object := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, 0, len(streams))
	for i := range streams {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}

	object("<< /Type /Catalog /Pages 2 0 R >>")
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(streams)))
	object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding " +
		"/FirstChar 32 /LastChar 126 /Widths [" + helveticaWidths + "] >>")

	for i, content := range streams {
		object(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))

		object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", numObjects+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", numObjects+1, xref)

	return buf.Bytes()
}

// Helvetica advance widths for codes 32 through 126.
const helveticaWidths = "278 278 355 556 556 889 667 191 333 333 389 584 278 333 278 278 " +
	"556 556 556 556 556 556 556 556 556 556 278 278 584 584 584 556 " +
	"1015 667 667 722 722 667 611 778 722 278 500 667 556 833 722 778 " +
	"667 778 722 667 611 722 667 944 667 667 611 278 278 278 469 556 " +
	"333 556 556 500 556 556 278 556 556 222 222 500 222 833 556 556 " +
	"556 556 333 500 278 556 500 722 500 500 500 334 260 334 584"

func contentStream(text string) string {
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "BT /F1 12 Tf 1 0 0 1 72 %d Tm (%s) Tj ET\n", 720-20*i, escape(line))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
