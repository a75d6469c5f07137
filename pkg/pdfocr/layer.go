package pdfocr

import (
	"fmt"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// lineSpacing is the line pitch as a multiple of the font size.
const lineSpacing = 1.2

// Text rendering modes (PDF 32000-1, 9.3.6).
const (
	renderFill      = 0
	renderInvisible = 3
)

// textEncoder prepares strings for the configured font. Core fonts take
// ISO-8859-1; characters outside it are replaced and counted.
type textEncoder struct {
	utf8     bool
	strict   *encoding.Encoder
	lenient  *encoding.Encoder
	failures int
}

func newTextEncoder(font FontConfig) *textEncoder {
	if font.UTF8() {
		return &textEncoder{utf8: true}
	}
	return &textEncoder{
		strict:  charmap.ISO8859_1.NewEncoder(),
		lenient: encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()),
	}
}

func (e *textEncoder) encode(s string) string {
	if e.utf8 {
		return s
	}
	latin1, err := e.strict.String(s)
	if err == nil {
		return latin1
	}
	e.failures++
	latin1, err = e.lenient.String(s)
	if err != nil {
		return ""
	}
	return latin1
}

// drawTextLayer writes the text of one page into its own optional content
// layer, one line per row, spanning the full page.
func drawTextLayer(
	pdf *fpdf.Fpdf,
	text string,
	pageNum int,
	pageW, pageH float64,
	cfg OverlayConfig,
	enc *textEncoder,
) int {
	lines := splitLines(text)
	if len(lines) == 0 {
		return 0
	}

	formattedLayerName := fmt.Sprintf("%s (Page %d)", cfg.LayerName, pageNum)
	layer := pdf.AddLayer(formattedLayerName, true)
	pdf.BeginLayer(layer)

	font := cfg.Font
	size := font.Size
	if fit := pageH / (float64(len(lines)) * lineSpacing); fit < size {
		size = fit
	}
	pdf.SetFont(font.Name, font.Style, size)

	if cfg.Debug {
		pdf.SetTextColor(255, 0, 0) // highlight text in red
	} else {
		pdf.SetTextRenderingMode(renderInvisible)
	}

	for i, line := range lines {
		top := float64(i) * size * lineSpacing
		drawLine(pdf, enc.encode(line), top, pageW, size, font)
	}

	if cfg.Debug {
		pdf.SetTextColor(0, 0, 0)
	} else {
		pdf.SetTextRenderingMode(renderFill)
	}
	pdf.EndLayer()

	return len(lines)
}

// drawLine renders one line with its top edge at top, shrinking the font so
// the line never runs past the right edge of the page.
func drawLine(pdf *fpdf.Fpdf, line string, top, pageW, size float64, font FontConfig) {
	if line == "" {
		return
	}

	lineSize := size
	if strWidth := pdf.GetStringWidth(line); strWidth > pageW {
		lineSize = size * pageW / strWidth
		pdf.SetFontSize(lineSize)
	}

	pdf.Text(0, top+lineSize*font.AscentRatio, line)
	pdf.SetFontSize(size)
}

// drawMarker writes the provenance token in white at 1pt in the top-left
// corner. It is extracted with the page text but not seen.
func drawMarker(pdf *fpdf.Fpdf, marker string, font FontConfig, enc *textEncoder) {
	pdf.SetFont(font.Name, font.Style, 1)
	pdf.SetTextRenderingMode(renderFill)
	pdf.SetTextColor(255, 255, 255)
	pdf.Text(1, 2, enc.encode(marker))
	pdf.SetTextColor(0, 0, 0)
}

// splitLines breaks page text into lines, dropping blank ones.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
