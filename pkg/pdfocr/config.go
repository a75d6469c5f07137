package pdfocr

import (
	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/goregular"
)

// OverlayConfig holds options for writing recognized text onto a PDF.
type OverlayConfig struct {
	LayerName string // Base name of OCR layer (page number will be appended)
	Marker    string // Provenance token written on the first page; empty disables it
	Debug     bool   // Draw the text visibly in red instead of invisibly
	Optimize  bool   // Compact the written file with pdfcpu
	Font      FontConfig
	Logger    zerolog.Logger
}

// DefaultOverlayConfig returns a config with sensible defaults
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		LayerName: "OCR Text", // Will be formatted as "OCR Text (Page X)" in the final PDF
		Optimize:  true,
		Font:      DefaultFont,
		Logger:    zerolog.Nop(),
	}
}

// FontConfig contains font settings for OCR text rendering
type FontConfig struct {
	Name        string  // Font family name
	Style       string  // Font style ("", "B", "I", "BI")
	Size        float64 // Largest font size used for a line
	AscentRatio float64 // Baseline offset as a fraction of the font size
	TTF         []byte  // TrueType data; nil selects a core font with ISO-8859-1 text
}

// UTF8 reports whether the font is embedded and accepts any UTF-8 text.
func (f FontConfig) UTF8() bool {
	return len(f.TTF) > 0
}

// DefaultFont embeds Go Regular so recognized text of any script survives
// extraction.
var DefaultFont = FontConfig{
	Name:        "GoRegular",
	Size:        10,
	AscentRatio: 0.9,
	TTF:         goregular.TTF,
}

// HelveticaFont is the core font used by older releases; text outside
// ISO-8859-1 is replaced.
var HelveticaFont = FontConfig{
	Name:        "Helvetica",
	Size:        10,
	AscentRatio: 0.718,
}

// PruneOptions controls the empty-page heuristic.
type PruneOptions struct {
	DPI          float64 // Render resolution for the visual check
	WhiteLevel   uint8   // Gray samples below this value count as ink
	Threshold    int     // A page with fewer ink samples is visually empty
	MinTextChars int     // A page with fewer characters of text is textually empty
	Marker       string  // Provenance token ignored when reading a page's own text
	Logger       zerolog.Logger
}

// DefaultPruneOptions returns the heuristic used by the hook.
func DefaultPruneOptions() PruneOptions {
	return PruneOptions{
		DPI:          50,
		WhiteLevel:   250,
		Threshold:    10,
		MinTextChars: 5,
		Logger:       zerolog.Nop(),
	}
}

func (o PruneOptions) withDefaults() PruneOptions {
	d := DefaultPruneOptions()
	if o.DPI <= 0 {
		o.DPI = d.DPI
	}
	if o.WhiteLevel == 0 {
		o.WhiteLevel = d.WhiteLevel
	}
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.MinTextChars <= 0 {
		o.MinTextChars = d.MinTextChars
	}
	return o
}
