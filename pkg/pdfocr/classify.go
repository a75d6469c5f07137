package pdfocr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

// Classification is the verdict of the input classifier.
type Classification int

const (
	// NotAPDF marks inputs without a .pdf extension; they are treated as images.
	NotAPDF Classification = iota
	// NeedsOCR marks PDFs without any extractable text.
	NeedsOCR
	// AlreadySearchable marks PDFs with extractable text on at least one page.
	AlreadySearchable
)

func (c Classification) String() string {
	switch c {
	case NotAPDF:
		return "not_a_pdf"
	case NeedsOCR:
		return "needs_ocr"
	case AlreadySearchable:
		return "already_searchable"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// ClassifyResult carries the verdict and what was learned on the way.
type ClassifyResult struct {
	Classification Classification
	Pages          int    // page count; 0 for images
	TextPage       int    // 0-based index of the first page with text, -1 if none
	HasOCRLayer    bool   // an "OCR Text (Page N)" layer from a previous run exists
	HasMarker      bool   // the provenance marker was found in the first page's text
	Reader         string // text probe that answered: "pdf" or "mupdf"
}

// ClassifyOptions names what provenance to look for.
type ClassifyOptions struct {
	LayerName string
	Marker    string
}

// Classify decides how the file at path must be processed.
func Classify(path string) (Classification, error) {
	result, err := Inspect(path, ClassifyOptions{LayerName: DefaultOverlayConfig().LayerName})
	if err != nil {
		return 0, err
	}
	return result.Classification, nil
}

// Inspect classifies the file at path and reports provenance left by earlier
// runs.
func Inspect(path string, opts ClassifyOptions) (ClassifyResult, error) {
	const op = "pdfocr.Classify"
	result := ClassifyResult{TextPage: -1}

	info, err := os.Stat(path)
	if err != nil {
		return result, hookerr.Wrap(op, hookerr.ErrInput, err, path)
	}
	if info.IsDir() {
		return result, hookerr.New(op, hookerr.ErrInput, path+" is a directory")
	}
	if info.Size() == 0 {
		return result, hookerr.New(op, hookerr.ErrInput, path+" is empty")
	}

	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		result.Classification = NotAPDF
		return result, nil
	}

	texts, reader, err := pageTextsOf(path)
	if err != nil {
		return result, hookerr.Wrap(op, hookerr.ErrInput, err, "open "+path)
	}
	result.Reader = reader
	result.Pages = len(texts)

	result.Classification = NeedsOCR
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			result.Classification = AlreadySearchable
			result.TextPage = i
			break
		}
	}

	if opts.Marker != "" && len(texts) > 0 {
		result.HasMarker = strings.Contains(texts[0], opts.Marker)
	}
	if opts.LayerName != "" {
		if data, err := os.ReadFile(path); err == nil {
			if layers, err := CheckExistingOCRLayers(data, opts.LayerName); err == nil {
				result.HasOCRLayer = layers.HasOCRLayer
			}
		}
	}

	return result, nil
}

// pageTextsOf extracts the text of every page, trying the pure-Go reader
// before MuPDF.
func pageTextsOf(path string) ([]string, string, error) {
	texts, err := plainTexts(path)
	if err == nil {
		return texts, "pdf", nil
	}
	texts, fitzErr := fitzTexts(path)
	if fitzErr != nil {
		return nil, "", fmt.Errorf("%v; mupdf: %w", err, fitzErr)
	}
	return texts, "mupdf", nil
}

// plainTexts reads page text with ledongthuc/pdf, which panics on some
// malformed files.
func plainTexts(path string) (texts []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("no pages")
	}
	texts = make([]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts[i-1] = text
	}
	return texts, nil
}

func fitzTexts(path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("no pages")
	}
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		texts[i] = text
	}
	return texts, nil
}
