package pdfocr

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/draw"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

// PruneResult reports what PruneEmptyPages did.
type PruneResult struct {
	Removed   int   // number of pages removed
	Remaining int   // pages left in the output
	Pages     []int // removed 0-based page indices, highest first
}

// PruneEmptyPages removes the pages of inputPath that are both textually and
// visually empty and writes the result to outputPath. Text for page i is the
// recognized texts[i] (empty when out of range) and the page's own
// extractable text without opts.Marker; both must be shorter than
// opts.MinTextChars. A page is
// visually empty when fewer than opts.Threshold gray samples of a render at
// opts.DPI are darker than opts.WhiteLevel.
//
// Pages are examined from last to first. When every page is empty the result
// has Remaining == 0 and no file is written, since a PDF needs at least one
// page.
func PruneEmptyPages(inputPath, outputPath string, texts []string, opts PruneOptions) (PruneResult, error) {
	const op = "pdfocr.PruneEmptyPages"
	opts = opts.withDefaults()
	var result PruneResult

	doc, err := fitz.New(inputPath)
	if err != nil {
		return result, hookerr.Wrap(op, hookerr.ErrIO, err, "open "+inputPath)
	}

	n := doc.NumPage()
	for i := n - 1; i >= 0; i-- {
		empty, reason := isEmptyPage(doc, i, texts, opts)
		opts.Logger.Trace().Int("page", i).Bool("empty", empty).Str("reason", reason).Msg("Page checked")
		if empty {
			result.Pages = append(result.Pages, i)
		}
	}
	doc.Close()

	result.Removed = len(result.Pages)
	result.Remaining = n - result.Removed

	switch {
	case result.Removed == 0:
		if inputPath != outputPath {
			if err := copyFile(inputPath, outputPath); err != nil {
				return result, hookerr.Wrap(op, hookerr.ErrIO, err, "write "+outputPath)
			}
		}
	case result.Remaining == 0:
		opts.Logger.Warn().Int("pages", n).Msg("Every page is empty; no pruned document written")
		return result, nil
	default:
		selected := make([]string, 0, len(result.Pages))
		for _, idx := range result.Pages {
			selected = append(selected, strconv.Itoa(idx+1))
		}
		if err := api.RemovePagesFile(inputPath, outputPath, selected, pdfcpuConfig()); err != nil {
			return result, hookerr.Wrap(op, hookerr.ErrIO, err, "remove pages")
		}
	}

	opts.Logger.Info().
		Int("removed", result.Removed).
		Int("remaining", result.Remaining).
		Ints("pages", result.Pages).
		Msgf("Removed %d empty pages", result.Removed)
	return result, nil
}

// isEmptyPage applies the emptiness heuristic to page i. Failures to read
// the page count as content, so such pages are kept.
func isEmptyPage(doc *fitz.Document, i int, texts []string, opts PruneOptions) (bool, string) {
	if i < len(texts) && textLength(texts[i]) >= opts.MinTextChars {
		return false, "recognized text"
	}

	text, err := doc.Text(i)
	if err != nil {
		return false, "text extraction failed: " + err.Error()
	}
	if opts.Marker != "" {
		text = strings.Replace(text, opts.Marker, "", 1)
	}
	if textLength(text) >= opts.MinTextChars {
		return false, "page text"
	}

	img, err := doc.ImageDPI(i, opts.DPI)
	if err != nil {
		return false, "render failed: " + err.Error()
	}
	ink := countInk(img, opts.WhiteLevel, opts.Threshold)
	if ink >= opts.Threshold {
		return false, fmt.Sprintf("%d+ dark samples", ink)
	}
	return true, fmt.Sprintf("%d dark samples", ink)
}

// countInk converts img to gray and counts samples darker than whiteLevel,
// stopping once limit is reached.
func countInk(img image.Image, whiteLevel uint8, limit int) int {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)

	count := 0
	for y := 0; y < bounds.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+bounds.Dx()]
		for _, v := range row {
			if v < whiteLevel {
				count++
				if count >= limit {
					return count
				}
			}
		}
	}
	return count
}
