package pdfocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/gen2brain/go-fitz"
)

// Page kinds for writeFixturePDF.
const (
	blankPage = ""
	inkPage   = "#ink"    // a large black rectangle, no text
	whitePage = "#white:" // prefix: text drawn in white
)

// writeFixturePDF writes a Letter-sized PDF with one page per entry: blank,
// ink only, white text, or black Helvetica text.
func writeFixturePDF(t *testing.T, name string, pages ...string) string {
	t.Helper()

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "", 14)
	for _, page := range pages {
		pdf.AddPage()
		switch {
		case page == blankPage:
		case page == inkPage:
			pdf.SetFillColor(0, 0, 0)
			pdf.Rect(100, 100, 300, 200, "F")
		case strings.HasPrefix(page, whitePage):
			pdf.SetTextColor(255, 255, 255)
			pdf.Text(72, 72, strings.TrimPrefix(page, whitePage))
			pdf.SetTextColor(0, 0, 0)
		default:
			for i, line := range strings.Split(page, "\n") {
				pdf.Text(72, 72+float64(i)*20, line)
			}
		}
	}

	path := filepath.Join(t.TempDir(), name)
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// writeScanPDF writes an image-only PDF with n pages, like a scanner would.
func writeScanPDF(t *testing.T, n int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 200, 260))
	for y := 0; y < 260; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}
	for y := 40; y < 60; y++ {
		for x := 20; x < 180; x++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetAutoPageBreak(false, 0)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("scan", opts, bytes.NewReader(buf.Bytes()))
	for i := 0; i < n; i++ {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: 400, Ht: 520})
		pdf.ImageOptions("scan", 0, 0, 400, 520, false, opts, 0, "")
	}

	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("write scan fixture: %v", err)
	}
	return path
}

// extractTexts returns the MuPDF text of every page.
func extractTexts(t *testing.T, path string) []string {
	t.Helper()

	doc, err := fitz.New(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer doc.Close()

	texts := make([]string, doc.NumPage())
	for i := range texts {
		texts[i], err = doc.Text(i)
		if err != nil {
			t.Fatalf("text of page %d: %v", i, err)
		}
	}
	return texts
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
