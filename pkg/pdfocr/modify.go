package pdfocr

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

// ApplyText imports every page of the PDF at inputPath unchanged and writes
// texts[i] onto page i as an invisible, extractable text layer. Pages without
// an entry in texts are copied without a layer. The result is written to
// outputPath, which may be inputPath itself.
func ApplyText(inputPath, outputPath string, texts []string, cfg OverlayConfig) error {
	const op = "pdfocr.ApplyText"

	if cfg.LayerName == "" {
		cfg.LayerName = DefaultOverlayConfig().LayerName
	}
	if cfg.Font.Name == "" {
		cfg.Font = DefaultFont
	}

	inputPDFData, err := os.ReadFile(inputPath)
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "read "+inputPath)
	}
	if len(inputPDFData) == 0 {
		return hookerr.New(op, hookerr.ErrInput, inputPath+" is empty")
	}

	if existing, err := CheckExistingOCRLayers(inputPDFData, cfg.LayerName); err == nil && existing.HasOCRLayer {
		cfg.Logger.Warn().
			Str("layer", existing.OCRLayerName).
			Msg("File already has an OCR layer; adding another one")
	}

	out, stats, err := modifyExistingPDF(inputPDFData, texts, cfg)
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrOverlay, err, inputPath)
	}

	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "write "+outputPath)
	}

	if stats.encodingFailures > 0 {
		cfg.Logger.Warn().
			Int("lines", stats.lines).
			Int("encoding_failures", stats.encodingFailures).
			Str("font", cfg.Font.Name).
			Msg("Replaced characters the font cannot encode")
	}

	if cfg.Optimize {
		if err := optimizeFile(outputPath); err != nil {
			cfg.Logger.Warn().Err(err).Str("file", outputPath).Msg("Optimizing overlay output failed; keeping unoptimized file")
		}
	}

	cfg.Logger.Debug().
		Int("pages", stats.pages).
		Int("layers", stats.layers).
		Int("lines", stats.lines).
		Bool("marker", cfg.Marker != "").
		Msg("Text layer written")
	return nil
}

type overlayStats struct {
	pages            int
	layers           int
	lines            int
	encodingFailures int
}

// modifyExistingPDF imports pages from an existing PDF and overlays the text
// layers. gofpdi panics on PDFs it cannot parse; that is reported as an error.
func modifyExistingPDF(inputPDFData []byte, texts []string, cfg OverlayConfig) (result []byte, stats overlayStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("import pages: %v", r)
		}
	}()

	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetCompression(true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if cfg.Font.UTF8() {
		pdf.AddUTF8FontFromBytes(cfg.Font.Name, cfg.Font.Style, cfg.Font.TTF)
	}
	enc := newTextEncoder(cfg.Font)

	importer := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(inputPDFData))

	tpl := importer.ImportPageFromStream(pdf, &rs, 1, "/MediaBox")
	pageSizes := importer.GetPageSizes()
	nrPages := len(pageSizes)
	if nrPages == 0 {
		return nil, stats, fmt.Errorf("document has no pages")
	}

	for i := 1; i <= nrPages; i++ {
		w := pageSizes[i]["/MediaBox"]["w"]
		h := pageSizes[i]["/MediaBox"]["h"]
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		if i > 1 {
			tpl = importer.ImportPageFromStream(pdf, &rs, i, "/MediaBox")
		}
		importer.UseImportedTemplate(pdf, tpl, 0, 0, w, h)

		if idx := i - 1; idx < len(texts) && strings.TrimSpace(texts[idx]) != "" {
			lines := drawTextLayer(pdf, texts[idx], i, w, h, cfg, enc)
			stats.lines += lines
			stats.layers++
		}
		if i == 1 && cfg.Marker != "" {
			drawMarker(pdf, cfg.Marker, cfg.Font, enc)
		}
	}
	stats.pages = nrPages
	stats.encodingFailures = enc.failures

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}

// optimizeFile compacts the PDF at path in place: unused objects are
// dropped, duplicate resources merged and streams compressed. Object and
// xref streams stay off so layer names remain visible to detectPDFLayers.
func optimizeFile(path string) error {
	conf := pdfcpuConfig()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return api.OptimizeFile(path, path, conf)
}
