// Package pdfocr turns scanned documents into searchable PDFs once their text
// has been recognized.
//
// The package covers the local PDF work of the hook; recognition itself lives
// in the azureocr package. The resulting PDFs keep the original page imagery
// untouched and carry the recognized text in an invisible layer. This text is:
// - Fully searchable
// - Selectable with mouse drag operations
// - Grouped per page in optional content layers named "OCR Text (Page N)"
//
// Main Functions:
//
// - Classify: decides whether a file is an image, a searchable PDF or a PDF that needs OCR
// - ImageToPDF: wraps a raster image in a single-page PDF
// - ApplyText: overlays recognized page text onto an existing PDF
// - PruneEmptyPages: drops pages that carry neither text nor ink
package pdfocr

import (
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	pdfcpuConfig()
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, hookerr.Wrap("pdfocr.PageCount", hookerr.ErrInput, err, path)
	}
	return n, nil
}

var configDirOnce sync.Once

// pdfcpuConfig returns a fresh pdfcpu configuration. pdfcpu would otherwise
// install a config directory with user fonts below the home directory on
// first use.
func pdfcpuConfig() *model.Configuration {
	configDirOnce.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}
