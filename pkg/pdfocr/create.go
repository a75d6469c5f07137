package pdfocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"codeberg.org/go-pdf/fpdf"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

// imageDPI is the resolution assumed for raster inputs.
const imageDPI = 96

// ImageToPDF wraps the raster image at imagePath in a new single-page PDF
// written to pdfPath. The page is sized to the image at 96 DPI. Images are
// embedded as opaque RGB; three-channel JPEGs are embedded as they are.
func ImageToPDF(imagePath, pdfPath string) error {
	const op = "pdfocr.ImageToPDF"

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrInput, err, imagePath)
	}
	if len(data) == 0 {
		return hookerr.New(op, hookerr.ErrInput, imagePath+" is empty")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrConversion, err, "unsupported or corrupt image "+imagePath)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return hookerr.New(op, hookerr.ErrConversion, fmt.Sprintf("image has no pixels (%dx%d)", cfg.Width, cfg.Height))
	}

	imageType := "PNG"
	embedded := data
	if format == "jpeg" && cfg.ColorModel == color.YCbCrModel {
		imageType = "JPG"
	} else {
		embedded, err = flattenToPNG(data)
		if err != nil {
			return hookerr.Wrap(op, hookerr.ErrConversion, err, "convert "+format+" image")
		}
	}

	w := float64(cfg.Width) * 72 / imageDPI
	h := float64(cfg.Height) * 72 / imageDPI

	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})

	opts := fpdf.ImageOptions{ReadDpi: false, ImageType: imageType}
	pdf.RegisterImageOptionsReader("page", opts, bytes.NewReader(embedded))
	pdf.ImageOptions("page", 0, 0, w, h, false, opts, 0, "")

	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return hookerr.Wrap(op, hookerr.ErrConversion, err, "write "+pdfPath)
	}
	return nil
}

// flattenToPNG decodes any supported image and re-encodes it as an opaque
// RGB PNG, compositing transparency onto white.
func flattenToPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgb, rgb.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(rgb, rgb.Bounds(), img, bounds.Min, draw.Over)

	// An opaque RGBA is written as 8-bit truecolor without alpha.
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
