package pdfocr

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// OCG name patterns. Literal names may contain escaped parentheses, which
// our own "OCR Text (Page N)" layers always do.
var (
	ocgLiteralPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/Type\s*/OCG\s*/Name\s*\(((?:\\.|[^\\)])*)\)`),
		regexp.MustCompile(`/Name\s*\(((?:\\.|[^\\)])*)\)\s*/Type\s*/OCG`),
		regexp.MustCompile(`/OCG\s*<<[^>]*?/Name\s*\(((?:\\.|[^\\)])*)\)`),
	}
	ocgHexPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/Type\s*/OCG\s*/Name\s*<([0-9A-Fa-f\s]*)>`),
		regexp.MustCompile(`/Name\s*<([0-9A-Fa-f\s]*)>\s*/Type\s*/OCG`),
	}
)

// detectPDFLayers attempts to find layer names in the raw PDF data.
// Names stored inside compressed object streams are not visible to it.
func detectPDFLayers(pdfData []byte) ([]string, error) {
	if len(pdfData) == 0 {
		return nil, fmt.Errorf("empty PDF data")
	}

	content := string(pdfData)

	var layers []string
	for _, regex := range ocgLiteralPatterns {
		for _, match := range regex.FindAllStringSubmatch(content, -1) {
			if len(match) >= 2 {
				layers = append(layers, decodePDFText(unescapePDFString(match[1])))
			}
		}
	}
	for _, regex := range ocgHexPatterns {
		for _, match := range regex.FindAllStringSubmatch(content, -1) {
			if len(match) < 2 {
				continue
			}
			raw, err := hex.DecodeString(strings.Join(strings.Fields(match[1]), ""))
			if err == nil {
				layers = append(layers, decodePDFText(string(raw)))
			}
		}
	}

	// Deduplicate
	unique := make([]string, 0, len(layers))
	seen := make(map[string]bool)
	for _, l := range layers {
		if !seen[l] {
			seen[l] = true
			unique = append(unique, l)
		}
	}
	return unique, nil
}

// LayerCheckResult contains the results of checking for OCR layers
type LayerCheckResult struct {
	Layers       []string // All detected layers
	HasOCRLayer  bool     // True if the specified OCR layer exists
	OCRLayerName string   // Name of the detected OCR layer (if any)
	Warnings     []string // Any warnings about potential OCR layers
}

// CheckExistingOCRLayers checks for OCR layers left by a previous run.
func CheckExistingOCRLayers(pdfData []byte, ocrLayerName string) (LayerCheckResult, error) {
	result := LayerCheckResult{}

	layers, err := detectPDFLayers(pdfData)
	if err != nil {
		return result, fmt.Errorf("cannot analyze layers: %w", err)
	}
	result.Layers = layers

	pageLayerPattern := regexp.MustCompile(fmt.Sprintf(`^%s\s*\(Page\s*\d+`, regexp.QuoteMeta(ocrLayerName)))

	for _, layer := range layers {
		if layer == ocrLayerName || pageLayerPattern.MatchString(layer) {
			result.HasOCRLayer = true
			result.OCRLayerName = layer
			break
		}

		if strings.Contains(strings.ToLower(layer), "ocr") {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Existing layer detected that might contain OCR: %s", layer))
		}
	}

	return result, nil
}
