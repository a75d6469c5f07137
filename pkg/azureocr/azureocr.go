// Package azureocr is a client for the Azure AI Document Intelligence
// "read" model, used to recognize text in scanned PDFs.
//
// The service is reached over its REST contract: the PDF bytes are POSTed to
// the analyze endpoint, which either answers synchronously (200) or accepts
// the job (202) and hands back an Operation-Location to poll. Polling runs on
// a fixed interval up to a bounded wait; there is no backoff and no retry of
// the submission.
//
// Recognized text is returned as one string per page, the page's line
// fragments joined by newlines in the order the service reports them. An
// optional character cutoff bounds the total amount of text kept.
//
// Key Types:
//
// - Config: endpoint, key and protocol settings
// - Client: performs Recognize
// - Result: per-page text and, in PDF mode, the service's searchable PDF
package azureocr

import (
	"time"
)

// Defaults for the analyze request and the poll loop.
const (
	DefaultModel = "prebuilt-read"

	// DefaultAPIVersion is the Form Recognizer API used in ModeText.
	DefaultAPIVersion = "2023-07-31"

	// DefaultPDFAPIVersion is the Document Intelligence API used in ModePDF,
	// the first GA version that renders searchable PDFs.
	DefaultPDFAPIVersion = "2024-11-30"

	DefaultPollInterval = time.Second
	DefaultMaxWait      = 30 * time.Second
)

// Route prefixes of the two REST surfaces.
const (
	formRecognizerRoute       = "/formrecognizer"
	documentIntelligenceRoute = "/documentintelligence"
)

// Mode selects what the service is asked to return.
type Mode string

const (
	// ModeText requests the analyze result only; the text layer is written
	// locally.
	ModeText Mode = "text"

	// ModePDF additionally requests a ready-made searchable PDF from the
	// service. It talks to the Document Intelligence API: the analyze call
	// carries output=pdf and the rendered file is fetched from
	// .../analyzeResults/{id}/pdf once the operation has succeeded.
	ModePDF Mode = "pdf"
)

// Config holds the connection and protocol settings of a Client.
type Config struct {
	Endpoint     string        // e.g. https://<resource>.cognitiveservices.azure.com
	Key          string        // subscription key
	Mode         Mode          // ModeText or ModePDF
	Model        string        // model id, prebuilt-read by default
	APIVersion   string        // api-version query value; empty picks the mode's default
	Locale       string        // optional locale hint
	Pages        string        // optional page range, e.g. "1-3"
	PollInterval time.Duration // wait between polls of an accepted operation
	MaxWait      time.Duration // give up polling after this long
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeText
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
		if c.Mode == ModePDF {
			c.APIVersion = DefaultPDFAPIVersion
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	return c
}

// route returns the REST surface the mode talks to.
func (c Config) route() string {
	if c.Mode == ModePDF {
		return documentIntelligenceRoute
	}
	return formRecognizerRoute
}

// Result is the outcome of a recognition run.
type Result struct {
	// Pages holds the recognized text per page, indexed like the submitted
	// document's pages. With a cutoff it may be shorter than the document.
	Pages []string

	// SearchablePDF is the service-rendered searchable PDF in ModePDF, nil
	// otherwise.
	SearchablePDF []byte

	// CutoffApplied reports whether the character cutoff dropped or
	// truncated any text.
	CutoffApplied bool

	// Chars is the total number of characters across Pages.
	Chars int
}
