package azureocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

// maxDiagnosticBody bounds how much of an error response body ends up in a
// diagnostic.
const maxDiagnosticBody = 2048

// Client submits documents to the analyze endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for progress and result lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client. It fails with hookerr.ErrConfiguration when the
// endpoint or key is missing, so no request is ever sent without credentials.
func New(cfg Config, opts ...Option) (*Client, error) {
	const op = "azureocr.New"

	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, hookerr.New(op, hookerr.ErrConfiguration, "OCR endpoint and key must be set")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrConfiguration, err, "invalid endpoint")
	}

	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Recognize submits the PDF at pdfPath and returns its recognized text,
// limited to cutoff characters in total (0 means unlimited).
func (c *Client) Recognize(ctx context.Context, pdfPath string, cutoff int) (*Result, error) {
	const op = "azureocr.Recognize"
	start := time.Now()

	pdfBytes, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrIO, err, "read "+pdfPath)
	}

	c.logger.Info().
		Str("file", pdfPath).
		Int("bytes", len(pdfBytes)).
		Str("mode", string(c.cfg.Mode)).
		Msg("Submitting document to OCR service")

	result, err := c.submit(ctx, pdfBytes)
	if err != nil {
		return nil, err
	}

	pages, applied := ApplyCutoff(result.Pages, cutoff)
	result.Pages = pages
	result.CutoffApplied = applied
	result.Chars = countChars(pages)

	if applied && result.SearchablePDF != nil {
		c.logger.Warn().
			Int("cutoff", cutoff).
			Msg("Character cutoff limits the recognized text only; the service PDF keeps its full text layer")
	}

	c.logger.Info().
		Int("pages", len(result.Pages)).
		Int("chars", result.Chars).
		Int("cutoff", cutoff).
		Bool("cutoff_applied", result.CutoffApplied).
		Bool("searchable_pdf", result.SearchablePDF != nil).
		Dur("duration", time.Since(start)).
		Msg("OCR finished")

	return result, nil
}

// analyzeURL builds the analyze endpoint for the configured model.
func (c *Client) analyzeURL() (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.Endpoint, "/"))
	if err != nil {
		return "", err
	}
	base.Path += c.cfg.route() + "/documentModels/" + url.PathEscape(c.cfg.Model) + ":analyze"

	q := base.Query()
	q.Set("api-version", c.cfg.APIVersion)
	if c.cfg.Mode == ModePDF {
		q.Set("output", "pdf")
	}
	if c.cfg.Locale != "" {
		q.Set("locale", c.cfg.Locale)
	}
	if c.cfg.Pages != "" {
		q.Set("pages", c.cfg.Pages)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// submit posts the document and resolves the synchronous or asynchronous
// answer into a Result.
func (c *Client) submit(ctx context.Context, pdfBytes []byte) (*Result, error) {
	const op = "azureocr.submit"

	endpoint, err := c.analyzeURL()
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrConfiguration, err, "build analyze URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "build request")
	}
	req.Header.Set("Content-Type", "application/pdf")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "POST analyze")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Debug().Msg("OCR service answered synchronously")
		return c.readSyncResult(resp)

	case http.StatusAccepted:
		location := resp.Header.Get("Operation-Location")
		if location == "" {
			return nil, hookerr.New(op, hookerr.ErrOCRRequest, "202 Accepted without Operation-Location header")
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug().Str("operation", location).Msg("OCR operation accepted, polling")
		return c.await(ctx, location)

	default:
		return nil, hookerr.New(op, hookerr.ErrOCRRequest, describeResponse(resp))
	}
}

// readSyncResult handles a 200 answer, which is either a searchable PDF or
// an analyze body.
func (c *Client) readSyncResult(resp *http.Response) (*Result, error) {
	const op = "azureocr.readSyncResult"

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "read response")
	}

	if isPDF(resp.Header.Get("Content-Type"), body) {
		return &Result{SearchablePDF: body}, nil
	}

	var operation analyzeOperation
	if err := json.Unmarshal(body, &operation); err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRProcessing, err, "decode analyze result")
	}
	if operation.Status == statusFailed {
		return nil, hookerr.New(op, hookerr.ErrOCRProcessing, operation.Error.String())
	}
	if operation.AnalyzeResult == nil {
		// Some deployments return the bare result object.
		var bare analyzeResult
		if err := json.Unmarshal(body, &bare); err == nil && len(bare.Pages) > 0 {
			operation.AnalyzeResult = &bare
		}
	}
	return &Result{Pages: pageTexts(operation.AnalyzeResult)}, nil
}

// await polls the operation until it succeeds, fails or MaxWait elapses.
func (c *Client) await(ctx context.Context, location string) (*Result, error) {
	const op = "azureocr.await"

	deadline := time.Now().Add(c.cfg.MaxWait)
	attempt := 0
	for {
		if err := sleepContext(ctx, c.cfg.PollInterval); err != nil {
			return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "polling interrupted")
		}
		attempt++

		operation, err := c.getOperation(ctx, location)
		if err != nil {
			return nil, err
		}

		switch operation.Status {
		case statusSucceeded:
			c.logger.Debug().Int("attempts", attempt).Msg("OCR operation succeeded")
			result := &Result{Pages: pageTexts(operation.AnalyzeResult)}
			if c.cfg.Mode == ModePDF {
				pdf, err := c.fetchContent(ctx, location)
				if err != nil {
					return nil, err
				}
				result.SearchablePDF = pdf
			}
			return result, nil

		case statusFailed:
			return nil, hookerr.New(op, hookerr.ErrOCRProcessing, operation.Error.String())

		case statusRunning, statusNotStarted:
			c.logger.Debug().Int("attempt", attempt).Str("status", operation.Status).Msg("OCR operation in progress")

		default:
			c.logger.Debug().Int("attempt", attempt).Str("status", operation.Status).Msg("Unknown OCR operation status")
		}

		if !time.Now().Before(deadline) {
			return nil, hookerr.New(op, hookerr.ErrOCRTimeout,
				fmt.Sprintf("operation not finished after %s (%d polls)", c.cfg.MaxWait, attempt))
		}
	}
}

// getOperation fetches and decodes one poll response.
func (c *Client) getOperation(ctx context.Context, location string) (*analyzeOperation, error) {
	const op = "azureocr.getOperation"

	resp, err := c.get(ctx, location)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "GET operation")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, hookerr.New(op, hookerr.ErrOCRRequest, describeResponse(resp))
	}

	var operation analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&operation); err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "decode operation status")
	}
	return &operation, nil
}

// fetchContent downloads the rendered searchable PDF of a finished
// operation from its content URL.
func (c *Client) fetchContent(ctx context.Context, location string) ([]byte, error) {
	const op = "azureocr.fetchContent"

	contentURL, err := contentURL(location, c.cfg.APIVersion)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "build content URL")
	}

	resp, err := c.get(ctx, contentURL)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "GET content")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, hookerr.New(op, hookerr.ErrOCRRequest, describeResponse(resp))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hookerr.Wrap(op, hookerr.ErrOCRRequest, err, "read content")
	}
	if !isPDF(resp.Header.Get("Content-Type"), body) {
		return nil, hookerr.New(op, hookerr.ErrOCRProcessing, "content URL did not return a PDF")
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	return c.httpClient.Do(req)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)
}

// contentURL derives the rendered-result URL from an operation location:
// .../analyzeResults/{id}?api-version=v becomes .../analyzeResults/{id}/pdf?api-version=v.
// apiVersion is added when the location carries none.
func contentURL(location, apiVersion string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/pdf"
	if q := u.Query(); q.Get("api-version") == "" && apiVersion != "" {
		q.Set("api-version", apiVersion)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// isPDF reports whether a response carries a PDF, by media type or magic.
func isPDF(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF"))
}

// describeResponse formats status and (bounded) body for a diagnostic.
func describeResponse(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
