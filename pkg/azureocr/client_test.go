package azureocr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gardar/ocrhook/pkg/hookerr"
)

const (
	testKey       = "test-key"
	analyzePath   = "/formrecognizer/documentModels/prebuilt-read:analyze"
	operationPath = "/formrecognizer/documentModels/prebuilt-read/analyzeResults/op-1"

	pdfAnalyzePath   = "/documentintelligence/documentModels/prebuilt-read:analyze"
	pdfOperationPath = "/documentintelligence/documentModels/prebuilt-read/analyzeResults/op-1"
)

const succeededBody = `{
  "status": "succeeded",
  "analyzeResult": {
    "apiVersion": "2023-07-31",
    "modelId": "prebuilt-read",
    "pages": [
      {"pageNumber": 2, "lines": [{"content": "Second page"}]},
      {"pageNumber": 1, "lines": [{"content": "Hello"}, {"content": "World"}]}
    ]
  }
}`

// writeTestPDF writes placeholder bytes; the client never parses the PDF.
func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n%fake\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:     endpoint,
		Key:          testKey,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      200 * time.Millisecond,
	}
}

// asyncServer accepts the submission and answers polls from statuses in
// order, repeating the last one.
func asyncServer(t *testing.T, statuses ...string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != testKey {
			t.Errorf("missing subscription key on %s %s", r.Method, r.URL.Path)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == analyzePath:
			w.Header().Set("Operation-Location", srv.URL+operationPath+"?api-version=2023-07-31")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == operationPath:
			n := int(atomic.AddInt32(&polls, 1)) - 1
			if n >= len(statuses) {
				n = len(statuses) - 1
			}
			io.WriteString(w, statuses[n])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestNewMissingCredentials(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no key", Config{Endpoint: srv.URL}},
		{"no endpoint", Config{Key: testKey}},
		{"blank", Config{Endpoint: "  ", Key: " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, hookerr.ErrConfiguration) {
				t.Fatalf("New = %v, want ErrConfiguration", err)
			}
		})
	}
	if hits != 0 {
		t.Errorf("server received %d requests, want 0", hits)
	}
}

func TestRecognizeSynchronous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != analyzePath {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != DefaultAPIVersion {
			t.Errorf("api-version = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/pdf" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.HasPrefix(string(body), "%PDF") {
			t.Errorf("body was not the PDF bytes: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, succeededBody)
	}))
	defer srv.Close()

	client, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.Recognize(context.Background(), writeTestPDF(t), 0)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	want := []string{"Hello\nWorld", "Second page"}
	if !reflect.DeepEqual(result.Pages, want) {
		t.Errorf("Pages = %q, want %q", result.Pages, want)
	}
	if result.Chars != 22 {
		t.Errorf("Chars = %d, want 22", result.Chars)
	}
	if result.CutoffApplied {
		t.Error("CutoffApplied = true with no cutoff")
	}
}

func TestRecognizeAsynchronous(t *testing.T) {
	srv, polls := asyncServer(t,
		`{"status": "notStarted"}`,
		`{"status": "running"}`,
		succeededBody,
	)

	client, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.Recognize(context.Background(), writeTestPDF(t), 0)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(result.Pages) != 2 || result.Pages[0] != "Hello\nWorld" {
		t.Errorf("Pages = %q", result.Pages)
	}
	if got := atomic.LoadInt32(polls); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}
}

func TestRecognizeAsynchronousCutoff(t *testing.T) {
	srv, _ := asyncServer(t, succeededBody)

	client, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.Recognize(context.Background(), writeTestPDF(t), 8)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if want := []string{"Hello\nWo"}; !reflect.DeepEqual(result.Pages, want) {
		t.Errorf("Pages = %q, want %q", result.Pages, want)
	}
	if !result.CutoffApplied || result.Chars != 8 {
		t.Errorf("CutoffApplied = %v, Chars = %d", result.CutoffApplied, result.Chars)
	}
}

func TestRecognizeAsynchronousFailed(t *testing.T) {
	srv, _ := asyncServer(t,
		`{"status": "running"}`,
		`{"status": "failed", "error": {"code": "InvalidContent", "message": "corrupt document"}}`,
	)

	client, err := New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Recognize(context.Background(), writeTestPDF(t), 0)
	if !errors.Is(err, hookerr.ErrOCRProcessing) {
		t.Fatalf("Recognize = %v, want ErrOCRProcessing", err)
	}
	if !strings.Contains(err.Error(), "corrupt document") {
		t.Errorf("error %q does not carry the provider message", err)
	}
}

func TestRecognizeAsynchronousTimeout(t *testing.T) {
	srv, polls := asyncServer(t, `{"status": "running"}`)

	cfg := testConfig(srv.URL)
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxWait = 40 * time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Recognize(context.Background(), writeTestPDF(t), 0)
	if !errors.Is(err, hookerr.ErrOCRTimeout) {
		t.Fatalf("Recognize = %v, want ErrOCRTimeout", err)
	}
	// Bounded by MaxWait / PollInterval plus the final poll.
	if got := atomic.LoadInt32(polls); got < 1 || got > 10 {
		t.Errorf("polls = %d, want between 1 and 10", got)
	}
}

func TestRecognizeContextCanceled(t *testing.T) {
	srv, _ := asyncServer(t, `{"status": "running"}`)

	cfg := testConfig(srv.URL)
	cfg.MaxWait = time.Minute
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = client.Recognize(ctx, writeTestPDF(t), 0)
	if !errors.Is(err, hookerr.ErrOCRRequest) {
		t.Fatalf("Recognize = %v, want ErrOCRRequest", err)
	}
}

func TestRecognizeRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		contains string
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"error":{"code":"401","message":"Access denied"}}`)
			},
			contains: "status 401",
		},
		{
			name: "accepted without location",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			contains: "Operation-Location",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
			},
			contains: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := New(testConfig(srv.URL))
			if err != nil {
				t.Fatal(err)
			}
			_, err = client.Recognize(context.Background(), writeTestPDF(t), 0)
			if !errors.Is(err, hookerr.ErrOCRRequest) {
				t.Fatalf("Recognize = %v, want ErrOCRRequest", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestRecognizePDFModeSynchronous(t *testing.T) {
	pdf := []byte("%PDF-1.7\nsearchable\n%%EOF\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pdfAnalyzePath {
			t.Errorf("path = %q, want %q", r.URL.Path, pdfAnalyzePath)
		}
		if got, want := r.URL.RawQuery, "api-version=2024-11-30&output=pdf"; got != want {
			t.Errorf("query = %q, want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Mode = ModePDF
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.Recognize(context.Background(), writeTestPDF(t), 0)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if string(result.SearchablePDF) != string(pdf) {
		t.Errorf("SearchablePDF = %q", result.SearchablePDF)
	}
	if result.Pages != nil {
		t.Errorf("Pages = %q, want nil", result.Pages)
	}
}

func TestRecognizePDFModeAsynchronous(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		switch r.URL.Path {
		case pdfAnalyzePath:
			w.Header().Set("Operation-Location", srv.URL+pdfOperationPath+"?api-version=2024-11-30")
			w.WriteHeader(http.StatusAccepted)
		case pdfOperationPath:
			io.WriteString(w, succeededBody)
		case pdfOperationPath + "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			io.WriteString(w, "%PDF-1.7 rendered")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Mode = ModePDF
	client, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	result, err := client.Recognize(context.Background(), writeTestPDF(t), 0)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if string(result.SearchablePDF) != "%PDF-1.7 rendered" {
		t.Errorf("SearchablePDF = %q", result.SearchablePDF)
	}
	if len(result.Pages) != 2 {
		t.Errorf("Pages = %q, want the analyze text too", result.Pages)
	}

	want := []string{
		"POST " + pdfAnalyzePath + "?api-version=2024-11-30&output=pdf",
		"GET " + pdfOperationPath + "?api-version=2024-11-30",
		"GET " + pdfOperationPath + "/pdf?api-version=2024-11-30",
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(requests, want) {
		t.Errorf("requests = %q, want %q", requests, want)
	}
}

func TestAnalyzeURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "text mode",
			cfg:  Config{Endpoint: "https://x.example/", Key: testKey},
			want: "https://x.example/formrecognizer/documentModels/prebuilt-read:analyze?api-version=2023-07-31",
		},
		{
			name: "pdf mode",
			cfg:  Config{Endpoint: "https://x.example", Key: testKey, Mode: ModePDF},
			want: "https://x.example/documentintelligence/documentModels/prebuilt-read:analyze?api-version=2024-11-30&output=pdf",
		},
		{
			name: "explicit version and hints",
			cfg:  Config{Endpoint: "https://x.example", Key: testKey, APIVersion: "2022-08-31", Locale: "de", Pages: "1-3"},
			want: "https://x.example/formrecognizer/documentModels/prebuilt-read:analyze?api-version=2022-08-31&locale=de&pages=1-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			got, err := client.analyzeURL()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("analyzeURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecognizeMissingFile(t *testing.T) {
	client, err := New(testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), 0)
	if !errors.Is(err, hookerr.ErrIO) {
		t.Fatalf("Recognize = %v, want ErrIO", err)
	}
}

func TestPageTextsFillsGaps(t *testing.T) {
	result := &analyzeResult{Pages: []analyzedPage{
		{PageNumber: 3, Lines: []analyzedLine{{Content: "three"}}},
		{PageNumber: 1, Lines: []analyzedLine{{Content: "one"}, {Content: "uno"}}},
	}}
	want := []string{"one\nuno", "", "three"}
	if got := pageTexts(result); !reflect.DeepEqual(got, want) {
		t.Errorf("pageTexts = %q, want %q", got, want)
	}
	if got := pageTexts(nil); got != nil {
		t.Errorf("pageTexts(nil) = %q", got)
	}
}

func TestPageTextsBoundsPageNumbers(t *testing.T) {
	result := &analyzeResult{Pages: []analyzedPage{
		{PageNumber: 1_000_000_000, Lines: []analyzedLine{{Content: "far"}}},
		{PageNumber: 1, Lines: []analyzedLine{{Content: "one"}}},
	}}
	want := []string{"one", "far"}
	if got := pageTexts(result); !reflect.DeepEqual(got, want) {
		t.Errorf("pageTexts = %q, want %q", got, want)
	}
}

func TestContentURL(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{
			"https://x.example/documentintelligence/documentModels/prebuilt-read/analyzeResults/abc?api-version=2024-11-30",
			"https://x.example/documentintelligence/documentModels/prebuilt-read/analyzeResults/abc/pdf?api-version=2024-11-30",
		},
		{
			"https://x.example/documentintelligence/documentModels/prebuilt-read/analyzeResults/abc",
			"https://x.example/documentintelligence/documentModels/prebuilt-read/analyzeResults/abc/pdf?api-version=2024-11-30",
		},
	}
	for _, tt := range tests {
		got, err := contentURL(tt.location, DefaultPDFAPIVersion)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("contentURL(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}
