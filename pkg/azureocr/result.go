package azureocr

import (
	"sort"
	"strings"
)

// Operation status values reported by the service.
const (
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusRunning    = "running"
	statusNotStarted = "notStarted"
)

// analyzeOperation is the body of a poll response, and of a synchronous
// analyze response.
type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *serviceError  `json:"error"`
}

// analyzeResult is the part of the result the hook consumes. Line and word
// geometry is not decoded; the text layer spans the whole page.
type analyzeResult struct {
	Pages []analyzedPage `json:"pages"`
}

type analyzedPage struct {
	PageNumber int            `json:"pageNumber"`
	Lines      []analyzedLine `json:"lines"`
}

type analyzedLine struct {
	Content string `json:"content"`
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// String formats the service error for diagnostics.
func (e *serviceError) String() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// maxPages bounds the page numbers accepted from the service; the read
// model analyzes at most 2000 pages per request.
const maxPages = 2000

// pageTexts turns an analyze result into one string per page. Pages are
// placed by their 1-based page number so that a page missing from the result
// leaves an empty slot instead of shifting later pages. Page numbers out of
// range fall back to report order.
func pageTexts(result *analyzeResult) []string {
	if result == nil || len(result.Pages) == 0 {
		return nil
	}

	pages := make([]analyzedPage, len(result.Pages))
	copy(pages, result.Pages)
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})

	count := len(pages)
	for _, page := range pages {
		if page.PageNumber > count && page.PageNumber <= maxPages {
			count = page.PageNumber
		}
	}
	texts := make([]string, count)

	for i, page := range pages {
		idx := page.PageNumber - 1
		if idx < 0 || idx >= count {
			idx = i
		}
		lines := make([]string, 0, len(page.Lines))
		for _, line := range page.Lines {
			lines = append(lines, line.Content)
		}
		texts[idx] = strings.Join(lines, "\n")
	}
	return texts
}
