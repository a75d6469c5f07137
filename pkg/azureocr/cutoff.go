package azureocr

import "unicode/utf8"

// ApplyCutoff keeps pages in order until cutoff characters have been
// accumulated. The page that would cross the cutoff is truncated to the
// remaining budget and is the last page kept; once the running total equals
// the cutoff no further page is kept. A cutoff of 0 keeps everything.
// Characters are Unicode code points. The second return value reports
// whether anything was dropped or truncated.
func ApplyCutoff(pages []string, cutoff int) ([]string, bool) {
	if cutoff <= 0 {
		return pages, false
	}

	kept := make([]string, 0, len(pages))
	total := 0
	for i, text := range pages {
		n := utf8.RuneCountInString(text)
		if total+n > cutoff {
			kept = append(kept, truncateRunes(text, cutoff-total))
			return kept, true
		}
		kept = append(kept, text)
		total += n
		if total == cutoff && i < len(pages)-1 {
			return kept, true
		}
	}
	return kept, false
}

// truncateRunes returns the first n code points of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// countChars returns the total number of code points across pages.
func countChars(pages []string) int {
	total := 0
	for _, p := range pages {
		total += utf8.RuneCountInString(p)
	}
	return total
}
