package search

import (
	"strings"
	"unicode/utf8"
)

const snippetRadius = 80

// Linear scans records in order and keeps those containing every query term
// in any text field, case-insensitively.
func Linear(records []Record, q Query) ([]Result, int) {
	terms := strings.Fields(strings.ToLower(q.Text))
	var matched []Result
	for _, rec := range records {
		if q.Category != "" && !strings.EqualFold(rec.Category, q.Category) {
			continue
		}
		haystack := strings.ToLower(strings.Join([]string{rec.Title, rec.Description, rec.Category, rec.FileName, rec.Content}, "\n"))
		if !containsAll(haystack, terms) {
			continue
		}
		matched = append(matched, Result{
			ID:       rec.ID,
			Title:    rec.Title,
			Snippet:  snippet(rec, terms),
			Category: rec.Category,
			FileURL:  rec.FileURL,
		})
	}

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return matched[start:end], total
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// snippet prefers the description and falls back to a window of the content
// around the first term.
func snippet(rec Record, terms []string) string {
	if rec.Content == "" || len(terms) == 0 {
		return rec.Description
	}
	lower := strings.ToLower(rec.Content)
	for _, term := range terms {
		idx := strings.Index(lower, term)
		if idx < 0 {
			continue
		}
		start := max(idx-snippetRadius, 0)
		end := min(idx+len(term)+snippetRadius, len(rec.Content))
		for start > 0 && !utf8.RuneStart(rec.Content[start]) {
			start--
		}
		for end < len(rec.Content) && !utf8.RuneStart(rec.Content[end]) {
			end++
		}
		out := strings.TrimSpace(rec.Content[start:end])
		if start > 0 {
			out = "…" + out
		}
		if end < len(rec.Content) {
			out += "…"
		}
		return out
	}
	return rec.Description
}
