package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Category string `json:"category,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text     string
	Category string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is what we index for a knowledge-base document. Content holds the
// text extracted from the uploaded file, when there is any.
type Record struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	FileName    string `json:"fileName"`
	FileURL     string `json:"fileUrl"`
	Content     string `json:"content,omitempty"`
}

// Loader returns every searchable record; it backs the linear fallback and
// reindexing.
type Loader func(ctx context.Context) []Record
