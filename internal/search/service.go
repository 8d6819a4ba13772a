// Package search finds knowledge-base documents. Meilisearch is used when it
// is configured and healthy; otherwise records are scanned in memory.
package search

import (
	"context"
	"log/slog"
)

// Service is the facade that tries Meilisearch first and falls back to a
// linear scan.
type Service struct {
	meili  *Meili
	load   Loader
	logger *slog.Logger
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili, load Loader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, load: load, logger: logger}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to linear scan", "error", err)
	}

	var records []Record
	if s.load != nil {
		records = s.load(ctx)
	}
	results, total := Linear(records, q)
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "linear"}
}

// Index pushes a record to Meilisearch without waiting.
func (s *Service) Index(rec Record) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.Index(rec); err != nil {
			s.logger.Warn("index knowledge document", "id", rec.ID, "error", err)
		}
	}()
}

// Delete removes a record from Meilisearch without waiting.
func (s *Service) Delete(id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.Delete(id); err != nil {
			s.logger.Warn("delete knowledge document from index", "id", id, "error", err)
		}
	}()
}

// ReindexAll pushes every record from the loader to Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.meiliReady() || s.load == nil {
		return
	}
	records := s.load(ctx)
	if err := s.meili.Index(records...); err != nil {
		s.logger.Warn("reindex knowledge documents", "error", err)
		return
	}
	s.logger.Info("knowledge documents reindexed", "count", len(records))
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
