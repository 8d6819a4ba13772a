package app

import (
	"context"
	"errors"
	"strings"

	"sitecms/api/internal/extract"
	"sitecms/api/internal/search"
	"sitecms/api/internal/store"
	"sitecms/api/internal/upload"
)

type KnowledgeDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	FileName    string `json:"fileName"`
	FileURL     string `json:"fileUrl"`
	UploadDate  string `json:"uploadDate"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

type knowledgeText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (s *Service) ListKnowledge(ctx context.Context, category string) []store.Record {
	records := sortNewestFirst(s.knowledge().LoadAll(ctx), "uploadDate")
	if category == "" {
		return records
	}
	filtered := make([]store.Record, 0, len(records))
	for _, rec := range records {
		if strings.EqualFold(rec.String("category"), category) {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

func (s *Service) SearchKnowledge(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// SearchRecords joins knowledge documents with their extracted text.
func (s *Service) SearchRecords(ctx context.Context) []search.Record {
	texts := map[string]string{}
	for _, item := range store.NewTyped[knowledgeText](s.knowledgeText()).All(ctx) {
		texts[item.ID] = item.Text
	}
	docs := store.NewTyped[KnowledgeDocument](s.knowledge()).All(ctx)
	out := make([]search.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, searchRecord(doc, texts[doc.ID]))
	}
	return out
}

func searchRecord(doc KnowledgeDocument, text string) search.Record {
	return search.Record{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		Category:    doc.Category,
		FileName:    doc.FileName,
		FileURL:     doc.FileURL,
		Content:     text,
	}
}

type AddKnowledgeInput struct {
	Title       string
	Description string
	Category    string
	Backend     string
	File        upload.File
}

// AddKnowledge uploads the file, records the document and indexes whatever
// text can be extracted from it. Extraction and indexing are best-effort.
func (s *Service) AddKnowledge(ctx context.Context, input AddKnowledgeInput) (KnowledgeDocument, error) {
	if len(input.File.Data) == 0 {
		return KnowledgeDocument{}, validationError("file is required", map[string]any{"field": "file"})
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSpace(input.File.Name)
	}
	if title == "" {
		return KnowledgeDocument{}, validationError("title is required", map[string]any{"field": "title"})
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = "general"
	}

	backend, err := s.uploads.Get(input.Backend)
	if err != nil {
		return KnowledgeDocument{}, err
	}
	stored, err := backend.Store(ctx, input.File)
	if err != nil {
		return KnowledgeDocument{}, err
	}

	doc := KnowledgeDocument{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		FileName:    input.File.Name,
		FileURL:     stored.URL,
		UploadDate:  s.timestamp(),
		FileSize:    stored.Size,
		ContentType: stored.ContentType,
	}
	doc, err = store.NewTyped[KnowledgeDocument](s.knowledge()).Append(ctx, doc)
	if err != nil {
		if cleanupErr := backend.Remove(ctx, stored.URL); cleanupErr != nil {
			s.logger.Warn("remove orphaned upload", "url", stored.URL, "error", cleanupErr)
		}
		return KnowledgeDocument{}, writeFailure(err)
	}

	text, err := extract.Text(input.File.Name, input.File.ContentType, input.File.Data)
	switch {
	case errors.Is(err, extract.ErrUnsupported):
		s.logger.Debug("no text extracted", "document_id", doc.ID, "content_type", input.File.ContentType)
	case err != nil:
		s.logger.Warn("text extraction failed", "document_id", doc.ID, "error", err)
	case text != "":
		if _, err := store.NewTyped[knowledgeText](s.knowledgeText()).Append(ctx, knowledgeText{ID: doc.ID, Text: text}); err != nil {
			s.logger.Warn("store extracted text", "document_id", doc.ID, "error", err)
		}
	}

	s.search.Index(searchRecord(doc, text))
	return doc, nil
}

// DeleteKnowledge removes the document record. Removing the uploaded file,
// the extracted text and the index entry is best-effort.
func (s *Service) DeleteKnowledge(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationError("id is required", nil)
	}
	err := s.knowledge().DeleteOneWithCleanup(ctx, id, func(ctx context.Context, rec store.Record) error {
		return s.uploads.Remove(ctx, rec.String("fileUrl"))
	})
	if err != nil {
		return writeFailure(err)
	}

	if err := s.knowledgeText().DeleteOne(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("remove extracted text", "document_id", id, "error", err)
	}
	s.search.Delete(id)
	return nil
}
