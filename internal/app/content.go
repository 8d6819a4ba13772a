package app

import (
	"context"
	"strings"

	"sitecms/api/internal/auth"
	"sitecms/api/internal/gitrepo"
	"sitecms/api/internal/siteconfig"
)

const defaultHistoryLimit = 50

func (s *Service) Content(ctx context.Context) siteconfig.Content {
	content, err := s.site.LoadContent(ctx)
	if err != nil {
		s.logger.Warn("homepage content unreadable, serving empty", "error", err)
		return siteconfig.Content{}
	}
	return content
}

type SaveContentResult struct {
	Content  siteconfig.Content `json:"content"`
	Revision *gitrepo.Revision  `json:"revision,omitempty"`
	Changed  []string           `json:"changed"`
}

// SaveContent replaces the homepage content and records it as a revision.
// The saved document is authoritative; a failed revision commit is logged.
func (s *Service) SaveContent(ctx context.Context, user auth.User, content siteconfig.Content, message string) (SaveContentResult, error) {
	if content == nil {
		return SaveContentResult{}, validationError("content must be a JSON object", nil)
	}
	previous := s.Content(ctx)
	if err := s.site.SaveContent(ctx, content); err != nil {
		return SaveContentResult{}, storageError(err)
	}

	result := SaveContentResult{Content: content, Changed: gitrepo.ChangedKeys(previous, content)}
	if s.git == nil {
		return result, nil
	}
	rev, _, err := s.git.Commit(contentDocument, content, authorName(user), strings.TrimSpace(message))
	if err != nil {
		s.logger.Warn("content revision not recorded", "error", err)
		return result, nil
	}
	result.Revision = &rev
	return result, nil
}

func (s *Service) ContentHistory(limit int) ([]gitrepo.Revision, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if s.git == nil {
		return []gitrepo.Revision{}, nil
	}
	return s.git.History(contentDocument, limit)
}

// RestoreContent makes an earlier revision current again. The restore is
// itself committed, so history only ever grows.
func (s *Service) RestoreContent(ctx context.Context, user auth.User, hash string) (SaveContentResult, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return SaveContentResult{}, validationError("hash is required", map[string]any{"field": "hash"})
	}
	if s.git == nil {
		return SaveContentResult{}, notFound("No revisions recorded")
	}
	content, rev, err := s.git.ContentAt(contentDocument, hash)
	if err != nil {
		return SaveContentResult{}, err
	}
	return s.SaveContent(ctx, user, content, "Restore "+rev.ShortHash)
}

func authorName(user auth.User) string {
	if user.Name != "" {
		return user.Name
	}
	if user.Email != "" {
		return user.Email
	}
	return "admin"
}
