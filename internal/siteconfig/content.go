package siteconfig

import (
	"context"
	"errors"
	"fmt"

	"sitecms/api/internal/store"
)

const ContentDocumentName = "homepage"

// Content is the free-form homepage document edited from the dashboard.
type Content map[string]any

// LoadContent returns the stored homepage content, or an empty document.
func (p *Provider) LoadContent(ctx context.Context) (Content, error) {
	content := Content{}
	err := p.store.LoadDocument(ctx, ContentDocumentName, &content)
	if errors.Is(err, store.ErrNoData) {
		return Content{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load homepage content: %w", err)
	}
	return content, nil
}

func (p *Provider) SaveContent(ctx context.Context, content Content) error {
	if content == nil {
		content = Content{}
	}
	if err := p.store.SaveDocument(ctx, ContentDocumentName, content); err != nil {
		return fmt.Errorf("save homepage content: %w", err)
	}
	return nil
}
