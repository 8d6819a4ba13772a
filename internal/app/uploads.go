package app

import (
	"context"

	"sitecms/api/internal/upload"
)

// Upload stores file through the named backend, or the default one when
// backend is empty.
func (s *Service) Upload(ctx context.Context, backend string, file upload.File) (upload.Stored, error) {
	b, err := s.uploads.Get(backend)
	if err != nil {
		return upload.Stored{}, err
	}
	stored, err := b.Store(ctx, file)
	if err != nil {
		return upload.Stored{}, err
	}
	s.logger.Info("file uploaded", "backend", stored.Backend, "key", stored.Key, "size", stored.Size)
	return stored, nil
}

// UploadBackends lists the configured upload backends by name.
func (s *Service) UploadBackends() []string {
	return s.uploads.Names()
}
