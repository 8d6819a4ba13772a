package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalBackend writes files under a directory served by the static file
// server.
type LocalBackend struct {
	dir       string
	urlPrefix string
	maxSize   int64
	now       func() time.Time
}

func NewLocalBackend(dir, urlPrefix string) *LocalBackend {
	return &LocalBackend{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxSize:   LocalMaxSize,
		now:       time.Now,
	}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Store(_ context.Context, file File) (Stored, error) {
	if err := checkSize(file, b.maxSize); err != nil {
		return Stored{}, err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create upload dir: %w", err)
	}
	name := objectName(file.Name, b.now())
	if err := os.WriteFile(filepath.Join(b.dir, name), file.Data, 0o644); err != nil {
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	return Stored{
		URL:         path.Join(b.urlPrefix, name),
		Key:         name,
		Size:        int64(len(file.Data)),
		ContentType: contentTypeOr(file),
		Backend:     b.Name(),
	}, nil
}

func (b *LocalBackend) Owns(url string) bool {
	return strings.HasPrefix(url, b.urlPrefix+"/")
}

func (b *LocalBackend) Remove(_ context.Context, url string) error {
	name := path.Base(strings.TrimPrefix(url, b.urlPrefix+"/"))
	if name == "" || name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(b.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
