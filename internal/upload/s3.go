package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicURL is the base under which objects are served. Defaults to
	// the endpoint with the bucket as the first path segment.
	PublicURL string
	Prefix    string
}

func (c S3Config) IsConfigured() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// S3Backend stores objects in any S3-compatible bucket.
type S3Backend struct {
	client    *minio.Client
	bucket    string
	prefix    string
	publicURL string
	now       func() time.Time
}

func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("s3 upload backend requires endpoint, credentials and bucket")
	}
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return &S3Backend{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    prefix,
		publicURL: publicURL,
		now:       time.Now,
	}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Store(ctx context.Context, file File) (Stored, error) {
	if err := checkSize(file, 0); err != nil {
		return Stored{}, err
	}
	key := b.prefix + "/" + objectName(file.Name, b.now())
	contentType := contentTypeOr(file)

	info, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(file.Data), int64(len(file.Data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Stored{}, fmt.Errorf("put s3 object: %w", err)
	}
	return Stored{
		URL:         b.publicURL + "/" + key,
		Key:         key,
		Size:        info.Size,
		ContentType: contentType,
		Backend:     b.Name(),
	}, nil
}

func (b *S3Backend) Owns(url string) bool {
	return strings.HasPrefix(url, b.publicURL+"/")
}

func (b *S3Backend) Remove(ctx context.Context, url string) error {
	key := strings.TrimPrefix(url, b.publicURL+"/")
	if key == "" || key == url {
		return nil
	}
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove s3 object: %w", err)
	}
	return nil
}
