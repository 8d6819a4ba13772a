package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitecms/api/internal/upstream"
)

// BlobBackend stores files in Vercel Blob through its HTTP API.
type BlobBackend struct {
	token   string
	apiURL  string
	client  *http.Client
	now     func() time.Time
	storeID string
}

func NewBlobBackend(token, apiURL string, client *http.Client) (*BlobBackend, error) {
	if token == "" {
		return nil, upstream.NotConfigured("blob")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BlobBackend{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		client:  client,
		now:     time.Now,
		storeID: storeIDFromToken(token),
	}, nil
}

// storeIDFromToken extracts the store id from a token of the form
// vercel_blob_rw_<storeId>_<secret>.
func storeIDFromToken(token string) string {
	parts := strings.Split(token, "_")
	if len(parts) < 5 {
		return ""
	}
	return strings.ToLower(parts[3])
}

func (b *BlobBackend) Name() string { return "blob" }

type blobPutResponse struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
}

func (b *BlobBackend) Store(ctx context.Context, file File) (Stored, error) {
	if err := checkSize(file, 0); err != nil {
		return Stored{}, err
	}
	pathname := "uploads/" + objectName(file.Name, b.now())
	contentType := contentTypeOr(file)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.apiURL+"/?pathname="+url.QueryEscape(pathname), bytes.NewReader(file.Data))
	if err != nil {
		return Stored{}, fmt.Errorf("build blob request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("x-api-version", "7")
	req.Header.Set("x-content-type", contentType)
	req.Header.Set("x-add-random-suffix", "0")

	var out blobPutResponse
	if err := b.do(req, &out); err != nil {
		return Stored{}, err
	}
	if out.ContentType != "" {
		contentType = out.ContentType
	}
	return Stored{
		URL:         out.URL,
		Key:         out.Pathname,
		Size:        int64(len(file.Data)),
		ContentType: contentType,
		Backend:     b.Name(),
	}, nil
}

func (b *BlobBackend) Owns(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if !strings.HasSuffix(u.Host, ".blob.vercel-storage.com") {
		return false
	}
	return b.storeID == "" || strings.HasPrefix(u.Host, b.storeID+".")
}

func (b *BlobBackend) Remove(ctx context.Context, blobURL string) error {
	body, err := json.Marshal(map[string][]string{"urls": {blobURL}})
	if err != nil {
		return fmt.Errorf("marshal blob delete: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+"/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build blob request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("x-api-version", "7")
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, nil)
}

func (b *BlobBackend) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return &upstream.Error{Service: "blob", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return &upstream.Error{Service: "blob", Status: resp.StatusCode, Message: message}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &upstream.Error{Service: "blob", Status: resp.StatusCode, Message: "unreadable response"}
		}
	}
	return nil
}
