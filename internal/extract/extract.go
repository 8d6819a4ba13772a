// Package extract pulls plain text out of uploaded knowledge-base files so
// they can be searched.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxTextBytes caps the text kept per document.
const MaxTextBytes = 64 << 10

var ErrUnsupported = errors.New("unsupported file type")

// Text returns the readable text of data, collapsed to single spaces and cut
// to MaxTextBytes. PDFs and text-like files are supported; other types yield
// ErrUnsupported.
func Text(fileName, contentType string, data []byte) (string, error) {
	switch kind(fileName, contentType, data) {
	case "pdf":
		text, err := pdfText(data)
		if err != nil {
			return "", err
		}
		return normalize(text), nil
	case "text":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)
		}
		return normalize(string(data)), nil
	default:
		return "", ErrUnsupported
	}
}

func kind(fileName, contentType string, data []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case mediaType == "application/pdf", ext == ".pdf", bytes.HasPrefix(data, []byte("%PDF-")):
		return "pdf"
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return "text"
	case ext == ".txt", ext == ".md", ext == ".csv", ext == ".json":
		return "text"
	default:
		return ""
	}
}

func pdfText(data []byte) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(plain, 4*MaxTextBytes))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(raw), nil
}

func normalize(text string) string {
	var b strings.Builder
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			space = b.Len() > 0
			continue
		}
		if space {
			if b.Len()+1 > MaxTextBytes {
				break
			}
			b.WriteByte(' ')
			space = false
		}
		if b.Len()+utf8.RuneLen(r) > MaxTextBytes {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
