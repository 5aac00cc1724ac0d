package summarizer

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/skynetai/skynet/backend/internal/apperr"
)

// Kind identifies how raw summarization input is decoded.
type Kind string

const (
	KindText  Kind = "text"
	KindPDF   Kind = "pdf"
	KindPlain Kind = "plain"
)

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindPDF, KindPlain:
		return true
	default:
		return false
	}
}

// KindFromUpload picks the kind of an uploaded file from its content type,
// falling back to the file extension.
func KindFromUpload(filename, contentType string) (Kind, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "application/pdf":
			return KindPDF, nil
		case "text/plain", "text/markdown":
			return KindPlain, nil
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".txt", ".md":
		return KindPlain, nil
	}
	return "", apperr.New(apperr.ErrUnsupportedFormat, "cannot summarize %q (%s)", filename, contentType)
}
