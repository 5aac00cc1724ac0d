package summarizer

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"

	"github.com/skynetai/skynet/backend/internal/apperr"
	"github.com/skynetai/skynet/backend/pkg/utils"
)

// Extract turns raw input into plain text. PDF pages are concatenated in
// order; plain input must be valid UTF-8.
func Extract(ctx context.Context, raw []byte, kind Kind) (string, error) {
	switch kind {
	case KindText, KindPlain:
		if !utf8.Valid(raw) {
			return "", apperr.New(apperr.ErrUnsupportedFormat, "input is not valid UTF-8 text")
		}
		return string(raw), nil
	case KindPDF:
		return extractPDF(ctx, raw)
	default:
		return "", apperr.New(apperr.ErrUnsupportedFormat, "unsupported content kind %q", kind)
	}
}

func extractPDF(ctx context.Context, raw []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			utils.GetLogger().Warn("pdf reader panicked", "panic", r)
			text, err = "", apperr.New(apperr.ErrUnsupportedFormat, "unreadable pdf")
		}
	}()

	loader := documentloaders.NewPDF(bytes.NewReader(raw), int64(len(raw)))
	pages, err := loader.Load(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUnsupportedFormat, err, "read pdf")
	}

	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		if content := strings.TrimSpace(page.PageContent); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
