package mock

import (
	"context"

	"github.com/markdave123-py/docflow/internal/core"
)

var _ core.DocumentExtractor = (*StubExtractor)(nil)

// StubExtractor returns the input bytes as text unless ExtractFunc is set.
type StubExtractor struct {
	ExtractFunc func(ctx context.Context, data []byte, contentType string) (string, error)
}

func (s *StubExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if s.ExtractFunc != nil {
		return s.ExtractFunc(ctx, data, contentType)
	}
	return string(data), nil
}
