package objectclient

import (
	"context"
	"fmt"
	"log/slog"

	cfg "github.com/markdave123-py/docflow/internal/config"
	"github.com/markdave123-py/docflow/internal/core"
)

// New builds the blob backend selected by BLOB_BACKEND.
func New(ctx context.Context, c *cfg.Config, logger *slog.Logger) (core.ObjectClient, error) {
	switch c.BlobBackend {
	case cfg.BlobBackendS3:
		return NewS3Client(ctx, c, logger)
	case cfg.BlobBackendAFS:
		return NewAFSClient(c.UploadDir, logger)
	}
	return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
}
