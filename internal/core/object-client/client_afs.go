package objectclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/markdave123-py/docflow/internal/core"
)

var _ core.ObjectClient = (*AFSClient)(nil)

// AFSClient stores blobs under a base URL on any filesystem afs supports
// (file://, mem://, gs://, s3://...). References are absolute URLs.
type AFSClient struct {
	fs      afs.Service
	baseURL string
	logger  *slog.Logger
}

func NewAFSClient(baseURL string, logger *slog.Logger) (*AFSClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("afs base url not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Object storage: using afs", "base_url", baseURL)
	return &AFSClient{
		fs:      afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "afs"),
	}, nil
}

func (c *AFSClient) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	ref := url.Join(c.baseURL, key)
	if err := c.fs.Upload(ctx, ref, file.DefaultFileOsMode, data); err != nil {
		return "", fmt.Errorf("afs upload %s: %w", ref, err)
	}
	return ref, nil
}

func (c *AFSClient) GetFile(ctx context.Context, ref string) ([]byte, error) {
	ok, err := c.Exists(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("afs get %s: %w", ref, core.ErrSourceMissing)
	}
	data, err := c.fs.DownloadWithURL(ctx, c.resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("afs get %s: %w", ref, err)
	}
	return data, nil
}

func (c *AFSClient) Exists(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	ok, err := c.fs.Exists(ctx, c.resolve(ref))
	if err != nil {
		return false, fmt.Errorf("afs exists %s: %w", ref, err)
	}
	return ok, nil
}

func (c *AFSClient) DeleteFile(ctx context.Context, ref string) error {
	ok, err := c.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("afs delete %s: %w", ref, core.ErrSourceMissing)
	}
	if err := c.fs.Delete(ctx, c.resolve(ref)); err != nil {
		return fmt.Errorf("afs delete %s: %w", ref, err)
	}
	return nil
}

// resolve turns a bare key into a URL under the base location.
func (c *AFSClient) resolve(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return url.Join(c.baseURL, ref)
}
