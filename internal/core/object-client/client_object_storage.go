package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/markdave123-py/docflow/internal/config"
	"github.com/markdave123-py/docflow/internal/core"
)

var _ core.ObjectClient = (*S3Client)(nil)

type S3Client struct {
	client *s3.Client
	region string
	bucket string
	logger *slog.Logger
}

func NewS3Client(ctx context.Context, cfg *cfg.Config, logger *slog.Logger) (*S3Client, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	logger.Info("Object storage: using S3", "bucket", cfg.BucketName, "region", cfg.AwsRegion)

	return &S3Client{
		client: client,
		region: cfg.AwsRegion,
		bucket: cfg.BucketName,
		logger: logger.With("component", "s3"),
	}, nil
}

// UploadFile stores data under key and returns an s3://bucket/key reference.
func (c *S3Client) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	uploader := manager.NewUploader(c.client)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := uploader.Upload(ctxUpload, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

func (c *S3Client) GetFile(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := c.parseRef(ref)
	if err != nil {
		return nil, err
	}

	ctxGet, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", ref, mapMissing(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *S3Client) Exists(ctx context.Context, ref string) (bool, error) {
	bucket, key, err := c.parseRef(ref)
	if err != nil {
		return false, err
	}

	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = c.client.HeadObject(ctxHead, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(mapMissing(err), core.ErrSourceMissing) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head %s: %w", ref, err)
}

// DeleteFile removes the object. S3 deletes are idempotent, so a missing
// object is not reported.
func (c *S3Client) DeleteFile(ctx context.Context, ref string) error {
	bucket, key, err := c.parseRef(ref)
	if err != nil {
		return err
	}

	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", mapMissing(err))
	}
	return nil
}

func (c *S3Client) parseRef(ref string) (bucket, key string, err error) {
	return parseS3Ref(ref, c.bucket, c.region)
}

// parseS3Ref accepts s3://bucket/key, the virtual-hosted https URL the
// service used to hand out, or a bare key in the default bucket.
func parseS3Ref(ref, defaultBucket, region string) (bucket, key string, err error) {
	if ref == "" {
		return "", "", fmt.Errorf("empty reference: %w", core.ErrSourceMissing)
	}
	if !strings.Contains(ref, "://") {
		return defaultBucket, strings.TrimPrefix(ref, "/"), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", "", &core.ValidationError{Field: "source_ref", Message: fmt.Sprintf("invalid object reference %q", ref)}
	}
	key = strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "s3":
		bucket = u.Host
	case "https":
		suffix := fmt.Sprintf(".s3.%s.amazonaws.com", region)
		if !strings.HasSuffix(u.Host, suffix) {
			return "", "", &core.ValidationError{Field: "source_ref", Message: fmt.Sprintf("not an s3 url %q", ref)}
		}
		bucket = strings.TrimSuffix(u.Host, suffix)
	default:
		return "", "", &core.ValidationError{Field: "source_ref", Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if bucket == "" || key == "" {
		return "", "", &core.ValidationError{Field: "source_ref", Message: fmt.Sprintf("incomplete object reference %q", ref)}
	}
	return bucket, key, nil
}

func mapMissing(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", core.ErrSourceMissing, err)
	}
	return err
}
