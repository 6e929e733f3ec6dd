package templates

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection settings for an S3-compatible template
// bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	// MaxSize caps the accepted template object size in bytes. Zero
	// means unlimited.
	MaxSize int64
}

// S3Resolver fetches templates from an S3-compatible object store. Each
// Resolve downloads the object to a temporary file; cleanup removes it.
type S3Resolver struct {
	client  *minio.Client
	bucket  string
	prefix  string
	maxSize int64
	log     *slog.Logger
}

// NewS3Resolver connects to the object store described by cfg. The bucket
// must already exist.
func NewS3Resolver(cfg S3Config, log *slog.Logger) (*S3Resolver, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3Resolver{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		maxSize: cfg.MaxSize,
		log:     log,
	}, nil
}

// Resolve downloads the driver's template into a temporary file and
// returns its path. The caller must invoke cleanup once the file is no
// longer needed.
func (r *S3Resolver) Resolve(ctx context.Context, userID string) (string, func(), error) {
	noop := func() {}
	if err := ValidateUserID(userID); err != nil {
		return "", noop, fmt.Errorf("%w: %v", ErrTemplateMissing, err)
	}

	key := r.prefix + templateFileName(userID)
	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", noop, fmt.Errorf("failed to fetch template %s: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces NoSuchKey before any read and
	// gives the size before any byte is downloaded.
	stat, err := obj.Stat()
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return "", noop, ErrTemplateMissing
		}
		return "", noop, fmt.Errorf("failed to stat template %s: %w", key, err)
	}
	if r.maxSize > 0 && stat.Size > r.maxSize {
		return "", noop, fmt.Errorf("%w: %d bytes (limit %d)", ErrTemplateTooLarge, stat.Size, r.maxSize)
	}

	tmp, err := os.CreateTemp("", "waybill-template-*.pdf")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			r.log.Warn("failed to remove temp template", "path", tmp.Name(), "error", err)
		}
	}

	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("failed to download template %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to finalize temp template: %w", err)
	}

	r.log.Debug("template downloaded", "bucket", r.bucket, "key", key, "path", tmp.Name())
	return tmp.Name(), cleanup, nil
}
