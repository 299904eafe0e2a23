// ABOUTME: MinIO / S3 fetcher for minio://bucket/object URLs
// ABOUTME: Lets stems uploaded to object storage load like any other URL
package asset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds object storage connection settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinioFetcher reads objects from a MinIO or S3 compatible server
type MinioFetcher struct {
	client *minio.Client
}

// NewMinioFetcher creates a client for cfg. No request is made until
// the first Fetch.
func NewMinioFetcher(cfg MinioConfig) (*MinioFetcher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioFetcher{client: client}, nil
}

// Fetch downloads the object named by a minio://bucket/object URL
func (f *MinioFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, object, err := ParseObjectURL(rawURL)
	if err != nil {
		return nil, err
	}

	obj, err := f.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, object)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// ParseObjectURL splits minio://bucket/path/to/object
func ParseObjectURL(rawURL string) (bucket, object string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid object url: %w", err)
	}
	if u.Scheme != "minio" && u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	bucket = u.Host
	object = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("object url needs bucket and object: %s", rawURL)
	}
	return bucket, object, nil
}
