package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3Backend = "s3"

// S3Config configures an S3 compatible endpoint.
type S3Config struct {
	Endpoint  string // host[:port], no scheme
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Writer stores objects in any S3 compatible service.
type S3Writer struct {
	client     *minio.Client
	publicBase string
}

// NewS3Writer creates a minio client for cfg. An empty publicBase defaults
// to the endpoint itself, which serves path style URLs.
func NewS3Writer(cfg S3Config, publicBase string) (*S3Writer, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client for %s: %w", cfg.Endpoint, err)
	}
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = (&url.URL{Scheme: scheme, Host: cfg.Endpoint}).String()
	}
	return &S3Writer{client: client, publicBase: publicBase}, nil
}

// Put implements Writer. S3 PUT replaces any existing object with the same key.
func (s *S3Writer) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", storageError(err, s3Backend, bucket, key)
	}
	return PublicURL(s.publicBase, bucket, key), nil
}
