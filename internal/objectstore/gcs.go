package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	gcsBackend = "gcs"

	// DefaultGCSPublicBase serves public GCS objects as {base}/{bucket}/{key}.
	DefaultGCSPublicBase = "https://storage.googleapis.com"
)

// newObjectWriter opens a writer for one object. Swapped in tests.
type newObjectWriter func(ctx context.Context, bucket, key, contentType string) io.WriteCloser

// GCSWriter stores objects in Google Cloud Storage.
type GCSWriter struct {
	client     *storage.Client
	open       newObjectWriter
	publicBase string
}

// NewGCSWriter creates a storage client. With an empty credentialsFile the
// client uses Application Default Credentials.
func NewGCSWriter(ctx context.Context, credentialsFile, publicBase string) (*GCSWriter, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if publicBase == "" {
		publicBase = DefaultGCSPublicBase
	}
	w := &GCSWriter{client: client, publicBase: publicBase}
	w.open = func(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
		// No generation precondition: an existing object is replaced.
		ow := client.Bucket(bucket).Object(key).NewWriter(ctx)
		ow.ContentType = contentType
		return ow
	}
	return w, nil
}

// Put implements Writer.
func (g *GCSWriter) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.open(ctx, bucket, key, contentType)
	if _, err := w.Write(data); err != nil {
		// Cancelling the context aborts the upload; Close then reports the cause.
		cancel()
		_ = w.Close()
		return "", storageError(err, gcsBackend, bucket, key)
	}
	if err := w.Close(); err != nil {
		return "", storageError(err, gcsBackend, bucket, key)
	}
	return PublicURL(g.publicBase, bucket, key), nil
}

// Close releases the underlying client.
func (g *GCSWriter) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
