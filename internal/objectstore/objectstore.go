// Package objectstore writes image bytes into a public bucket and returns
// the object's public URL.
//
// Keys are deterministic, so writes are upserts and a rerun over the same
// row overwrites its previous object. Public URLs are derived from the
// configured base URL and never require a round trip to the store.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/observability/metrics"
)

const (
	// DefaultBucket is used when no bucket is configured.
	DefaultBucket = "activity-images"

	// ContentTypeJPEG is the content type of every stored object.
	ContentTypeJPEG = "image/jpeg"

	componentName = "objectstore"
)

// Writer stores an object, overwriting any object with the same key.
type Writer interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// SanitizeName trims name, replaces every character outside [a-zA-Z0-9]
// with an underscore and lower-cases the result.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
}

// ObjectKey returns {table}/{sanitized name}_{id}.jpg.
func ObjectKey(table, name, id string) string {
	return fmt.Sprintf("%s/%s_%s.jpg", table, SanitizeName(name), id)
}

// PublicURL returns {base}/{bucket}/{key} with each path segment escaped,
// so ids containing '?', '#', '%' or spaces still name the stored object.
func PublicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + escapeObjectPath(bucket, key)
}

// escapeObjectPath returns bucket/key with every '/'-separated segment
// path-escaped.
func escapeObjectPath(bucket, key string) string {
	segments := append([]string{bucket}, strings.Split(strings.TrimLeft(key, "/"), "/")...)
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func storageError(err error, backend, bucket, key string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryStorage).
		Context("backend", backend).
		Context("bucket", bucket).
		Context("key", key).
		Build()
}

// instrumentedWriter records every write in the backfill metrics.
type instrumentedWriter struct {
	next    Writer
	backend string
	metrics *metrics.BackfillMetrics
}

// Instrument wraps w so each Put is counted by backend and result. A nil m returns w.
func Instrument(w Writer, backend string, m *metrics.BackfillMetrics) Writer {
	if m == nil {
		return w
	}
	return &instrumentedWriter{next: w, backend: backend, metrics: m}
}

func (w *instrumentedWriter) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	url, err := w.next.Put(ctx, bucket, key, data, contentType)
	w.metrics.RecordObjectWrite(w.backend, err)
	return url, err
}
