// Package imagefetch downloads image bytes from a candidate URL.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
	"github.com/wanderlist/imagebackfill/internal/observability/metrics"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 20 << 20

// Downloader fetches image bodies with a single GET. It never retries.
type Downloader struct {
	client   *httpclient.Client
	maxBytes int64
	metrics  *metrics.ImageProviderMetrics
}

// New creates a Downloader. maxBytes <= 0 uses DefaultMaxBytes; m may be nil.
func New(client *httpclient.Client, maxBytes int64, m *metrics.ImageProviderMetrics) *Downloader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Downloader{client: client, maxBytes: maxBytes, metrics: m}
}

// Download returns the response body unmodified. Transport failures, non-2xx
// statuses and bodies larger than the cap are download errors.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	data, err := d.download(ctx, url)
	if err != nil {
		if d.metrics != nil {
			d.metrics.IncrementDownloadErrors()
		}
		return nil, errors.New(err).
			Component("imagefetch").
			Category(errors.CategoryImageDownload).
			NetworkContext(url, 0).
			Timing("download", time.Since(start)).
			Build()
	}
	if d.metrics != nil {
		d.metrics.ObserveDownload(time.Since(start).Seconds(), len(data))
	}
	return data, nil
}

func (d *Downloader) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer httpclient.DrainAndClose(resp)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, err
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", resp.ContentLength, d.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", d.maxBytes)
	}
	return data, nil
}
