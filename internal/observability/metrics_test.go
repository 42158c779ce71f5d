package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_GatherAndServe(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Backfill.RunStarted()
	m.Backfill.RecordRow("neighborhoods", "updated")
	m.Backfill.RecordObjectWrite("local", nil)
	m.Backfill.RecordObjectWrite("local", errors.New("disk full"))
	m.Backfill.RunFinished("done", 1.5)
	m.ImageProvider.ObserveSearch("pexels", "hit", 0.2)
	m.ImageProvider.ObserveDownload(0.1, 2048)

	_, err = m.Registry().Gather()
	require.NoError(t, err, "every collected metric must be described")

	assert.InDelta(t, 1, testutil.ToFloat64(m.Backfill.Runs.WithLabelValues("done")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Backfill.RunsInFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Backfill.ObjectWrites.WithLabelValues("local", "error")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `backfill_rows_total{outcome="updated",table="neighborhoods"} 1`)
	assert.Contains(t, body, "image_provider_download_size_bytes_count 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err, "each instance registers on its own registry")

	a.Backfill.RecordRow("parks", "skipped")
	assert.InDelta(t, 0, testutil.ToFloat64(b.Backfill.Rows.WithLabelValues("parks", "skipped")), 0)
}
