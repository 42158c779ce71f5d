package app

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wanderlist/imagebackfill/internal/backfill"
	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/datastore"
	"github.com/wanderlist/imagebackfill/internal/logger"
)

const (
	testPexelsBase = "https://api.pexels.com/v1"
	testImageURL   = "https://images.pexels.com/photos/1/fells.jpg"
	testPublicBase = "https://cdn.example"
)

// testSettings returns settings for a SQLite source, the Pexels provider and
// local object storage, all rooted in temp dirs.
func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Version: "test",
		Backfill: conf.BackfillSettings{
			Tables:       []string{"neighborhoods"},
			PrimaryTable: "activities",
			ChunkSize:    10,
			TableWorkers: 1,
		},
		Provider: conf.ProviderSettings{
			Type:      conf.ProviderPexels,
			APIKey:    "pexels-key",
			BaseURL:   testPexelsBase,
			PerPage:   5,
			Selection: conf.SelectionFirst,
			Timeout:   5 * time.Second,
		},
		Fetch: conf.FetchSettings{Timeout: 5 * time.Second, MaxBytes: 1 << 20},
		DataSource: conf.DataSourceSettings{
			Type: conf.DataSourceSQLite,
			DSN:  filepath.Join(dir, "wanderlist.db"),
		},
		Storage: conf.StorageSettings{
			Type:          conf.StorageLocal,
			Bucket:        conf.DefaultBucket,
			LocalPath:     filepath.Join(dir, "objects"),
			PublicBaseURL: testPublicBase,
		},
	}
}

func seedNeighborhoods(t *testing.T, dsn string) {
	t.Helper()
	store, err := datastore.OpenSQLite(dsn, logger.NewDiscard())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.DB.Exec(`CREATE TABLE neighborhoods (
		id INTEGER PRIMARY KEY,
		name TEXT,
		image_url TEXT
	)`).Error)
	require.NoError(t, store.DB.Exec(`INSERT INTO neighborhoods (id, name, image_url) VALUES
		(1, 'Fells Point', NULL),
		(2, '   ', NULL),
		(3, 'Mount Vernon', 'https://cdn.example/mv.jpg')`).Error)
}

func imageURLOf(t *testing.T, dsn string, id int) string {
	t.Helper()
	store, err := datastore.OpenSQLite(dsn, logger.NewDiscard())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	var url *string
	require.NoError(t, store.DB.Raw(`SELECT image_url FROM neighborhoods WHERE id = ?`, id).Scan(&url).Error)
	if url == nil {
		return ""
	}
	return *url
}

func TestRunner_EndToEnd(t *testing.T) {
	settings := testSettings(t)
	seedNeighborhoods(t, settings.DataSource.DSN)

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, testPexelsBase+"/search",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "pexels-key", req.Header.Get("Authorization"))
			assert.Equal(t, "Fells Point", req.URL.Query().Get("query"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"photos": [{"photographer": "Ana", "src": {"large": "`+testImageURL+`"}}]}`), nil
		})
	mock.RegisterResponder(http.MethodGet, testImageURL,
		httpmock.NewBytesResponder(http.StatusOK, []byte("jpeg-bytes")))

	runner, err := New(t.Context(), settings, logger.NewDiscard(), WithTransport(mock))
	require.NoError(t, err)
	defer func() { assert.NoError(t, runner.Close()) }()

	report := runner.Run(t.Context())

	require.Equal(t, backfill.StatusDone, report.Status, report.Summary())
	require.Len(t, report.Tables, 1)
	assert.Equal(t, backfill.TableTally{Table: "neighborhoods", Rows: 2, Succeeded: 1, Skipped: 1}, report.Tables[0])

	wantURL := testPublicBase + "/activity-images/neighborhoods/fells_point_1.jpg"
	assert.Equal(t, wantURL, imageURLOf(t, settings.DataSource.DSN, 1))
	assert.Empty(t, imageURLOf(t, settings.DataSource.DSN, 2))

	data, err := os.ReadFile(filepath.Join(settings.Storage.LocalPath, "activity-images", "neighborhoods", "fells_point_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	assert.InDelta(t, 1, testutil.ToFloat64(runner.Metrics().Backfill.Rows.WithLabelValues("neighborhoods", "updated")), 0)
	assert.Equal(t, 1, mock.GetCallCountInfo()["GET "+testImageURL])
}

func TestRunner_MissingCredentialIsFatal(t *testing.T) {
	settings := testSettings(t)
	settings.Provider.APIKey = ""

	mock := httpmock.NewMockTransport()
	runner, err := New(t.Context(), settings, nil, WithTransport(mock))
	require.NoError(t, err)
	defer func() { _ = runner.Close() }()

	report := runner.Run(t.Context())

	assert.Equal(t, backfill.StatusFailedFatal, report.Status)
	assert.Equal(t, http.StatusInternalServerError, report.HTTPStatus())
	require.Len(t, report.Entries, 1)
	assert.Contains(t, report.Entries[0].Message, "PEXELS_API_KEY")
	assert.Zero(t, mock.GetTotalCallCount())

	_, statErr := os.Stat(settings.DataSource.DSN)
	assert.True(t, os.IsNotExist(statErr), "data source is not opened")
}

func TestRunner_BackendSetupFailureIsFatal(t *testing.T) {
	settings := testSettings(t)
	settings.Storage.Type = "ftp"

	runner, err := New(t.Context(), settings, nil, WithTransport(httpmock.NewMockTransport()))
	require.NoError(t, err)
	defer func() { _ = runner.Close() }()

	report := runner.Run(t.Context())

	assert.Equal(t, backfill.StatusFailedFatal, report.Status)
	require.Len(t, report.Entries, 1)
	assert.Contains(t, report.Entries[0].Message, `object store writer (unsupported storage type "ftp")`)
}

func TestRunner_InvalidNotificationURLDoesNotFailSetup(t *testing.T) {
	settings := testSettings(t)
	settings.Notification.URLs = []string{"notaservice://token@host"}

	runner, err := New(t.Context(), settings, nil, WithTransport(httpmock.NewMockTransport()))
	require.NoError(t, err)
	defer func() { _ = runner.Close() }()
	assert.Nil(t, runner.notifier)
}

func TestProviderLimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rateLimit float64
		workers   int
		delay     time.Duration
		want      rate.Limit
	}{
		{"explicit rate", 2, 1, 0, rate.Limit(2)},
		{"explicit rate wins over delay", 4, 3, time.Second, rate.Limit(4)},
		{"derived from delay with workers", 0, 3, 500 * time.Millisecond, rate.Every(500 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &conf.Settings{}
			s.Provider.RateLimit = tt.rateLimit
			s.Backfill.TableWorkers = tt.workers
			s.Backfill.InterRowDelay = tt.delay

			l := providerLimiter(s)
			require.NotNil(t, l)
			assert.InDelta(t, float64(tt.want), float64(l.Limit()), 1e-9)
			assert.Equal(t, 1, l.Burst())
		})
	}

	t.Run("sequential without rate", func(t *testing.T) {
		t.Parallel()
		s := &conf.Settings{}
		s.Backfill.TableWorkers = 1
		s.Backfill.InterRowDelay = time.Second
		assert.Nil(t, providerLimiter(s))
	})
}

func TestNewLogger_FileOutput(t *testing.T) {
	settings := &conf.Settings{Debug: true}
	settings.Logging.Level = "info"
	settings.Logging.File.Enabled = true
	settings.Logging.File.Path = filepath.Join(t.TempDir(), "logs", "imagebackfill.log")

	cl, err := NewLogger(settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.Module("test").Debug("debug message")
	require.NoError(t, cl.Flush())

	data, err := os.ReadFile(settings.Logging.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug message")
}
