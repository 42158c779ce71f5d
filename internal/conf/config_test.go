package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a YAML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, settings.Backfill.ChunkSize)
	assert.Equal(t, 500*time.Millisecond, settings.Backfill.InterRowDelay)
	assert.Equal(t, "activities", settings.Backfill.PrimaryTable)
	assert.Equal(t, 1, settings.Backfill.TableWorkers)
	assert.Equal(t, DefaultBucket, settings.Storage.Bucket)
	assert.Equal(t, ProviderPexels, settings.Provider.Type)
	assert.Equal(t, SelectionFirst, settings.Provider.Selection)
	assert.Equal(t, "https://api.pexels.com/v1", settings.Provider.BaseURL)
	assert.Equal(t, 5, settings.Provider.PerPage)
	assert.Empty(t, settings.Backfill.Tables)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
backfill:
  tables: [neighborhoods, parks]
  chunksize: 25
  interrowdelay: 2s
provider:
  type: wikimedia
  selection: random
  perpage: 8
datasource:
  type: rest
  url: https://project.supabase.co/
  apikey: service-key
storage:
  type: supabase
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"neighborhoods", "parks"}, settings.Backfill.Tables)
	assert.Equal(t, 25, settings.Backfill.ChunkSize)
	assert.Equal(t, 2*time.Second, settings.Backfill.InterRowDelay)
	assert.Equal(t, ProviderWikimedia, settings.Provider.Type)
	assert.Equal(t, "https://en.wikipedia.org/w/api.php", settings.Provider.BaseURL)
	assert.Equal(t, SelectionRandom, settings.Provider.Selection)

	// storage inherits the project URL and credential from the data source
	assert.Equal(t, "https://project.supabase.co", settings.DataSource.URL)
	assert.Equal(t, "https://project.supabase.co", settings.Storage.URL)
	assert.Equal(t, "service-key", settings.Storage.APIKey)
	assert.Equal(t, "https://project.supabase.co/storage/v1/object/public", settings.Storage.PublicBaseURL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PEXELS_API_KEY", "pexels-key")
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "env-key")
	t.Setenv("STORAGE_BUCKET", "custom-bucket")
	t.Setenv("BACKFILL_TABLES", "neighborhoods, restaurants")
	t.Setenv("IMAGEBACKFILL_BACKFILL_CHUNKSIZE", "3")
	t.Setenv("BACKFILL_INTER_ROW_DELAY", "0s")

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pexels-key", settings.Provider.APIKey)
	assert.Equal(t, "https://env.supabase.co", settings.DataSource.URL)
	assert.Equal(t, "env-key", settings.DataSource.APIKey)
	assert.Equal(t, "custom-bucket", settings.Storage.Bucket)
	assert.Equal(t, []string{"neighborhoods", "restaurants"}, settings.Backfill.Tables)
	assert.Equal(t, 3, settings.Backfill.ChunkSize)
	assert.Equal(t, time.Duration(0), settings.Backfill.InterRowDelay)
	assert.Empty(t, Missing(settings.Requirements()))
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKFILL_CHUNK_SIZE", "zero")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKFILL_CHUNK_SIZE")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
backfill:
  chunksize: 0
  tables: ["drop table"]
provider:
  type: flickr
`)

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestRequirements(t *testing.T) {
	t.Parallel()

	s := &Settings{
		Provider:   ProviderSettings{Type: ProviderPexels},
		DataSource: DataSourceSettings{Type: DataSourceREST, URL: "https://x.supabase.co"},
		Storage:    StorageSettings{Type: StorageSupabase, Bucket: DefaultBucket, URL: "https://x.supabase.co"},
		Backfill:   BackfillSettings{Tables: []string{"parks"}},
	}

	missing := Missing(s.Requirements())
	assert.Equal(t, []string{
		"provider API key (PEXELS_API_KEY)",
		"data source credential (SUPABASE_SERVICE_ROLE_KEY)",
		"storage credential",
	}, missing)

	// wikimedia needs no key and sqlite needs only a DSN
	s.Provider.Type = ProviderWikimedia
	s.DataSource = DataSourceSettings{Type: DataSourceSQLite, DSN: "file.db"}
	s.Storage = StorageSettings{Type: StorageLocal, Bucket: DefaultBucket, LocalPath: "/tmp/x"}
	assert.Empty(t, Missing(s.Requirements()))

	s.Backfill.Tables = nil
	assert.Equal(t, []string{"table scope (BACKFILL_TABLES)"}, Missing(s.Requirements()))
}

func TestDerivePublicBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings StorageSettings
		want     string
	}{
		{"supabase", StorageSettings{Type: StorageSupabase, URL: "https://p.supabase.co"}, "https://p.supabase.co/storage/v1/object/public"},
		{"supabase without url", StorageSettings{Type: StorageSupabase}, ""},
		{"s3 tls", StorageSettings{Type: StorageS3, S3: S3Settings{Endpoint: "s3.example.com", UseSSL: true}}, "https://s3.example.com"},
		{"s3 plain", StorageSettings{Type: StorageS3, S3: S3Settings{Endpoint: "minio:9000"}}, "http://minio:9000"},
		{"gcs", StorageSettings{Type: StorageGCS}, "https://storage.googleapis.com"},
		{"local", StorageSettings{Type: StorageLocal, LocalPath: "/srv/objects"}, "file:///srv/objects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, derivePublicBaseURL(&tt.settings))
		})
	}
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{
		Provider:   ProviderSettings{APIKey: "pexels-secret"},
		DataSource: DataSourceSettings{APIKey: "service-secret"},
	}
	out, err := s.Redacted()
	require.NoError(t, err)
	assert.NotContains(t, out, "pexels-secret")
	assert.NotContains(t, out, "service-secret")
	assert.Contains(t, out, "********")
}

func TestLoadWithFlags_ExplicitFlagsWin(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKFILL_CHUNK_SIZE", "3")
	t.Setenv("BACKFILL_TABLES", "neighborhoods")

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.StringSlice("table", nil, "")
	flags.Int("chunk-size", 10, "")
	flags.Duration("delay", time.Second, "")
	flags.Int("unrelated", 0, "")
	require.NoError(t, flags.Parse([]string{"--chunk-size=7", "--table=parks,museums"}))

	settings, err := LoadWithFlags("", flags)
	require.NoError(t, err)

	assert.Equal(t, 7, settings.Backfill.ChunkSize, "explicit flag beats env")
	assert.Equal(t, []string{"parks", "museums"}, settings.Backfill.Tables)
	assert.Equal(t, 500*time.Millisecond, settings.Backfill.InterRowDelay, "unset flag keeps the default")
}

func TestLoadWithFlags_InvalidOverrideFailsValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Int("workers", 1, "")
	require.NoError(t, flags.Parse([]string{"--workers=0"}))

	_, err := LoadWithFlags("", flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tableworkers")
}

func TestLoad_CredentialsFromFilesAndReferences(t *testing.T) {
	t.Chdir(t.TempDir())

	keyFile := filepath.Join(t.TempDir(), "pexels_key")
	require.NoError(t, os.WriteFile(keyFile, []byte("key-from-file\n"), 0o600))

	t.Setenv("PEXELS_API_KEY", "ignored-when-file-set")
	t.Setenv("PEXELS_API_KEY_FILE", keyFile)
	t.Setenv("BACKFILL_TEST_DB_PASSWORD", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://app:${BACKFILL_TEST_DB_PASSWORD}@db:5432/app")

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key-from-file", settings.Provider.APIKey)
	assert.Equal(t, "postgres://app:s3cret@db:5432/app", settings.DataSource.DSN)
}

func TestLoad_UnresolvedCredentialReference(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "${BACKFILL_TEST_NOT_SET}")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datasource.apikey")
	assert.Contains(t, err.Error(), "BACKFILL_TEST_NOT_SET")
}
