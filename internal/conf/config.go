// config.go: settings struct for the image backfill service and functions to load it.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wanderlist/imagebackfill/internal/secrets"
)

// BackfillSettings controls the orchestrator.
type BackfillSettings struct {
	Tables        []string      // allow-list of target tables, processed in order
	PrimaryTable  string        // curated table that is never backfilled
	ChunkSize     int           // rows per chunk
	InterRowDelay time.Duration // pause after each successful row
	MaxChunks     int           // chunks per table per invocation, 0 = unlimited
	TableWorkers  int           // tables processed concurrently, 1 = sequential
}

// ProviderSettings configures the image search provider.
type ProviderSettings struct {
	Type       string        // pexels or wikimedia
	APIKey     string        // provider credential, not needed for wikimedia
	APIKeyFile string        // file holding APIKey, wins over APIKey
	BaseURL    string        // API base URL override
	PerPage    int           // results requested per search
	Selection  string        // first or random
	Seed       int64         // seed for random selection, 0 = time based
	RateLimit  float64       // requests per second shared by all workers, 0 = unlimited
	CacheTTL   time.Duration // query result cache lifetime, 0 = disabled
	ThumbSize  int           // wikimedia thumbnail width in pixels
	Timeout    time.Duration // per-request timeout
}

// FetchSettings configures the image downloader.
type FetchSettings struct {
	Timeout  time.Duration // per-download timeout
	MaxBytes int64         // largest accepted image body
}

// DataSourceSettings configures where rows are read and patched.
type DataSourceSettings struct {
	Type       string // rest, sqlite, mysql or postgres
	URL        string // REST project URL
	APIKey     string // REST service credential
	DSN        string // sqlite path, mysql DSN or postgres connection string
	APIKeyFile string
	DSNFile    string
	PageSize   int // REST paging size
}

// S3Settings configures an S3 compatible object store.
type S3Settings struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	SecretKeyFile string
	UseSSL        bool
}

// GCSSettings configures Google Cloud Storage.
type GCSSettings struct {
	CredentialsFile string // empty uses application default credentials
}

// StorageSettings configures the object store writer.
type StorageSettings struct {
	Type          string // supabase, s3, gcs or local
	Bucket        string
	PublicBaseURL string // base of public object URLs, derived per backend when empty
	URL           string // supabase project URL, defaults to datasource.url
	APIKey        string // supabase service credential, defaults to datasource.apikey
	APIKeyFile    string
	LocalPath     string // root directory for the local backend
	S3            S3Settings
	GCS           GCSSettings
}

// ServerSettings configures the HTTP trigger surface.
type ServerSettings struct {
	Listen string
	Debug  bool
}

// LoggingSettings configures log output.
type LoggingSettings struct {
	Level    string
	Timezone string
	File     struct {
		Enabled bool
		Path    string
	}
	ModuleLevels map[string]string
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	SentryDSN   string
	Environment string
}

// NotificationSettings configures run summary notifications.
type NotificationSettings struct {
	URLs  []string // shoutrrr service URLs
	Title string
}

// Settings contains all configuration for the service.
type Settings struct {
	Debug   bool
	Version string `yaml:"-"` // Version from build, runtime value

	Logging      LoggingSettings
	Backfill     BackfillSettings
	Provider     ProviderSettings
	Fetch        FetchSettings
	DataSource   DataSourceSettings
	Storage      StorageSettings
	Server       ServerSettings
	Telemetry    TelemetrySettings
	Notification NotificationSettings
}

// Load reads configuration from configFile, or from config.yaml in the
// default search paths when configFile is empty, applies environment
// overrides and validates the result. A missing config file is not an error.
func Load(configFile string) (*Settings, error) {
	return LoadWithFlags(configFile, nil)
}

// LoadWithFlags is Load with explicitly set command line flags taking
// precedence over environment and file values. See FlagKeys.
func LoadWithFlags(configFile string, flags *pflag.FlagSet) (*Settings, error) {
	v, err := initViper(configFile)
	if err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving credentials: %w", err)
	}
	normalizeSettings(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

func initViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
	}
	return v, nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "imagebackfill"))
	}
	return append(paths, "/etc/imagebackfill")
}

// resolveSecrets replaces credentials with the contents of their *File
// setting, or expands ${VAR} references in them.
func resolveSecrets(s *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"provider.apikey", s.Provider.APIKeyFile, &s.Provider.APIKey},
		{"datasource.apikey", s.DataSource.APIKeyFile, &s.DataSource.APIKey},
		{"datasource.dsn", s.DataSource.DSNFile, &s.DataSource.DSN},
		{"storage.apikey", s.Storage.APIKeyFile, &s.Storage.APIKey},
		{"storage.s3.secretkey", s.Storage.S3.SecretKeyFile, &s.Storage.S3.SecretKey},
		{"telemetry.sentrydsn", "", &s.Telemetry.SentryDSN},
	}
	for _, f := range fields {
		v, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = v
	}
	return nil
}

// normalizeSettings trims list values and fills settings derived from others.
func normalizeSettings(s *Settings) {
	tables := make([]string, 0, len(s.Backfill.Tables))
	for _, t := range s.Backfill.Tables {
		// env values arrive as one comma separated string
		for part := range strings.SplitSeq(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tables = append(tables, part)
			}
		}
	}
	s.Backfill.Tables = tables

	s.Provider.Type = strings.ToLower(strings.TrimSpace(s.Provider.Type))
	s.Provider.Selection = strings.ToLower(strings.TrimSpace(s.Provider.Selection))
	s.DataSource.Type = strings.ToLower(strings.TrimSpace(s.DataSource.Type))
	s.Storage.Type = strings.ToLower(strings.TrimSpace(s.Storage.Type))

	s.DataSource.URL = strings.TrimRight(s.DataSource.URL, "/")
	if s.Storage.URL == "" {
		s.Storage.URL = s.DataSource.URL
	}
	s.Storage.URL = strings.TrimRight(s.Storage.URL, "/")
	if s.Storage.APIKey == "" {
		s.Storage.APIKey = s.DataSource.APIKey
	}
	if s.Provider.BaseURL == "" {
		s.Provider.BaseURL = defaultProviderBaseURL(s.Provider.Type)
	}
	s.Storage.PublicBaseURL = strings.TrimRight(s.Storage.PublicBaseURL, "/")
	if s.Storage.PublicBaseURL == "" {
		s.Storage.PublicBaseURL = derivePublicBaseURL(&s.Storage)
	}
}

func defaultProviderBaseURL(providerType string) string {
	switch providerType {
	case ProviderWikimedia:
		return "https://en.wikipedia.org/w/api.php"
	default:
		return "https://api.pexels.com/v1"
	}
}

// derivePublicBaseURL returns the URL prefix under which {bucket}/{key} is public.
func derivePublicBaseURL(s *StorageSettings) string {
	switch s.Type {
	case StorageSupabase:
		if s.URL == "" {
			return ""
		}
		return s.URL + "/storage/v1/object/public"
	case StorageS3:
		if s.S3.Endpoint == "" {
			return ""
		}
		scheme := "http"
		if s.S3.UseSSL {
			scheme = "https"
		}
		return scheme + "://" + s.S3.Endpoint
	case StorageGCS:
		return "https://storage.googleapis.com"
	case StorageLocal:
		if s.LocalPath == "" {
			return ""
		}
		abs, err := filepath.Abs(s.LocalPath)
		if err != nil {
			abs = s.LocalPath
		}
		return "file://" + filepath.ToSlash(abs)
	}
	return ""
}

// Redacted returns a YAML dump of the settings with credentials masked.
func (s *Settings) Redacted() (string, error) {
	c := *s
	mask := func(v *string) {
		if *v != "" {
			*v = "********"
		}
	}
	mask(&c.Provider.APIKey)
	mask(&c.DataSource.APIKey)
	mask(&c.DataSource.DSN)
	mask(&c.Storage.APIKey)
	mask(&c.Storage.S3.SecretKey)
	mask(&c.Telemetry.SentryDSN)
	c.Notification.URLs = nil

	out, err := yaml.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("error marshaling settings: %w", err)
	}
	return string(out), nil
}
