// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Provider, data source and storage backend identifiers.
const (
	ProviderPexels    = "pexels"
	ProviderWikimedia = "wikimedia"

	SelectionFirst  = "first"
	SelectionRandom = "random"

	DataSourceREST     = "rest"
	DataSourceSQLite   = "sqlite"
	DataSourceMySQL    = "mysql"
	DataSourcePostgres = "postgres"

	StorageSupabase = "supabase"
	StorageS3       = "s3"
	StorageGCS      = "gcs"
	StorageLocal    = "local"

	// DefaultBucket is the bucket images are written to when none is configured.
	DefaultBucket = "activity-images"
)

// setDefaultConfig registers default values. Every key the service reads is
// listed here so environment overrides are picked up on Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/imagebackfill.log")
	v.SetDefault("logging.modulelevels", map[string]string{})

	v.SetDefault("backfill.tables", []string{})
	v.SetDefault("backfill.primarytable", "activities")
	v.SetDefault("backfill.chunksize", 10)
	v.SetDefault("backfill.interrowdelay", 500*time.Millisecond)
	v.SetDefault("backfill.maxchunks", 0)
	v.SetDefault("backfill.tableworkers", 1)

	v.SetDefault("provider.type", ProviderPexels)
	v.SetDefault("provider.apikey", "")
	v.SetDefault("provider.apikeyfile", "")
	v.SetDefault("provider.baseurl", "")
	v.SetDefault("provider.perpage", 5)
	v.SetDefault("provider.selection", SelectionFirst)
	v.SetDefault("provider.seed", 0)
	v.SetDefault("provider.ratelimit", 0.0)
	v.SetDefault("provider.cachettl", time.Duration(0))
	v.SetDefault("provider.thumbsize", 1024)
	v.SetDefault("provider.timeout", 15*time.Second)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.maxbytes", 20<<20)

	v.SetDefault("datasource.type", DataSourceREST)
	v.SetDefault("datasource.url", "")
	v.SetDefault("datasource.apikey", "")
	v.SetDefault("datasource.dsn", "")
	v.SetDefault("datasource.apikeyfile", "")
	v.SetDefault("datasource.dsnfile", "")
	v.SetDefault("datasource.pagesize", 1000)

	v.SetDefault("storage.type", StorageSupabase)
	v.SetDefault("storage.bucket", DefaultBucket)
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.apikey", "")
	v.SetDefault("storage.apikeyfile", "")
	v.SetDefault("storage.localpath", "data/objects")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.accesskey", "")
	v.SetDefault("storage.s3.secretkey", "")
	v.SetDefault("storage.s3.secretkeyfile", "")
	v.SetDefault("storage.s3.usessl", true)
	v.SetDefault("storage.gcs.credentialsfile", "")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.debug", false)

	v.SetDefault("telemetry.sentrydsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.title", "Image backfill")
}
