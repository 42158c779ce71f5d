// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every automatically bound environment variable,
// e.g. IMAGEBACKFILL_BACKFILL_CHUNKSIZE.
const EnvPrefix = "IMAGEBACKFILL"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVars   []string           // Environment variable names, first match wins
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the well-known environment names accepted in
// addition to the prefixed automatic ones.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"provider.apikey", []string{"PEXELS_API_KEY"}, nil},
		{"provider.apikeyfile", []string{"PEXELS_API_KEY_FILE"}, nil},
		{"datasource.url", []string{"SUPABASE_URL"}, validateEnvURL},
		{"datasource.apikey", []string{"SUPABASE_SERVICE_ROLE_KEY"}, nil},
		{"datasource.apikeyfile", []string{"SUPABASE_SERVICE_ROLE_KEY_FILE"}, nil},
		{"datasource.dsn", []string{"DATABASE_URL"}, nil},
		{"datasource.dsnfile", []string{"DATABASE_URL_FILE"}, nil},
		{"storage.bucket", []string{"STORAGE_BUCKET"}, nil},
		{"backfill.tables", []string{"BACKFILL_TABLES"}, nil},
		{"backfill.chunksize", []string{"BACKFILL_CHUNK_SIZE"}, validateEnvPositiveInt},
		{"backfill.interrowdelay", []string{"BACKFILL_INTER_ROW_DELAY"}, validateEnvDuration},
		{"telemetry.sentrydsn", []string{"SENTRY_DSN"}, nil},
	}
}

// prefixedEnv returns the automatic env name for a config key.
func prefixedEnv(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		// Keep the prefixed name first so it wins over the well-known alias
		names := append([]string{binding.ConfigKey, prefixedEnv(binding.ConfigKey)}, binding.EnvVars...)
		if err := v.BindEnv(names...); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.ConfigKey, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		for _, name := range names[1:] {
			if envValue := os.Getenv(name); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", name, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration, expected a value like 500ms or 2s: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative, got %s", d)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
