// conf/validate.go

package conf

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// tableNamePattern restricts table names to plain SQL identifiers.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxPerPage is the largest page size accepted by the supported providers.
const maxPerPage = 80

// ValidateSettings checks the shape of the settings. Missing credentials are
// not validation errors; see Settings.Requirements.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateBackfillSettings(&settings.Backfill)...)
	ve.Errors = append(ve.Errors, validateProviderSettings(&settings.Provider)...)
	ve.Errors = append(ve.Errors, validateDataSourceSettings(&settings.DataSource)...)
	ve.Errors = append(ve.Errors, validateStorageSettings(&settings.Storage)...)

	if settings.Fetch.MaxBytes <= 0 {
		ve.Errors = append(ve.Errors, "fetch.maxbytes must be greater than zero")
	}
	if strings.TrimSpace(settings.Server.Listen) == "" {
		ve.Errors = append(ve.Errors, "server.listen must not be empty")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBackfillSettings(b *BackfillSettings) []string {
	var errs []string
	if b.ChunkSize <= 0 {
		errs = append(errs, fmt.Sprintf("backfill.chunksize must be greater than zero, got %d", b.ChunkSize))
	}
	if b.InterRowDelay < 0 {
		errs = append(errs, "backfill.interrowdelay must not be negative")
	}
	if b.MaxChunks < 0 {
		errs = append(errs, "backfill.maxchunks must not be negative")
	}
	if b.TableWorkers < 1 {
		errs = append(errs, fmt.Sprintf("backfill.tableworkers must be at least 1, got %d", b.TableWorkers))
	}
	for _, t := range b.Tables {
		if !tableNamePattern.MatchString(t) {
			errs = append(errs, fmt.Sprintf("backfill.tables contains invalid table name %q", t))
		}
	}
	return errs
}

func validateProviderSettings(p *ProviderSettings) []string {
	var errs []string
	if !slices.Contains([]string{ProviderPexels, ProviderWikimedia}, p.Type) {
		errs = append(errs, fmt.Sprintf("provider.type must be %s or %s, got %q", ProviderPexels, ProviderWikimedia, p.Type))
	}
	if !slices.Contains([]string{SelectionFirst, SelectionRandom}, p.Selection) {
		errs = append(errs, fmt.Sprintf("provider.selection must be %s or %s, got %q", SelectionFirst, SelectionRandom, p.Selection))
	}
	if p.PerPage < 1 || p.PerPage > maxPerPage {
		errs = append(errs, fmt.Sprintf("provider.perpage must be between 1 and %d, got %d", maxPerPage, p.PerPage))
	}
	if p.RateLimit < 0 {
		errs = append(errs, "provider.ratelimit must not be negative")
	}
	if p.CacheTTL < 0 {
		errs = append(errs, "provider.cachettl must not be negative")
	}
	return errs
}

func validateDataSourceSettings(d *DataSourceSettings) []string {
	var errs []string
	switch d.Type {
	case DataSourceREST:
		if d.PageSize <= 0 {
			errs = append(errs, "datasource.pagesize must be greater than zero")
		}
	case DataSourceSQLite, DataSourceMySQL, DataSourcePostgres:
	default:
		errs = append(errs, fmt.Sprintf("datasource.type %q is not supported", d.Type))
	}
	return errs
}

func validateStorageSettings(s *StorageSettings) []string {
	switch s.Type {
	case StorageSupabase, StorageS3, StorageGCS, StorageLocal:
		return nil
	default:
		return []string{fmt.Sprintf("storage.type %q is not supported", s.Type)}
	}
}
