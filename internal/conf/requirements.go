package conf

import "strings"

// Requirement is a configuration value a run cannot start without.
type Requirement struct {
	Name  string
	Value string
}

// Requirements lists the values the configured backends need, in the order
// they should be reported when missing.
func (s *Settings) Requirements() []Requirement {
	var reqs []Requirement

	if s.Provider.Type == ProviderPexels {
		reqs = append(reqs, Requirement{"provider API key (PEXELS_API_KEY)", s.Provider.APIKey})
	}

	switch s.DataSource.Type {
	case DataSourceREST:
		reqs = append(reqs,
			Requirement{"data source URL (SUPABASE_URL)", s.DataSource.URL},
			Requirement{"data source credential (SUPABASE_SERVICE_ROLE_KEY)", s.DataSource.APIKey})
	default:
		reqs = append(reqs, Requirement{"data source DSN (DATABASE_URL)", s.DataSource.DSN})
	}

	reqs = append(reqs, Requirement{"storage bucket (STORAGE_BUCKET)", s.Storage.Bucket})

	switch s.Storage.Type {
	case StorageSupabase:
		reqs = append(reqs,
			Requirement{"storage URL", s.Storage.URL},
			Requirement{"storage credential", s.Storage.APIKey})
	case StorageS3:
		reqs = append(reqs,
			Requirement{"S3 endpoint", s.Storage.S3.Endpoint},
			Requirement{"S3 access key", s.Storage.S3.AccessKey},
			Requirement{"S3 secret key", s.Storage.S3.SecretKey})
	case StorageLocal:
		reqs = append(reqs, Requirement{"local storage path", s.Storage.LocalPath})
	}

	reqs = append(reqs, Requirement{"table scope (BACKFILL_TABLES)", strings.Join(s.Backfill.Tables, ",")})
	return reqs
}

// Missing returns the names of requirements with blank values.
func Missing(reqs []Requirement) []string {
	var missing []string
	for _, r := range reqs {
		if strings.TrimSpace(r.Value) == "" {
			missing = append(missing, r.Name)
		}
	}
	return missing
}
