package objectstore

import (
	"context"

	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
)

// New creates the writer selected by settings.Type. client is used by the
// supabase backend only. Writers holding resources implement io.Closer.
func New(ctx context.Context, settings *conf.StorageSettings, client *httpclient.Client) (Writer, error) {
	switch settings.Type {
	case conf.StorageSupabase:
		return NewSupabaseWriter(client, settings.URL, settings.APIKey, settings.PublicBaseURL), nil
	case conf.StorageS3:
		return NewS3Writer(S3Config{
			Endpoint:  settings.S3.Endpoint,
			Region:    settings.S3.Region,
			AccessKey: settings.S3.AccessKey,
			SecretKey: settings.S3.SecretKey,
			UseSSL:    settings.S3.UseSSL,
		}, settings.PublicBaseURL)
	case conf.StorageGCS:
		return NewGCSWriter(ctx, settings.GCS.CredentialsFile, settings.PublicBaseURL)
	case conf.StorageLocal:
		return NewLocalWriter(settings.LocalPath, settings.PublicBaseURL)
	default:
		return nil, errors.Newf("unsupported storage type %q", settings.Type).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
}
