package datastore

import (
	"context"

	"github.com/wanderlist/imagebackfill/internal/conf"
	"github.com/wanderlist/imagebackfill/internal/errors"
	"github.com/wanderlist/imagebackfill/internal/httpclient"
	"github.com/wanderlist/imagebackfill/internal/logger"
)

// New opens the store selected by settings.Type. client is used by the REST
// backend only.
func New(ctx context.Context, settings *conf.DataSourceSettings, client *httpclient.Client, log logger.Logger) (Store, error) {
	switch settings.Type {
	case conf.DataSourceREST:
		return NewRESTStore(client, settings.URL, settings.APIKey, settings.PageSize), nil
	case conf.DataSourceSQLite:
		return OpenSQLite(settings.DSN, log)
	case conf.DataSourceMySQL:
		return OpenMySQL(settings.DSN, log)
	case conf.DataSourcePostgres:
		return OpenPostgres(ctx, settings.DSN)
	default:
		return nil, errors.Newf("unsupported data source type %q", settings.Type).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
}
