// Package datastore reads rows that lack an image and patches their image URL.
//
// Backends: PostgREST over HTTP (Supabase), SQLite and MySQL through gorm,
// and PostgreSQL through a pgx pool. Every backend returns only rows whose
// image_url is NULL or empty, ordered by id.
package datastore

import (
	"context"

	"github.com/wanderlist/imagebackfill/internal/errors"
)

// Row is one entity needing an image. ID is opaque text so integer, UUID and
// string keys are all carried unchanged.
type Row struct {
	ID       string  `json:"id" gorm:"column:id" db:"id"`
	Name     string  `json:"name" gorm:"column:name" db:"name"`
	ImageURL *string `json:"image_url" gorm:"column:image_url" db:"image_url"`
}

// RowSource lists the rows of a table that are missing an image.
type RowSource interface {
	ListRows(ctx context.Context, table string) ([]Row, error)
}

// RowUpdater sets the image URL of a single row.
type RowUpdater interface {
	PatchImageURL(ctx context.Context, table, rowID, url string) error
}

// Store is a backend that can both list and patch rows.
type Store interface {
	RowSource
	RowUpdater
	Close() error
}

// ErrRowNotFound is returned by PatchImageURL when no row has the given id.
var ErrRowNotFound = errors.NewStd("row not found")

const componentName = "datastore"

func fetchError(err error, backend, table string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryRowFetch).
		Context("backend", backend).
		Context("table", table).
		Build()
}

func updateError(err error, backend, table, rowID string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryRowUpdate).
		Context("backend", backend).
		Context("table", table).
		Context("row_id", rowID).
		Build()
}
