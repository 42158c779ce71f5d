package datastore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to PostgreSQL using a libpq style connection string or URL.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// ListRows returns every row of table with a NULL or empty image_url, ordered by id.
// Ids are cast to text so any key type is carried unchanged.
func (s *PostgresStore) ListRows(ctx context.Context, table string) ([]Row, error) {
	q := fmt.Sprintf(`SELECT id::text AS id, COALESCE(name, '') AS name, image_url
		FROM %s
		WHERE image_url IS NULL OR image_url = ''
		ORDER BY id`, pgx.Identifier{table}.Sanitize())

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fetchError(fmt.Errorf("query %s: %w", table, err), "postgres", table)
	}

	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[Row])
	if err != nil {
		return nil, fetchError(fmt.Errorf("scan %s: %w", table, err), "postgres", table)
	}
	return out, nil
}

// PatchImageURL sets image_url on the row with the given id.
func (s *PostgresStore) PatchImageURL(ctx context.Context, table, rowID, url string) error {
	q := fmt.Sprintf(`UPDATE %s SET image_url = $1 WHERE id::text = $2`, pgx.Identifier{table}.Sanitize())

	tag, err := s.pool.Exec(ctx, q, url, rowID)
	if err != nil {
		return updateError(fmt.Errorf("update %s row %s: %w", table, rowID, err), "postgres", table, rowID)
	}
	if tag.RowsAffected() == 0 {
		return updateError(fmt.Errorf("update %s row %s: %w", table, rowID, ErrRowNotFound), "postgres", table, rowID)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
