package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wanderlist/imagebackfill/internal/logger"
)

// slowQueryThreshold is the duration after which gorm queries log at WARN.
const slowQueryThreshold = 500 * time.Millisecond

// GormStore implements Store for SQL databases reachable through gorm.
type GormStore struct {
	DB      *gorm.DB
	backend string
}

// NewGormStore wraps an open gorm connection. backend names the dialect in
// errors and logs.
func NewGormStore(db *gorm.DB, backend string) *GormStore {
	return &GormStore{DB: db, backend: backend}
}

// OpenSQLite opens the SQLite database at path.
func OpenSQLite(path string, log logger.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return NewGormStore(db, "sqlite"), nil
}

// OpenMySQL opens a MySQL connection from a go-sql-driver DSN.
func OpenMySQL(dsn string, log logger.Logger) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	return NewGormStore(db, "mysql"), nil
}

// ListRows returns every row of table with a NULL or empty image_url, ordered by id.
func (s *GormStore) ListRows(ctx context.Context, table string) ([]Row, error) {
	var rows []Row
	err := s.DB.WithContext(ctx).
		Table(table).
		Select("id", "name", "image_url").
		Where("image_url IS NULL OR image_url = ?", "").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fetchError(fmt.Errorf("list rows from %s: %w", table, err), s.backend, table)
	}
	return rows, nil
}

// PatchImageURL sets image_url on the row with the given id.
func (s *GormStore) PatchImageURL(ctx context.Context, table, rowID, url string) error {
	res := s.DB.WithContext(ctx).
		Table(table).
		Where("id = ?", rowID).
		Update("image_url", url)
	if res.Error != nil {
		return updateError(fmt.Errorf("update %s row %s: %w", table, rowID, res.Error), s.backend, table, rowID)
	}
	if res.RowsAffected == 0 {
		return updateError(fmt.Errorf("update %s row %s: %w", table, rowID, ErrRowNotFound), s.backend, table, rowID)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
