package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	localBackend = "local"

	dirPermissions  = 0o755
	filePermissions = 0o644
)

// LocalWriter stores objects as files under {root}/{bucket}/{key}. Writes go
// to a temporary file first and are renamed into place.
type LocalWriter struct {
	root       string
	publicBase string
}

// NewLocalWriter creates a writer rooted at root. An empty publicBase yields
// file:// URLs.
func NewLocalWriter(root, publicBase string) (*LocalWriter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local storage path %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create local storage path %q: %w", abs, err)
	}
	if publicBase == "" {
		publicBase = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return &LocalWriter{root: abs, publicBase: publicBase}, nil
}

// Put implements Writer.
func (l *LocalWriter) Put(ctx context.Context, bucket, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storageError(err, localBackend, bucket, key)
	}

	target, err := l.objectPath(bucket, key)
	if err != nil {
		return "", storageError(err, localBackend, bucket, key)
	}
	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return "", storageError(fmt.Errorf("failed to create object directory: %w", err), localBackend, bucket, key)
	}

	err = atomicWriteFile(target, ".upload-*.tmp", filePermissions, func(f *os.File) error {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write object: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", storageError(err, localBackend, bucket, key)
	}
	return PublicURL(l.publicBase, bucket, key), nil
}

// objectPath resolves bucket/key below the root, rejecting escapes.
func (l *LocalWriter) objectPath(bucket, key string) (string, error) {
	target := filepath.Join(l.root, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object path %q escapes storage root", filepath.Join(bucket, key))
	}
	return target, nil
}

// atomicWriteFile writes to a temp file in the target directory and renames
// it over targetPath once synced.
func atomicWriteFile(targetPath, tempPattern string, perm os.FileMode, write func(*os.File) error) error {
	tempFile, err := os.CreateTemp(filepath.Dir(targetPath), tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := write(tempFile); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	success = true
	return nil
}
