// Package storage persists check reports and simulation logs.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/udovin/robojudge/internal/config"
)

// Storage represents key-value storage for run artifacts.
//
// Keys are slash-separated relative paths like "checker_report.json".
type Storage interface {
	// Put replaces object with specified key.
	Put(ctx context.Context, key string, r io.Reader) error
	// Get returns reader for object with specified key.
	//
	// If object does not exist, returned error wraps os.ErrNotExist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewStorage creates storage from config.
func NewStorage(cfg config.Storage) (Storage, error) {
	switch options := cfg.Options.(type) {
	case config.LocalStorageOptions:
		return NewLocalStorage(options.FilesDir), nil
	case config.S3StorageOptions:
		return NewS3Storage(options), nil
	case nil:
		return nil, fmt.Errorf("storage options are not specified")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", options.Driver())
	}
}

// ReadAll reads whole object.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	r, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// cleanKey validates key and returns its canonical form.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

type notExistError struct {
	key string
}

func (e notExistError) Error() string {
	return fmt.Sprintf("object %q does not exist", e.key)
}

func (e notExistError) Unwrap() error {
	return os.ErrNotExist
}
