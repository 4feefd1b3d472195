package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage stores objects as files in directory.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates storage in specified directory.
func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{dir: dir}
}

// Path returns filesystem path of object.
func (s *LocalStorage) Path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader) error {
	target, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
		return err
	}
	file, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(file.Name()) }()
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(file.Name(), target)
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notExistError{key: key}
		}
		return nil, err
	}
	return file, nil
}

var _ Storage = (*LocalStorage)(nil)
