package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps objects as files under root/<bucket>/<path>.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) resolve(uri string) (string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	rel := filepath.Join(loc.Bucket, filepath.FromSlash(loc.Path))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes the storage root", ErrInvalidURI, uri)
	}
	return filepath.Join(s.root, rel), nil
}

// Read implements Store.
func (s *FileStore) Read(ctx context.Context, uri string) ([]byte, error) {
	path, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return data, nil
}

// Write implements Store. The file is replaced atomically.
func (s *FileStore) Write(ctx context.Context, uri string, data []byte) error {
	path, err := s.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", uri, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	return nil
}
