package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	gcs "cloud.google.com/go/storage"
)

// GCSStore reads and writes gs://bucket/path objects. The client is created
// on first use with application default credentials.
type GCSStore struct {
	once   sync.Once
	client *gcs.Client
	err    error
}

// NewGCSStore creates a GCSStore.
func NewGCSStore() *GCSStore {
	return &GCSStore{}
}

func (s *GCSStore) object(ctx context.Context, uri string) (*gcs.ObjectHandle, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		s.client, s.err = gcs.NewClient(context.WithoutCancel(ctx))
	})
	if s.err != nil {
		return nil, fmt.Errorf("creating storage client: %w", s.err)
	}
	return s.client.Bucket(loc.Bucket).Object(loc.Path), nil
}

// Read implements Store.
func (s *GCSStore) Read(ctx context.Context, uri string) ([]byte, error) {
	obj, err := s.object(ctx, uri)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Write implements Store.
func (s *GCSStore) Write(ctx context.Context, uri string, data []byte) error {
	obj, err := s.object(ctx, uri)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	return nil
}

// Close releases the client if one was created.
func (s *GCSStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
