// Package storage reads and writes run documents addressed by URI:
// file://, gs:// and sqlite://.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidURI is returned for URIs not of the form scheme://bucket/path.
	ErrInvalidURI = errors.New("invalid storage uri")
	// ErrUnsupportedScheme is returned when no store handles a scheme.
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
)

// Store reads and writes whole objects.
type Store interface {
	Read(ctx context.Context, uri string) ([]byte, error)
	Write(ctx context.Context, uri string, data []byte) error
}

// Location is a parsed storage URI.
type Location struct {
	Scheme string
	Bucket string
	Path   string
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Path
}

// ParseURI splits scheme://bucket/path/file. Both bucket and path are
// required.
func ParseURI(uri string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	loc := Location{
		Scheme: strings.ToLower(u.Scheme),
		Bucket: u.Host,
		Path:   strings.TrimPrefix(u.Path, "/"),
	}
	if loc.Scheme == "" || loc.Bucket == "" || loc.Path == "" || strings.HasSuffix(loc.Path, "/") {
		return Location{}, fmt.Errorf("%w: expected scheme://bucket/path/file, got %q", ErrInvalidURI, uri)
	}
	return loc, nil
}

// Mux routes URIs to a Store by scheme.
type Mux struct {
	stores map[string]Store
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{stores: make(map[string]Store)}
}

// Handle registers store for scheme.
func (m *Mux) Handle(scheme string, store Store) {
	m.stores[strings.ToLower(scheme)] = store
}

// Schemes lists the registered schemes.
func (m *Mux) Schemes() []string {
	out := make([]string, 0, len(m.stores))
	for s := range m.stores {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (m *Mux) route(uri string) (Store, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	store, ok := m.stores[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
	}
	return store, nil
}

// Read reads the object at uri.
func (m *Mux) Read(ctx context.Context, uri string) ([]byte, error) {
	store, err := m.route(uri)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, uri)
}

// Write writes data to uri.
func (m *Mux) Write(ctx context.Context, uri string, data []byte) error {
	store, err := m.route(uri)
	if err != nil {
		return err
	}
	return store.Write(ctx, uri, data)
}
