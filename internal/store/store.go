// Package store provides the document stores that hold property records.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/db"
	"github.com/evcraddock/property-sync/internal/property"
)

const (
	// DefaultURI is used when no connection descriptor is configured.
	DefaultURI = "mongodb://localhost:27017"
	// DefaultDatabase is the Mongo database holding the collection.
	DefaultDatabase = "real_estate"
	// DefaultCollection is the collection of property records.
	DefaultCollection = "property_data"
)

// ErrNotFound is returned by FindOne when no record matches.
var ErrNotFound = errors.New("record not found")

// Filter selects records by external id.
type Filter struct {
	ExternalID string
}

// UpdateResult reports what UpdateOne changed.
type UpdateResult struct {
	Matched    int64
	Modified   int64
	UpsertedID string
}

// Store is the storage handle consumed by the sync engine.
//
// Implementations reject a second record with the same external id with a
// KindStorageConflict error, report connection and operation failures as
// KindStorageUnavailable, and report deadlines as KindTimeout.
type Store interface {
	FindOne(ctx context.Context, f Filter) (*property.Record, error)
	Insert(ctx context.Context, rec *property.Record) (string, error)
	UpdateOne(ctx context.Context, f Filter, rec *property.Record, upsert bool) (UpdateResult, error)
	Close(ctx context.Context) error
}

// Config describes how to reach the store.
type Config struct {
	// URI selects the backend: mongodb:// and mongodb+srv:// for MongoDB,
	// sqlite://<path> or file:<path> for the embedded store. Empty means
	// DefaultURI.
	URI        string
	Database   string
	Collection string
	// Timeout bounds each storage operation. Zero disables it.
	Timeout time.Duration
}

// Open connects to the store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		uri = DefaultURI
	}

	var s Store
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		database := cfg.Database
		if database == "" {
			database = DefaultDatabase
		}
		collection := cfg.Collection
		if collection == "" {
			collection = DefaultCollection
		}
		m, err := OpenMongo(ctx, uri, database, collection)
		if err != nil {
			return nil, err
		}
		s = m
	case strings.HasPrefix(uri, "sqlite://"), strings.HasPrefix(uri, "file:"):
		path := strings.TrimPrefix(strings.TrimPrefix(uri, "sqlite://"), "file:")
		if path == "" {
			var err error
			if path, err = db.DefaultPath(); err != nil {
				return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "resolving sqlite path")
			}
		}
		d, err := db.Open(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "opening sqlite store")
		}
		s = NewSQLite(d)
	default:
		return nil, apperr.Errorf(apperr.KindInvalidRequest, "unsupported store URI %q", uri)
	}

	if cfg.Timeout > 0 {
		s = WithTimeout(s, cfg.Timeout)
	}
	return s, nil
}

// timeoutStore bounds every call to the wrapped store.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps s so each operation runs under its own deadline.
func WithTimeout(s Store, d time.Duration) Store {
	return &timeoutStore{next: s, timeout: d}
}

func (t *timeoutStore) FindOne(ctx context.Context, f Filter) (*property.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.FindOne(ctx, f)
}

func (t *timeoutStore) Insert(ctx context.Context, rec *property.Record) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Insert(ctx, rec)
}

func (t *timeoutStore) UpdateOne(ctx context.Context, f Filter, rec *property.Record, upsert bool) (UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.UpdateOne(ctx, f, rec, upsert)
}

func (t *timeoutStore) Close(ctx context.Context) error {
	return t.next.Close(ctx)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
