package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/db"
	"github.com/evcraddock/property-sync/internal/property"
)

func TestSQLiteInsertAndFind(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, &property.Record{
		ExternalID: "48749425",
		Address:    "2114 Bigelow Ave N",
		PostalCode: "98109",
		Attributes: map[string]any{"zestimate.amount": "1219500", "bedrooms": float64(4)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.FindOne(ctx, Filter{ExternalID: "48749425"})
	require.NoError(t, err)
	assert.Equal(t, "2114 Bigelow Ave N", got.Address)
	assert.Equal(t, "98109", got.PostalCode)
	assert.Equal(t, map[string]any{"zestimate.amount": "1219500", "bedrooms": float64(4)}, got.Attributes)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSQLiteFindNotFound(t *testing.T) {
	s := testSQLite(t)

	_, err := s.FindOne(context.Background(), Filter{ExternalID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteInsertDuplicate(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()
	rec := &property.Record{ExternalID: "dupe"}

	_, err := s.Insert(ctx, rec)
	require.NoError(t, err)

	_, err = s.Insert(ctx, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorageConflict)
}

func TestSQLiteUpdateOne(t *testing.T) {
	tests := []struct {
		name        string
		seed        bool
		upsert      bool
		wantMatched int64
		wantUpsert  bool
		wantStored  bool
	}{
		{"existing record", true, false, 1, false, true},
		{"existing record with upsert", true, true, 1, false, true},
		{"missing record without upsert", false, false, 0, false, false},
		{"missing record with upsert", false, true, 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSQLite(t)
			ctx := context.Background()

			if tt.seed {
				_, err := s.Insert(ctx, &property.Record{
					ExternalID: "1",
					Address:    "old",
					Attributes: map[string]any{"price": float64(100), "beds": float64(3)},
				})
				require.NoError(t, err)
			}

			res, err := s.UpdateOne(ctx, Filter{ExternalID: "1"}, &property.Record{
				ExternalID: "1",
				Address:    "new",
				Attributes: map[string]any{"price": float64(120)},
			}, tt.upsert)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, res.Matched)
			assert.Equal(t, tt.wantUpsert, res.UpsertedID != "")

			got, err := s.FindOne(ctx, Filter{ExternalID: "1"})
			if !tt.wantStored {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "new", got.Address)
			assert.Equal(t, map[string]any{"price": float64(120)}, got.Attributes)
		})
	}
}

func TestSQLiteUpdateKeepsExternalID(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, &property.Record{ExternalID: "keep"})
	require.NoError(t, err)

	_, err = s.UpdateOne(ctx, Filter{ExternalID: "keep"}, &property.Record{ExternalID: "other", Address: "x"}, false)
	require.NoError(t, err)

	got, err := s.FindOne(ctx, Filter{ExternalID: "keep"})
	require.NoError(t, err)
	assert.Equal(t, "x", got.Address)

	_, err = s.FindOne(ctx, Filter{ExternalID: "other"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteExpiredContext(t *testing.T) {
	s := testSQLite(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.FindOne(ctx, Filter{ExternalID: "1"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestSQLiteClosed(t *testing.T) {
	s := testSQLite(t)
	require.NoError(t, s.Close(context.Background()))

	_, err := s.Insert(context.Background(), &property.Record{ExternalID: "1"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		uri      string
		wantKind apperr.Kind
	}{
		{"sqlite scheme", "sqlite://" + filepath.Join(dir, "a.db"), ""},
		{"file scheme", "file:" + filepath.Join(dir, "b.db"), ""},
		{"unsupported scheme", "postgres://localhost/db", apperr.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), Config{URI: tt.uri, Timeout: time.Second})
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, s.Close(context.Background())) })

			_, err = s.Insert(context.Background(), &property.Record{ExternalID: "open-1"})
			require.NoError(t, err)
			_, err = s.FindOne(context.Background(), Filter{ExternalID: "open-1"})
			assert.NoError(t, err)
		})
	}
}

// testSQLite creates a store backed by a temporary database.
func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "open db")
	// Close is idempotent on *sql.DB, so tests may close the store early.
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return NewSQLite(d)
}

func TestClassifySQLite(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, apperr.KindStorageConflict},
		{"primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, apperr.KindStorageConflict},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, apperr.KindTimeout},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, apperr.KindTimeout},
		{"wrapped busy", fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), apperr.KindTimeout},
		{"not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, apperr.KindStorageUnavailable},
		{"io", sqlite3.Error{Code: sqlite3.ErrIoErr}, apperr.KindStorageUnavailable},
		{"other", errors.New("disk gone"), apperr.KindStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifySQLite(tt.err, "writing")
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
