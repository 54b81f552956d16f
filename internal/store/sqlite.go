package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
)

// SQLite stores records as documents in the property_data table. The
// table's UNIQUE external_id column enforces one record per property.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a store over an opened database (see db.Open).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectColumns = `external_id, address, postal_code, attributes, created_at, updated_at`

const insertSQL = `INSERT INTO property_data
	(external_id, address, postal_code, attributes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

const updateSQL = `UPDATE property_data
	SET address = ?, postal_code = ?, attributes = ?, updated_at = ?
	WHERE external_id = ?`

// FindOne returns the record matching f, or ErrNotFound.
func (s *SQLite) FindOne(ctx context.Context, f Filter) (*property.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM property_data WHERE external_id = ?", selectColumns)
	row := s.db.QueryRowContext(ctx, query, f.ExternalID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifySQLite(err, fmt.Sprintf("querying record %s", f.ExternalID))
	}
	return rec, nil
}

// Insert adds a new record and returns its row id.
func (s *SQLite) Insert(ctx context.Context, rec *property.Record) (string, error) {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return "", err
	}

	now := s.now()
	result, err := s.db.ExecContext(ctx, insertSQL,
		rec.ExternalID, rec.Address, rec.PostalCode, attrs, now, now,
	)
	if err != nil {
		return "", classifySQLite(err, "inserting record")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorageUnavailable, err, "getting insert id")
	}
	return strconv.FormatInt(id, 10), nil
}

// UpdateOne replaces address, postal code and attributes of the record
// matching f. With upsert, a missing record is inserted under f's id.
func (s *SQLite) UpdateOne(ctx context.Context, f Filter, rec *property.Record, upsert bool) (UpdateResult, error) {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return UpdateResult{}, err
	}

	result, err := s.db.ExecContext(ctx, updateSQL,
		rec.Address, rec.PostalCode, attrs, s.now(), f.ExternalID,
	)
	if err != nil {
		return UpdateResult{}, classifySQLite(err, "updating record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return UpdateResult{}, apperr.Wrap(apperr.KindStorageUnavailable, err, "checking rows affected")
	}
	if rows > 0 || !upsert {
		return UpdateResult{Matched: rows, Modified: rows}, nil
	}

	doc := *rec
	doc.ExternalID = f.ExternalID
	id, err := s.Insert(ctx, &doc)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{UpsertedID: id}, nil
}

// Count returns how many records match f.
func (s *SQLite) Count(ctx context.Context, f Filter) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM property_data WHERE external_id = ?", f.ExternalID).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorageUnavailable, err, "counting records")
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}

// scanRecord scans a record from a database row.
func scanRecord(row interface{ Scan(...any) error }) (*property.Record, error) {
	var rec property.Record
	var attrs string
	var createdAt, updatedAt sql.NullTime

	if err := row.Scan(&rec.ExternalID, &rec.Address, &rec.PostalCode, &attrs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]any{}
	}
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	return &rec, nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	if attrs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", apperr.Wrap(apperr.KindMalformedRecord, err, "encoding attributes")
	}
	return string(b), nil
}

// classifySQLite maps unique-constraint violations to StorageConflict,
// busy and locked databases to Timeout, and everything else to
// StorageUnavailable.
func classifySQLite(err error, op string) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return apperr.Wrap(apperr.KindStorageUnavailable, err, op)
	}
	switch {
	case se.Code == sqlite3.ErrConstraint &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey):
		return &apperr.Error{Kind: apperr.KindStorageConflict, Code: strconv.Itoa(int(se.ExtendedCode)), Message: op, Err: err}
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return &apperr.Error{Kind: apperr.KindTimeout, Code: strconv.Itoa(int(se.Code)), Message: op, Err: err}
	default:
		return apperr.Wrap(apperr.KindStorageUnavailable, err, op)
	}
}
