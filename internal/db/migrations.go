package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS property_data (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT    NOT NULL UNIQUE,
		address     TEXT    NOT NULL DEFAULT '',
		postal_code TEXT    NOT NULL DEFAULT '',
		attributes  TEXT    NOT NULL DEFAULT '{}',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_property_data_search
		ON property_data (postal_code, address)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
