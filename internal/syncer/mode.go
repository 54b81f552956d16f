package syncer

import (
	"fmt"
	"strings"

	"github.com/evcraddock/property-sync/internal/apperr"
)

// Mode is the write policy applied when a record already exists.
type Mode int

const (
	// ModeInsertOnly inserts new records and leaves existing ones untouched.
	ModeInsertOnly Mode = iota
	// ModeUpsert inserts new records and overwrites existing ones.
	ModeUpsert
)

func (m Mode) String() string {
	switch m {
	case ModeInsertOnly:
		return "insert-only"
	case ModeUpsert:
		return "upsert"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) valid() bool {
	return m == ModeInsertOnly || m == ModeUpsert
}

// ParseMode parses a mode name. Empty means ModeInsertOnly.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insert-only", "insert_only", "insert":
		return ModeInsertOnly, nil
	case "upsert", "update":
		return ModeUpsert, nil
	}
	return 0, apperr.Errorf(apperr.KindInvalidRequest, "unknown sync mode %q (want insert-only or upsert)", s)
}

// Outcome is the result of one sync attempt.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeSkippedExisting
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkippedExisting:
		return "skipped_existing"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
