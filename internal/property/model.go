// Package property provides the canonical property record and the
// normalizer that builds it from lookup results.
package property

import (
	"strings"
	"time"

	"github.com/evcraddock/property-sync/internal/apperr"
)

// Record is the unit of storage, keyed by ExternalID.
type Record struct {
	ExternalID string         `json:"external_id" bson:"external_id"`
	Address    string         `json:"address" bson:"address"`
	PostalCode string         `json:"postal_code" bson:"postal_code"`
	Attributes map[string]any `json:"attributes" bson:"attributes"`
	CreatedAt  time.Time      `json:"created_at,omitzero" bson:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitzero" bson:"updated_at,omitempty"`
}

// Validate checks the fields a record must carry before it is written.
func (r *Record) Validate() error {
	if r == nil {
		return apperr.New(apperr.KindMalformedRecord, "", "record is nil")
	}
	if strings.TrimSpace(r.ExternalID) == "" {
		return apperr.New(apperr.KindMalformedRecord, "", "external_id is required")
	}
	return nil
}

// LookupQuery identifies a property to fetch, either by address and postal
// code or by external id.
type LookupQuery struct {
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// ByID reports whether the query targets an external id.
func (q LookupQuery) ByID() bool {
	return strings.TrimSpace(q.ExternalID) != ""
}

// Validate checks that exactly one form of the query is usable.
func (q LookupQuery) Validate() error {
	hasAddr := strings.TrimSpace(q.Address) != "" || strings.TrimSpace(q.PostalCode) != ""
	switch {
	case q.ByID() && hasAddr:
		return apperr.New(apperr.KindInvalidRequest, "", "query must use either external id or address, not both")
	case q.ByID():
		return nil
	case strings.TrimSpace(q.Address) == "" || strings.TrimSpace(q.PostalCode) == "":
		return apperr.New(apperr.KindInvalidRequest, "", "address and postal code are required")
	}
	return nil
}
