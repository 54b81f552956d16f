package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/lookup"
	"github.com/evcraddock/property-sync/internal/property"
)

// Lookuper is the external lookup client consumed by Service.
type Lookuper interface {
	LookupByAddress(ctx context.Context, address, postalCode string) (*lookup.Result, error)
	LookupByID(ctx context.Context, externalID string) (*lookup.Result, error)
}

// Result reports what FetchAndSync did.
type Result struct {
	Outcome    Outcome          `json:"outcome"`
	ExternalID string           `json:"external_id,omitempty"`
	Record     *property.Record `json:"record,omitempty"`
}

// Estimate is the valuation portion of a property's current details.
type Estimate struct {
	ExternalID string         `json:"external_id"`
	Address    string         `json:"address,omitempty"`
	PostalCode string         `json:"postal_code,omitempty"`
	Amount     string         `json:"amount"`
	Valuation  map[string]any `json:"valuation"`
}

// Service composes the lookup client, the normalizer, and the engine.
// It performs no retries.
type Service struct {
	client Lookuper
	engine *Engine
	log    zerolog.Logger
}

// NewService creates a property sync service. engine may be nil when the
// service only answers Estimate.
func NewService(client Lookuper, engine *Engine, log zerolog.Logger) *Service {
	return &Service{client: client, engine: engine, log: log}
}

// FetchAndSync looks up the property for q, normalizes it, and syncs it
// under mode. A failed lookup or normalization returns before any
// storage call.
func (s *Service) FetchAndSync(ctx context.Context, q property.LookupQuery, mode Mode) (Result, error) {
	rec, err := s.fetch(ctx, q)
	if err != nil {
		s.log.Info().
			Err(err).
			Str("kind", string(apperr.KindOf(err))).
			Msg("lookup did not produce a record")
		return Result{Outcome: OutcomeFailed, ExternalID: strings.TrimSpace(q.ExternalID)}, err
	}

	outcome, err := s.engine.Sync(ctx, rec, mode)
	if err != nil {
		return Result{Outcome: outcome, ExternalID: rec.ExternalID}, fmt.Errorf("syncing property %s: %w", rec.ExternalID, err)
	}

	s.log.Info().
		Str("external_id", rec.ExternalID).
		Stringer("outcome", outcome).
		Msg("property synced")
	return Result{Outcome: outcome, ExternalID: rec.ExternalID, Record: rec}, nil
}

// Estimate fetches current details for externalID and returns the
// valuation fields without storing anything.
func (s *Service) Estimate(ctx context.Context, externalID string) (*Estimate, error) {
	rec, err := s.fetch(ctx, property.LookupQuery{ExternalID: externalID})
	if err != nil {
		return nil, err
	}

	est := &Estimate{
		ExternalID: rec.ExternalID,
		Address:    rec.Address,
		PostalCode: rec.PostalCode,
		Valuation:  make(map[string]any),
	}
	for k, v := range rec.Attributes {
		if strings.HasPrefix(k, "zestimate.") || k == "price" || strings.HasSuffix(k, ".price") {
			est.Valuation[k] = v
		}
	}
	est.Amount = firstString(est.Valuation, "zestimate.amount", "price")
	if len(est.Valuation) == 0 {
		return nil, apperr.Errorf(apperr.KindNoMatch, "no valuation returned for property %s", rec.ExternalID)
	}
	return est, nil
}

// fetch runs the lookup for q and normalizes the result.
func (s *Service) fetch(ctx context.Context, q property.LookupQuery) (*property.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var res *lookup.Result
	var err error
	if q.ByID() {
		res, err = s.client.LookupByID(ctx, strings.TrimSpace(q.ExternalID))
	} else {
		res, err = s.client.LookupByAddress(ctx, q.Address, q.PostalCode)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up property: %w", err)
	}

	rec, err := property.Normalize(res)
	if err != nil {
		return nil, fmt.Errorf("normalizing lookup result: %w", err)
	}

	if rec.Address == "" {
		rec.Address = strings.TrimSpace(q.Address)
	}
	if rec.PostalCode == "" {
		rec.PostalCode = strings.TrimSpace(q.PostalCode)
	}
	return rec, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
