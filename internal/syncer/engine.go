// Package syncer applies the insert-or-update policy for property records
// and composes lookup, normalization, and storage into one call.
package syncer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
	"github.com/evcraddock/property-sync/internal/store"
)

// Engine writes records to a store keyed by external id. It holds no state
// between calls; the store's content alone decides each outcome.
type Engine struct {
	store store.Store
	log   zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a sync engine over s.
func NewEngine(s store.Store, opts ...EngineOption) *Engine {
	e := &Engine{store: s, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync writes rec according to mode.
//
// An existing record is left alone under ModeInsertOnly and overwritten
// (address, postal code and the full attribute set) under ModeUpsert. A
// missing record is inserted in either mode. If another writer creates the
// same external id between the lookup and the insert, the store's
// uniqueness rejection is reported as OutcomeSkippedExisting.
//
// On failure the outcome is OutcomeFailed and the error carries an
// apperr.Kind.
func (e *Engine) Sync(ctx context.Context, rec *property.Record, mode Mode) (Outcome, error) {
	if err := rec.Validate(); err != nil {
		return e.fail(rec, mode, err)
	}
	if !mode.valid() {
		return e.fail(rec, mode, apperr.Errorf(apperr.KindInvalidRequest, "invalid sync mode %d", int(mode)))
	}

	filter := store.Filter{ExternalID: rec.ExternalID}

	_, err := e.store.FindOne(ctx, filter)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.insert(ctx, rec, mode)
	case err != nil:
		return e.fail(rec, mode, err)
	case mode == ModeInsertOnly:
		return e.done(rec, mode, OutcomeSkippedExisting)
	}

	res, err := e.store.UpdateOne(ctx, filter, rec, false)
	if err != nil {
		return e.fail(rec, mode, err)
	}
	if res.Matched == 0 {
		return e.insert(ctx, rec, mode)
	}
	return e.done(rec, mode, OutcomeUpdated)
}

func (e *Engine) insert(ctx context.Context, rec *property.Record, mode Mode) (Outcome, error) {
	_, err := e.store.Insert(ctx, rec)
	switch {
	case err == nil:
		return e.done(rec, mode, OutcomeInserted)
	case errors.Is(err, apperr.ErrStorageConflict):
		e.log.Debug().
			Str("external_id", rec.ExternalID).
			Err(err).
			Msg("insert lost race to concurrent writer")
		return e.done(rec, mode, OutcomeSkippedExisting)
	default:
		return e.fail(rec, mode, err)
	}
}

func (e *Engine) done(rec *property.Record, mode Mode, o Outcome) (Outcome, error) {
	e.log.Debug().
		Str("external_id", rec.ExternalID).
		Stringer("mode", mode).
		Stringer("outcome", o).
		Msg("synced property")
	return o, nil
}

func (e *Engine) fail(rec *property.Record, mode Mode, err error) (Outcome, error) {
	if apperr.KindOf(err) == apperr.KindUnknown {
		err = apperr.Wrap(apperr.KindStorageUnavailable, err, "storage operation failed")
	}

	ev := e.log.Warn().Err(err).Stringer("mode", mode).Str("kind", string(apperr.KindOf(err)))
	if rec != nil {
		ev = ev.Str("external_id", rec.ExternalID)
	}
	ev.Msg("sync failed")

	return OutcomeFailed, err
}
