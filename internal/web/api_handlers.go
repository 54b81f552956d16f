package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
	"github.com/evcraddock/property-sync/internal/store"
	"github.com/evcraddock/property-sync/internal/syncer"
)

type syncRequest struct {
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	ExternalID string `json:"external_id"`
	Mode       string `json:"mode"`
}

type syncResponse struct {
	Outcome    syncer.Outcome `json:"outcome"`
	ExternalID string         `json:"external_id"`
}

// maxSyncBody caps the sync request body.
const maxSyncBody = 64 << 10

// apiFailure writes err with the status its kind maps to.
func apiFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code >= 500 {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	apiJSON(w, map[string]string{"error": err.Error(), "kind": string(kind)}, code)
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNoMatch:
		return http.StatusNotFound
	case apperr.KindInvalidRequest:
		return http.StatusBadRequest
	case apperr.KindMalformedRecord:
		return http.StatusUnprocessableEntity
	case apperr.KindStorageConflict:
		return http.StatusConflict
	case apperr.KindServiceError:
		return http.StatusBadGateway
	case apperr.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// apiSync looks up a property by address or id and synchronizes it.
func (s *Server) apiSync(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		apiFailure(w, r, apperr.New(apperr.KindNotConfigured, "", "sync not available (lookup.api_key not configured)"))
		return
	}

	var req syncRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSyncBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiFailure(w, r, apperr.Errorf(apperr.KindInvalidRequest, "request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		apiFailure(w, r, apperr.Wrap(apperr.KindInvalidRequest, err, "invalid JSON body"))
		return
	}

	mode, err := syncer.ParseMode(req.Mode)
	if err != nil {
		apiFailure(w, r, err)
		return
	}

	q := property.LookupQuery{
		Address:    strings.TrimSpace(req.Address),
		PostalCode: strings.TrimSpace(req.PostalCode),
		ExternalID: strings.TrimSpace(req.ExternalID),
	}

	res, err := s.service.FetchAndSync(r.Context(), q, mode)
	if err != nil {
		apiFailure(w, r, err)
		return
	}

	code := http.StatusOK
	if res.Outcome == syncer.OutcomeInserted {
		code = http.StatusCreated
	}
	apiJSON(w, syncResponse{Outcome: res.Outcome, ExternalID: res.ExternalID}, code)
}

// apiGetProperty returns the stored record for an external id.
func (s *Server) apiGetProperty(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("external_id"))
	if id == "" {
		apiFailure(w, r, apperr.New(apperr.KindInvalidRequest, "", "external_id is required"))
		return
	}

	rec, err := s.store.FindOne(r.Context(), store.Filter{ExternalID: id})
	if errors.Is(err, store.ErrNotFound) {
		apiFailure(w, r, apperr.Errorf(apperr.KindNoMatch, "property %s not found", id))
		return
	}
	if err != nil {
		apiFailure(w, r, err)
		return
	}

	apiJSON(w, rec, http.StatusOK)
}
