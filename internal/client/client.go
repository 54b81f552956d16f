// Package client provides an HTTP client for the psync REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
	"github.com/evcraddock/property-sync/internal/syncer"
)

// Client is an HTTP client for a running psync serve.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client. token is sent as a bearer token on every
// request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

// SyncResponse is the response from POST /api/sync.
type SyncResponse struct {
	Outcome    string `json:"outcome"`
	ExternalID string `json:"external_id"`
}

// Sync asks the server to look up and sync a property.
func (c *Client) Sync(ctx context.Context, q property.LookupQuery, mode syncer.Mode) (*SyncResponse, error) {
	body := SyncRequest{
		Address:    q.Address,
		PostalCode: q.PostalCode,
		ExternalID: q.ExternalID,
		Mode:       mode.String(),
	}
	var resp SyncResponse
	if err := c.post(ctx, "/api/sync", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProperty returns the stored record for an external id.
func (c *Client) GetProperty(ctx context.Context, externalID string) (*property.Record, error) {
	var rec property.Record
	if err := c.get(ctx, "/api/properties/"+url.PathEscape(externalID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// get performs a GET request and decodes the response.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// do executes an HTTP request and turns error responses back into
// apperr values carrying the server's kind.
func (c *Client) do(req *http.Request, result any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindServiceError, err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindServiceError, err, "reading response")
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return apperr.New(kindFor(resp.StatusCode, errResp.Kind), "", errResp.Error)
		}
		return apperr.New(kindFor(resp.StatusCode, ""), fmt.Sprintf("http_%d", resp.StatusCode),
			fmt.Sprintf("server error: %s", http.StatusText(resp.StatusCode)))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return apperr.Wrap(apperr.KindServiceError, err, "decoding response")
		}
	}

	return nil
}

// kindFor prefers the kind the server reported and falls back to the
// status code.
func kindFor(status int, kind string) apperr.Kind {
	if kind != "" {
		return apperr.Kind(kind)
	}
	switch status {
	case http.StatusNotFound:
		return apperr.KindNoMatch
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized
	case http.StatusTooManyRequests:
		return apperr.KindRateLimited
	case http.StatusBadRequest:
		return apperr.KindInvalidRequest
	case http.StatusUnprocessableEntity:
		return apperr.KindMalformedRecord
	case http.StatusServiceUnavailable:
		return apperr.KindStorageUnavailable
	case http.StatusGatewayTimeout:
		return apperr.KindTimeout
	default:
		return apperr.KindServiceError
	}
}
