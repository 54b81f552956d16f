// Package lookup fetches property data from the valuation web service.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/evcraddock/property-sync/internal/apperr"
)

const (
	// DefaultBaseURL is the valuation service endpoint root.
	DefaultBaseURL = "https://www.zillow.com/webservice"

	deepSearchPath     = "/GetDeepSearchResults.htm"
	updatedDetailsPath = "/GetUpdatedPropertyDetails.htm"
	defaultTimeout     = 15 * time.Second

	// maxResponseBytes caps a service response body.
	maxResponseBytes = 8 << 20
)

// Result holds one property as returned by the service.
type Result struct {
	// Fields is the parsed element tree of the matched property. Branches
	// are map[string]any, leaves are strings, repeated siblings are []any.
	Fields map[string]any
	// Raw is the response body exactly as received.
	Raw []byte
}

// Client fetches property data from the valuation service.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service endpoint root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests. The client is
// copied, so a WithTimeout never changes the caller's value.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests. A zero limit disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithCacheTTL caches successful results for identical queries.
// A zero TTL disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = gocache.New(ttl, 2*ttl)
	}
}

// NewClient creates a lookup client with the given API credential.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "", "lookup API key is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	return c, nil
}

// LookupByAddress finds the property at the given street address and postal code.
func (c *Client) LookupByAddress(ctx context.Context, address, postalCode string) (*Result, error) {
	address = strings.TrimSpace(address)
	postalCode = strings.TrimSpace(postalCode)
	if address == "" || postalCode == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "", "address and postal code are required")
	}

	params := url.Values{
		"address":      {address},
		"citystatezip": {postalCode},
	}
	return c.cached(ctx, "addr|"+address+"|"+postalCode, deepSearchPath, params, deepSearchResult)
}

// LookupByID fetches current details for a property by its external id.
func (c *Client) LookupByID(ctx context.Context, externalID string) (*Result, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "", "external id is required")
	}

	params := url.Values{"zpid": {externalID}}
	return c.cached(ctx, "id|"+externalID, updatedDetailsPath, params, updatedDetailsResult)
}

func (c *Client) cached(ctx context.Context, key, path string, params url.Values, pick func(map[string]any) (map[string]any, bool)) (*Result, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.(*Result), nil
		}
	}

	res, err := c.call(ctx, path, params, pick)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(key, res)
	}
	return res, nil
}

// call performs one request and classifies the service's reply.
func (c *Client) call(ctx context.Context, path string, params url.Values, pick func(map[string]any) (map[string]any, bool)) (res *Result, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperr.Wrap(apperr.KindTimeout, err, "waiting for rate limiter")
		}
	}

	params.Set("zws-id", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, err, "creating request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing response body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindServiceError, fmt.Sprintf("http_%d", resp.StatusCode), "unexpected status from valuation service")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, classifyTransport(err)
	}
	if len(raw) > maxResponseBytes {
		return nil, apperr.New(apperr.KindServiceError, "too_large", fmt.Sprintf("response exceeds %d bytes", maxResponseBytes))
	}

	tree, err := parseTree(raw)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindServiceError, Code: "decode", Message: "decoding response", Err: err}
	}

	if err := checkMessage(tree); err != nil {
		return nil, err
	}

	fields, ok := pick(tree)
	if !ok {
		return nil, apperr.New(apperr.KindNoMatch, "", "no property matched the query")
	}

	return &Result{Fields: fields, Raw: raw}, nil
}

// classifyTransport maps network failures to Timeout or ServiceError.
func classifyTransport(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperr.Wrap(apperr.KindTimeout, err, "valuation service request timed out")
	}
	return apperr.Wrap(apperr.KindServiceError, err, "sending request")
}
