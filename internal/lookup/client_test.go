package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/property-sync/internal/apperr"
)

const deepSearchOK = `<?xml version="1.0" encoding="utf-8"?>
<SearchResults:searchresults xmlns:SearchResults="http://www.zillow.com/static/xsd/SearchResults.xsd">
  <request><address>2114 Bigelow Ave</address><citystatezip>98109</citystatezip></request>
  <message><text>Request successfully processed</text><code>0</code></message>
  <response>
    <results>
      <result>
        <zpid>48749425</zpid>
        <links><homedetails>https://www.zillow.com/homedetails/48749425_zpid/</homedetails></links>
        <address>
          <street>2114 Bigelow Ave N</street>
          <zipcode>98109</zipcode>
          <city>SEATTLE</city>
          <state>WA</state>
        </address>
        <useCode>SingleFamily</useCode>
        <bedrooms>4</bedrooms>
        <zestimate>
          <amount currency="USD">1219500</amount>
          <valuationRange><low currency="USD">1024380</low><high currency="USD">1378035</high></valuationRange>
        </zestimate>
      </result>
      <result><zpid>99999999</zpid></result>
    </results>
  </response>
</SearchResults:searchresults>`

const updatedDetailsOK = `<?xml version="1.0" encoding="utf-8"?>
<UpdatedPropertyDetails:updatedPropertyDetails xmlns:UpdatedPropertyDetails="http://www.zillow.com/static/xsd/UpdatedPropertyDetails.xsd">
  <request><zpid>48749425</zpid></request>
  <message><text>Request successfully processed</text><code>0</code></message>
  <response>
    <zpid>48749425</zpid>
    <address><street>2114 Bigelow Ave N</street><zipcode>98109</zipcode></address>
    <editedFacts><bedrooms>4</bedrooms><bathrooms>3.0</bathrooms></editedFacts>
  </response>
</UpdatedPropertyDetails:updatedPropertyDetails>`

func messageOnly(code, text string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><SearchResults:searchresults xmlns:SearchResults="x"><message><text>%s</text><code>%s</code></message></SearchResults:searchresults>`, text, code)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "X1-test", false},
		{"empty key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestLookupByAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/GetDeepSearchResults.htm", r.URL.Path)
		assert.Equal(t, "X1-test", r.URL.Query().Get("zws-id"))
		assert.Equal(t, "2114 Bigelow Ave", r.URL.Query().Get("address"))
		assert.Equal(t, "98109", r.URL.Query().Get("citystatezip"))
		writeResponse(t, w, deepSearchOK)
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	res, err := c.LookupByAddress(context.Background(), " 2114 Bigelow Ave ", "98109")
	require.NoError(t, err)

	assert.Equal(t, "48749425", res.Fields["zpid"])
	addr, ok := res.Fields["address"].(map[string]any)
	require.True(t, ok, "address should be a branch")
	assert.Equal(t, "2114 Bigelow Ave N", addr["street"])
	zest := res.Fields["zestimate"].(map[string]any)
	assert.Equal(t, "1219500", zest["amount"])
	assert.Contains(t, string(res.Raw), "<SearchResults:searchresults")
}

func TestLookupByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/GetUpdatedPropertyDetails.htm", r.URL.Path)
		assert.Equal(t, "48749425", r.URL.Query().Get("zpid"))
		writeResponse(t, w, updatedDetailsOK)
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	res, err := c.LookupByID(context.Background(), "48749425")
	require.NoError(t, err)
	assert.Equal(t, "48749425", res.Fields["zpid"])
	facts := res.Fields["editedFacts"].(map[string]any)
	assert.Equal(t, "3.0", facts["bathrooms"])
}

func TestLookupClassification(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		statusCode int
		wantKind   apperr.Kind
		wantCode   string
	}{
		{"no exact match", messageOnly("508", "no exact match found"), http.StatusOK, apperr.KindNoMatch, "508"},
		{"no results", messageOnly("502", "no results found"), http.StatusOK, apperr.KindNoMatch, "502"},
		{"missing address", messageOnly("500", "invalid or missing address parameter"), http.StatusOK, apperr.KindInvalidRequest, "500"},
		{"invalid key", messageOnly("2", "invalid or missing ZWSID"), http.StatusOK, apperr.KindServiceError, "2"},
		{"service timeout", messageOnly("505", "timeout"), http.StatusOK, apperr.KindTimeout, "505"},
		{"server error", "", http.StatusInternalServerError, apperr.KindServiceError, "http_500"},
		{"not xml", "not xml at all", http.StatusOK, apperr.KindServiceError, "decode"},
		{"success without results", messageOnly("0", "ok"), http.StatusOK, apperr.KindNoMatch, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				writeResponse(t, w, tt.response)
			}))
			defer server.Close()

			c := testClient(t, server.URL)

			_, err := c.LookupByAddress(context.Background(), "1 Nowhere Rd", "00000")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
		})
	}
}

func TestLookupEmptyInput(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	_, err := c.LookupByAddress(context.Background(), "", "98109")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
	_, err = c.LookupByAddress(context.Background(), "2114 Bigelow Ave", " ")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
	_, err = c.LookupByID(context.Background(), "")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))

	assert.Zero(t, calls.Load(), "no request should be sent for invalid input")
}

func TestLookupTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeResponse(t, w, deepSearchOK)
	}))
	defer server.Close()

	c := testClient(t, server.URL, WithTimeout(20*time.Millisecond))

	_, err := c.LookupByAddress(context.Background(), "2114 Bigelow Ave", "98109")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	for name, opts := range map[string][]Option{
		"client first":  {WithHTTPClient(shared), WithTimeout(time.Second)},
		"timeout first": {WithTimeout(time.Second), WithHTTPClient(shared)},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := NewClient("X1-test", opts...)
			require.NoError(t, err)
			assert.Equal(t, time.Second, c.httpClient.Timeout)
			assert.NotSame(t, shared, c.httpClient)
			assert.Equal(t, time.Minute, shared.Timeout)
		})
	}
}

func TestLookupResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The client stops reading at the cap, so write errors are expected.
		_, _ = fmt.Fprint(w, "<r>"+strings.Repeat("x", maxResponseBytes)+"</r>")
	}))
	defer server.Close()

	c := testClient(t, server.URL)

	_, err := c.LookupByAddress(context.Background(), "2114 Bigelow Ave", "98109")
	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceError, apperr.KindOf(err))
	assert.Equal(t, "too_large", apperr.CodeOf(err))
}

func TestLookupCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeResponse(t, w, deepSearchOK)
	}))
	defer server.Close()

	c := testClient(t, server.URL, WithCacheTTL(time.Minute))

	for i := 0; i < 3; i++ {
		_, err := c.LookupByAddress(context.Background(), "2114 Bigelow Ave", "98109")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupRateLimitHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(t, w, deepSearchOK)
	}))
	defer server.Close()

	c := testClient(t, server.URL, WithRateLimit(0.01, 1))

	_, err := c.LookupByAddress(context.Background(), "2114 Bigelow Ave", "98109")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.LookupByAddress(ctx, "2114 Bigelow Ave", "98109")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

// writeResponse writes a string to an http.ResponseWriter in tests.
func writeResponse(t *testing.T, w http.ResponseWriter, s string) {
	t.Helper()
	if _, err := fmt.Fprint(w, s); err != nil {
		t.Errorf("write response: %v", err)
	}
}

// testClient creates a client pointed at a test server.
func testClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient("X1-test", opts...)
	require.NoError(t, err)
	SetTestBaseURL(c, baseURL)
	return c
}
