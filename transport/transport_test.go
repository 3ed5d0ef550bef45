package transport_test

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/vulndb-mirror/transport"
)

func TestHTTPProvider_Request(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		gzipBody   bool
		query      url.Values
		wantQuery  string
		wantBody   string
	}{
		{
			name:       "happy path",
			statusCode: http.StatusOK,
			query:      url.Values{"size": {"100"}, "page": {"2"}},
			wantQuery:  "nested=true&page=2&size=100",
			wantBody:   `{"current_page":2}`,
		},
		{
			name:       "gzip encoded body",
			statusCode: http.StatusOK,
			gzipBody:   true,
			query:      url.Values{"page": {"1"}},
			wantQuery:  "nested=true&page=1",
			wantBody:   `{"current_page":2}`,
		},
		{
			name:       "non-200 is not an error",
			statusCode: http.StatusServiceUnavailable,
			wantQuery:  "nested=true",
			wantBody:   `{"current_page":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, transport.DefaultUserAgent, r.Header.Get("X-User-Agent"))
				assert.Equal(t, tt.wantQuery, r.URL.RawQuery)

				w.Header().Set("Content-Type", "application/json")
				if tt.gzipBody {
					w.Header().Set("Content-Encoding", "gzip")
					w.WriteHeader(tt.statusCode)
					gz := gzip.NewWriter(w)
					_, _ = gz.Write([]byte(`{"current_page":2}`))
					_ = gz.Close()
					return
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(`{"current_page":2}`))
			}))
			defer ts.Close()

			p := transport.NewHTTPProvider()
			resp, err := p.Request(context.Background(), ts.URL+"/api/v1/vulnerabilities/?nested=true", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.statusCode, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(resp.Body))
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestHTTPProvider_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	serverURL := ts.URL
	ts.Close()

	p := transport.NewHTTPProvider(transport.WithTimeout(time.Second))
	_, err := p.Request(context.Background(), serverURL+"/api/v1/vendors/", nil)
	require.Error(t, err)

	var te *transport.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.URL, "/api/v1/vendors/")
}

func TestHTTPProvider_RateLimit(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	p := transport.NewHTTPProvider(transport.WithRateLimit(0.001))
	_, err := p.Request(context.Background(), ts.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Request(ctx, ts.URL, nil)

	var te *transport.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOAuth2Provider(t *testing.T) {
	var tokenRequests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))

		id, secret, ok := r.BasicAuth()
		if !ok {
			id, secret = r.Form.Get("client_id"), r.Form.Get("client_secret")
		}
		if id != "client-id" || secret != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"access_token":"token-1","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api/v1/vendors/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"current_page":1,"total_entries":0,"results":[]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	t.Run("token is fetched once and reused", func(t *testing.T) {
		atomic.StoreInt32(&tokenRequests, 0)
		p := transport.NewOAuth2Provider("client-id", "client-secret", ts.URL+"/oauth/token")
		for i := 1; i <= 3; i++ {
			resp, err := p.Request(context.Background(), ts.URL+"/api/v1/vendors/", url.Values{"page": {fmt.Sprint(i)}})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&tokenRequests))
	})

	t.Run("token failure surfaces as transport error", func(t *testing.T) {
		p := transport.NewOAuth2Provider("client-id", "wrong", ts.URL+"/oauth/token")
		_, err := p.Request(context.Background(), ts.URL+"/api/v1/vendors/", nil)

		var te *transport.TransportError
		require.True(t, errors.As(err, &te))
	})
}

func TestOAuth1Provider(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "OAuth ") ||
			!strings.Contains(auth, `oauth_consumer_key="consumer-key"`) ||
			!strings.Contains(auth, `oauth_signature_method="HMAC-SHA1"`) ||
			!strings.Contains(auth, `oauth_signature="`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "100", r.URL.Query().Get("size"))
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"current_page":3,"total_entries":250,"results":[]}`))
	}))
	defer ts.Close()

	p := transport.NewOAuth1Provider("consumer-key", "consumer-secret")
	resp, err := p.Request(context.Background(), ts.URL+"/api/v1/products/", url.Values{"size": {"100"}, "page": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"current_page":3,"total_entries":250,"results":[]}`, string(resp.Body))
}

func TestWithHTTPClient_KeepsCallerClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	tests := []struct {
		name    string
		provide func(c *http.Client) transport.Provider
	}{
		{
			name: "plain",
			provide: func(c *http.Client) transport.Provider {
				return transport.NewHTTPProvider(transport.WithHTTPClient(c), transport.WithTimeout(5*time.Second))
			},
		},
		{
			name: "oauth1",
			provide: func(c *http.Client) transport.Provider {
				return transport.NewOAuth1Provider("key", "secret", transport.WithHTTPClient(c), transport.WithTimeout(5*time.Second))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shared := &http.Client{Transport: http.DefaultTransport}
			p := tt.provide(shared)
			assert.Zero(t, shared.Timeout)

			resp, err := p.Request(context.Background(), ts.URL, nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Zero(t, shared.Timeout)
		})
	}
}
