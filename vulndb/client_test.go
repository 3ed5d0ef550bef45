package vulndb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/vulndb-mirror/transport"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...clientOption) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)

	c := NewClient(transport.NewHTTPProvider(), append([]clientOption{WithBaseURL(u)}, opts...)...)
	c.wait = func(i int) time.Duration { return 0 }
	return c
}

func TestClient_FetchPage(t *testing.T) {
	tests := []struct {
		name      string
		feed      Feed
		wantPath  string
		wantQuery url.Values
	}{
		{
			name:      "vendors",
			feed:      Vendors,
			wantPath:  "/api/v1/vendors/",
			wantQuery: url.Values{"size": {"100"}, "page": {"3"}},
		},
		{
			name:      "products",
			feed:      Products,
			wantPath:  "/api/v1/products/",
			wantQuery: url.Values{"size": {"100"}, "page": {"3"}},
		},
		{
			name:     "vulnerabilities",
			feed:     Vulnerabilities,
			wantPath: "/api/v1/vulnerabilities/",
			wantQuery: url.Values{
				"size":            {"100"},
				"page":            {"3"},
				"nested":          {"true"},
				"additional_info": {"true"},
				"show_cpe":        {"true"},
				"show_cvss_v3":    {"true"},
				"package_info":    {"true"},
				"vtem":            {"true"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var gotQuery url.Values
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotQuery = r.URL.Path, r.URL.Query()
				fmt.Fprint(w, `{"current_page":3,"total_entries":250,"results":[]}`)
			}))

			page, err := c.FetchPage(context.Background(), tt.feed, PageSize, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Equal(t, tt.feed, page.Feed)
			assert.Equal(t, tt.feed.Kind(), page.Kind)
			assert.Equal(t, 3, page.Number)
			assert.Equal(t, 250, page.TotalEntries)
		})
	}
}

func TestClient_FetchPageErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"error":"not found"}`,
			wantErr: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusNotFound, se.StatusCode)
				assert.False(t, se.Temporary())
				assert.Contains(t, se.Body, "not found")
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `<html></html>`,
			wantErr: func(t *testing.T, err error) {
				var me *MalformedPageError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, "invalid page JSON", me.Reason)
			},
		},
		{
			name:   "page mismatch",
			status: http.StatusOK,
			body:   `{"current_page":1,"total_entries":250,"results":[]}`,
			wantErr: func(t *testing.T, err error) {
				var me *MalformedPageError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, "requested page 2 but got 1", me.Reason)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			_, err := c.FetchPage(context.Background(), Vendors, PageSize, 2)
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestClient_Retry(t *testing.T) {
	tests := []struct {
		name         string
		retry        int
		failures     int32
		status       int
		wantRequests int32
		wantErr      bool
	}{
		{
			name:         "no retry by default",
			retry:        0,
			failures:     1,
			status:       http.StatusServiceUnavailable,
			wantRequests: 1,
			wantErr:      true,
		},
		{
			name:         "recovers after 5xx",
			retry:        3,
			failures:     2,
			status:       http.StatusBadGateway,
			wantRequests: 3,
		},
		{
			name:         "recovers after 429",
			retry:        1,
			failures:     1,
			status:       http.StatusTooManyRequests,
			wantRequests: 2,
		},
		{
			name:         "gives up",
			retry:        2,
			failures:     5,
			status:       http.StatusInternalServerError,
			wantRequests: 3,
			wantErr:      true,
		},
		{
			name:         "4xx is not retried",
			retry:        3,
			failures:     5,
			status:       http.StatusUnauthorized,
			wantRequests: 1,
			wantErr:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&requests, 1) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				fmt.Fprint(w, `{"current_page":1,"total_entries":0,"results":[]}`)
			}), WithRetry(tt.retry))

			_, err := c.FetchPage(context.Background(), Products, PageSize, 1)
			assert.Equal(t, tt.wantRequests, atomic.LoadInt32(&requests))
			if tt.wantErr {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, tt.status, se.StatusCode)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClient_RetryTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	ts.Close()

	var waits []int
	c := NewClient(transport.NewHTTPProvider(), WithBaseURL(u), WithRetry(2))
	c.wait = func(i int) time.Duration {
		waits = append(waits, i)
		return 0
	}

	_, err = c.FetchPage(context.Background(), Vendors, PageSize, 1)
	require.Error(t, err)

	var te *transport.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, []int{1, 2}, waits)
}

func TestClient_RetryCanceled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), WithRetry(5))
	c.wait = func(i int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchPage(ctx, Vendors, PageSize, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_FetchVersions(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.Query()
		fmt.Fprint(w, `{"current_page":1,"total_entries":1,"results":[{"id":5,"name":"3.2.1","affected":true}]}`)
	}))

	page, err := c.FetchVersions(context.Background(), 51433, PageSize, 1)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/versions/by_product_id", gotPath)
	assert.Equal(t, url.Values{"product_id": {"51433"}, "size": {"100"}, "page": {"1"}}, gotQuery)
	assert.Equal(t, KindVersion, page.Kind)
	assert.Equal(t, []Entity{Version{ID: 5, Name: lo.ToPtr("3.2.1"), Affected: true}}, page.Entities)
}

func TestClient_Status(t *testing.T) {
	body, err := os.ReadFile("testdata/status.json")
	require.NoError(t, err)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/account_status" {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lo.ToPtr("Example Org"), status.OrganizationName)
	assert.Equal(t, body, status.RawStatus)
}
