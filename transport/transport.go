// Package transport performs authenticated GET requests against the VulnDB API.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

const (
	DefaultUserAgent = "VulnDB Data Mirror (https://github.com/aquasecurity/vulndb-mirror)"
	defaultTimeout   = 60 * time.Second
)

// Provider issues one authenticated GET per call. A response with any status
// code is returned as is; only failures to obtain a response are errors.
type Provider interface {
	Request(ctx context.Context, rawURL string, query url.Values) (*Response, error)
}

type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// TransportError covers network failures, timeouts and failures to obtain
// credentials.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %s", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type options struct {
	timeout    time.Duration
	userAgent  string
	limiter    *rate.Limiter
	baseClient *http.Client
}

type Option func(*options)

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithRateLimit limits requests to rps per second. Zero or less means unlimited.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		if rps <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithHTTPClient sets the client whose transport the authenticating transport wraps.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.baseClient = c }
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout:   defaultTimeout,
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.baseClient == nil {
		o.baseClient = &http.Client{
			Transport: gzhttp.Transport(http.DefaultTransport),
		}
	} else {
		// the caller's client may be shared, e.g. http.DefaultClient
		c := *o.baseClient
		o.baseClient = &c
	}
	o.baseClient.Timeout = o.timeout
	return o
}

// httpProvider sends requests through client, which carries the
// authentication transport.
type httpProvider struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// NewHTTPProvider returns a Provider that adds no credentials.
func NewHTTPProvider(opts ...Option) Provider {
	o := newOptions(opts)
	return &httpProvider{
		client:    o.baseClient,
		userAgent: o.userAgent,
		limiter:   o.limiter,
	}
}

func (p *httpProvider) Request(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, xerrors.Errorf("unable to parse %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	if err = p.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{URL: u.String(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, xerrors.Errorf("unable to build request for %q: %w", u.String(), err)
	}
	req.Header.Set("X-User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: u.String(), Err: xerrors.Errorf("unable to read response body: %w", err)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}, nil
}
