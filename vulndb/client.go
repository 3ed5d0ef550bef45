package vulndb

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vulndb-mirror/transport"
	"github.com/aquasecurity/vulndb-mirror/utils"
)

const (
	DefaultBaseURL = "https://vulndb.cyberriskanalytics.com"

	statusPath          = "api/v1/account_status"
	vendorsPath         = "api/v1/vendors/"
	productsPath        = "api/v1/products/"
	versionsPath        = "api/v1/versions/by_product_id"
	vulnerabilitiesPath = "api/v1/vulnerabilities/"
)

// vulnerabilityParams asks for the nested, fully expanded vulnerability records.
var vulnerabilityParams = url.Values{
	"nested":          {"true"},
	"additional_info": {"true"},
	"show_cpe":        {"true"},
	"show_cvss_v3":    {"true"},
	"package_info":    {"true"},
	"vtem":            {"true"},
}

type clientOption func(*Client)

func WithBaseURL(u *url.URL) clientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithRetry retries transport errors, 429 and 5xx responses up to r times.
func WithRetry(r int) clientOption {
	return func(c *Client) { c.retry = r }
}

func WithClientLogger(l zerolog.Logger) clientOption {
	return func(c *Client) { c.logger = l }
}

type Client struct {
	provider transport.Provider
	baseURL  *url.URL
	retry    int
	logger   zerolog.Logger

	// wait returns the delay before the i-th retry
	wait func(i int) time.Duration
}

func NewClient(provider transport.Provider, opts ...clientOption) *Client {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		provider: provider,
		baseURL:  u,
		logger:   zerolog.Nop(),
		wait:     utils.Wait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage requests one page of a feed and parses it.
func (c *Client) FetchPage(ctx context.Context, feed Feed, size, page int) (Page, error) {
	var (
		path   string
		params url.Values
	)
	switch feed {
	case Vendors:
		path = vendorsPath
	case Products:
		path = productsPath
	case Vulnerabilities:
		path, params = vulnerabilitiesPath, vulnerabilityParams
	default:
		return Page{}, xerrors.Errorf("unknown feed %d", feed)
	}

	p, err := c.fetchPage(ctx, path, params, feed.Kind(), size, page)
	if err != nil {
		return Page{}, err
	}
	p.Feed = feed
	return p, nil
}

// FetchVersions requests one page of the versions of a product.
func (c *Client) FetchVersions(ctx context.Context, productID, size, page int) (Page, error) {
	params := url.Values{"product_id": {strconv.Itoa(productID)}}
	return c.fetchPage(ctx, versionsPath, params, KindVersion, size, page)
}

// Status returns the account status of the credentials in use.
func (c *Client) Status(ctx context.Context) (Status, error) {
	body, err := c.get(ctx, statusPath, nil)
	if err != nil {
		return Status{}, err
	}
	return ParseStatus(body)
}

func (c *Client) fetchPage(ctx context.Context, path string, params url.Values, kind EntityKind, size, page int) (Page, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("size", strconv.Itoa(size))
	query.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, path, query)
	if err != nil {
		return Page{}, err
	}

	p, err := ParsePage(body, kind)
	if err != nil {
		return Page{}, xerrors.Errorf("unable to parse %s page %d: %w", kind, page, err)
	}
	if p.Number != page {
		return Page{}, &MalformedPageError{Reason: "requested page " + strconv.Itoa(page) + " but got " + strconv.Itoa(p.Number)}
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	rawURL := c.baseURL.JoinPath(path).String()

	var err error
	for i := 0; i <= c.retry; i++ {
		if i > 0 {
			sleep := c.wait(i)
			c.logger.Warn().Err(err).Str("url", rawURL).Msgf("retry after %s", sleep)
			select {
			case <-ctx.Done():
				return nil, xerrors.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(sleep):
			}
		}

		var body []byte
		body, err = c.getOnce(ctx, rawURL, query)
		if err == nil {
			return body, nil
		}
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, xerrors.Errorf("failed to fetch %s: %w", rawURL, err)
}

func (c *Client) getOnce(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	resp, err := c.provider.Request(ctx, rawURL, query)
	if err != nil {
		return nil, xerrors.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return resp.Body, nil
}

func retryable(err error) bool {
	var te *transport.TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Temporary()
}
