package transport

import (
	"context"
	"net/http"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewOAuth1Provider signs every request with one-legged OAuth 1.0a (HMAC-SHA1,
// consumer credentials only).
func NewOAuth1Provider(consumerKey, consumerSecret string, opts ...Option) Provider {
	o := newOptions(opts)
	config := oauth1.NewConfig(consumerKey, consumerSecret)

	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, o.baseClient)
	client := config.Client(ctx, oauth1.NewToken("", ""))
	client.Timeout = o.timeout

	return &httpProvider{
		client:    client,
		userAgent: o.userAgent,
		limiter:   o.limiter,
	}
}

// NewOAuth2Provider authenticates with a bearer token from the client
// credentials grant. The token is fetched on first use, cached and refreshed
// once it expires.
func NewOAuth2Provider(clientID, clientSecret, tokenURL string, opts ...Option) Provider {
	o := newOptions(opts)
	config := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, o.baseClient)
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: config.TokenSource(ctx),
			Base:   o.baseClient.Transport,
		},
		Timeout: o.timeout,
	}

	return &httpProvider{
		client:    client,
		userAgent: o.userAgent,
		limiter:   o.limiter,
	}
}
