package clients

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/cartsync/pkg/config"
)

// newHTTPClient builds the HTTP client the GraphQL transport runs on.
// Static token auth uses the tuned transport directly and the token is
// attached per request. OAuth2 client-credentials auth wraps the same
// transport in a token source that fetches and refreshes bearer tokens
// as they expire.
func newHTTPClient(cfg *config.APIConfig) *http.Client {
	base := &http.Client{
		Transport: newTransport(),
		Timeout:   cfg.Timeout(),
	}
	if !cfg.Auth.UsesOAuth() {
		return base
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		TokenURL:     cfg.Auth.TokenURL,
		Scopes:       cfg.Auth.Scopes,
	}

	// Token requests reuse the tuned transport instead of the default
	// client baked into the oauth2 package.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout()
	return client
}
