package commerce

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harun/shopagent/pkg/apperror"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig configures client-credentials access to the commerce backend
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func (c OAuthConfig) validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.TokenURL == "" {
		missing = append(missing, "token_url")
	}
	if len(missing) > 0 {
		return apperror.OAuth(apperror.CodeOAuthConfig, fmt.Errorf("oauth config missing %v", missing))
	}
	return nil
}

// tokenSource fetches and caches access tokens. Token retrieval failures become
// OAUTH_TOKEN errors.
type tokenSource struct {
	source oauth2.TokenSource
}

func newTokenSource(cfg OAuthConfig, httpClient *http.Client) (*tokenSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return &tokenSource{source: cc.TokenSource(ctx)}, nil
}

// authorize sets the bearer token on req
func (t *tokenSource) authorize(req *http.Request) error {
	token, err := t.source.Token()
	if err != nil {
		return apperror.OAuth(apperror.CodeOAuthToken, err)
	}
	token.SetAuthHeader(req)
	return nil
}
