// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials identifies this service to an OpenID Connect provider.
// TokenURL wins over KeycloakURL and Realm when both are set.
type ClientCredentials struct {
	KeycloakURL  string
	Realm        string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether enough is configured to request tokens.
func (c ClientCredentials) Enabled() bool {
	return c.ClientID != "" && (c.TokenURL != "" || c.KeycloakURL != "")
}

// Endpoint returns the token endpoint, deriving the Keycloak realm URL when
// no explicit one is given.
func (c ClientCredentials) Endpoint() (string, error) {
	if c.TokenURL != "" {
		return c.TokenURL, nil
	}
	if c.KeycloakURL == "" || c.Realm == "" {
		return "", fmt.Errorf("token url or keycloak url and realm are required")
	}
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimSuffix(c.KeycloakURL, "/"), c.Realm), nil
}

// NewTokenSource returns a client credentials token source. Tokens are cached
// until shortly before they expire.
func NewTokenSource(ctx context.Context, c ClientCredentials) (oauth2.TokenSource, error) {
	if c.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, err
	}

	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     endpoint,
		Scopes:       c.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cfg.TokenSource(ctx), nil
}
