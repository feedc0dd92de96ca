package fss

import (
	"context"
	"net/http"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/options"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthConfig selects how bearer tokens for the service are obtained: a
// static token, or the OAuth2 client credentials flow.
type AuthConfig struct {
	Token        options.SecretString `option:"token" help:"static bearer token (default: $FSS_TOKEN)"`
	TokenURL     string               `option:"token-url" help:"OAuth2 token endpoint for the client credentials flow"`
	ClientID     string               `option:"client-id" help:"OAuth2 client id"`
	ClientSecret options.SecretString `option:"client-secret" help:"OAuth2 client secret"`
	Scopes       string               `option:"scopes" help:"comma separated OAuth2 scopes"`
}

func init() {
	options.Register("auth", AuthConfig{})
}

// TokenSource returns the token source described by cfg, or nil if no
// credentials are configured. Token requests are sent through rt.
func (cfg AuthConfig) TokenSource(ctx context.Context, rt http.RoundTripper) oauth2.TokenSource {
	if cfg.TokenURL != "" && cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Unwrap(),
			TokenURL:     cfg.TokenURL,
		}
		if cfg.Scopes != "" {
			cc.Scopes = strings.Split(cfg.Scopes, ",")
		}
		if rt != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: rt})
		}
		return cc.TokenSource(ctx)
	}

	if token := cfg.Token.Unwrap(); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}

	return nil
}
