package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/acme/group-call-bot/internal/config"
	apperrors "github.com/acme/group-call-bot/pkg/errors"
)

// TokenSource yields bearer credentials for the calling platform.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// ClientCredentials exchanges the configured client id and secret for a
// token on every call. It keeps no token state between calls.
type ClientCredentials struct {
	cfg  config.AuthConfig
	conf clientcredentials.Config
	http *http.Client
}

// NewClientCredentials builds a token source for the tenant's token endpoint.
// httpClient may be nil.
func NewClientCredentials(cfg config.AuthConfig, httpClient *http.Client) *ClientCredentials {
	return &ClientCredentials{
		cfg: cfg,
		conf: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL(),
			Scopes:       []string{cfg.Scope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		http: httpClient,
	}
}

// Token performs one client-credentials exchange.
func (c *ClientCredentials) Token(ctx context.Context) (*oauth2.Token, error) {
	switch {
	case c.cfg.TenantID == "":
		return nil, fmt.Errorf("%w: tenant id missing", apperrors.ErrCredential)
	case c.cfg.ClientID == "":
		return nil, fmt.Errorf("%w: client id missing", apperrors.ErrCredential)
	case c.cfg.ClientSecret == "":
		return nil, fmt.Errorf("%w: client secret missing", apperrors.ErrCredential)
	}

	if c.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	}

	tok, err := c.conf.Token(ctx)
	if err != nil {
		// oauth2 flattens transport errors, so cancellation is read off ctx.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCredential, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response carried no access token", apperrors.ErrCredential)
	}
	return tok, nil
}
