package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	apperrors "github.com/acme/group-call-bot/pkg/errors"
)

// Provider hands out HTTP clients that sign every request with a bearer
// credential. Each Client call acquires its own credential.
type Provider struct {
	tokens TokenSource
	base   *http.Client
}

// NewProvider wraps a token source. base supplies the transport and may be nil.
func NewProvider(tokens TokenSource, base *http.Client) *Provider {
	return &Provider{tokens: tokens, base: base}
}

// Client returns an authenticated client for a single remote operation.
func (p *Provider) Client(ctx context.Context) (*http.Client, error) {
	tok, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty token", apperrors.ErrCredential)
	}

	clientCtx := context.Background()
	if p.base != nil {
		clientCtx = context.WithValue(clientCtx, oauth2.HTTPClient, p.base)
	}
	return oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(tok)), nil
}
