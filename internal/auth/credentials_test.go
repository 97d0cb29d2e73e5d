package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acme/group-call-bot/internal/config"
	apperrors "github.com/acme/group-call-bot/pkg/errors"
)

func newTokenServer(t *testing.T, hits *int32, respond func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/tenant-1/oauth2/v2.0/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != "https://graph.microsoft.com/.default" {
			t.Errorf("scope = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "client-1" {
			t.Errorf("client_id = %q", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "secret-1" {
			t.Errorf("client_secret = %q", got)
		}
		respond(w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func authConfig(authority string) config.AuthConfig {
	return config.AuthConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Authority:    authority,
		Scope:        "https://graph.microsoft.com/.default",
	}
}

func writeToken(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestClientCredentialsFetchesFreshTokenEveryCall(t *testing.T) {
	var hits int32
	srv := newTokenServer(t, &hits, func(w http.ResponseWriter) {
		writeToken(w, map[string]any{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600})
	})

	src := NewClientCredentials(authConfig(srv.URL), srv.Client())

	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		require.Equal(t, "tok-1", tok.AccessToken)
		require.False(t, tok.Expiry.IsZero())
	}
	require.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestClientCredentialsMissingAccessToken(t *testing.T) {
	var hits int32
	srv := newTokenServer(t, &hits, func(w http.ResponseWriter) {
		writeToken(w, map[string]any{"token_type": "Bearer"})
	})

	_, err := NewClientCredentials(authConfig(srv.URL), nil).Token(context.Background())
	require.ErrorIs(t, err, apperrors.ErrCredential)
}

func TestClientCredentialsRejectedExchange(t *testing.T) {
	var hits int32
	srv := newTokenServer(t, &hits, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	})

	_, err := NewClientCredentials(authConfig(srv.URL), nil).Token(context.Background())
	require.ErrorIs(t, err, apperrors.ErrCredential)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestClientCredentialsMissingSettings(t *testing.T) {
	cases := map[string]func(*config.AuthConfig){
		"tenant": func(c *config.AuthConfig) { c.TenantID = "" },
		"client": func(c *config.AuthConfig) { c.ClientID = "" },
		"secret": func(c *config.AuthConfig) { c.ClientSecret = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := authConfig("http://127.0.0.1:1")
			mutate(&cfg)
			_, err := NewClientCredentials(cfg, nil).Token(context.Background())
			require.ErrorIs(t, err, apperrors.ErrCredential)
			require.Contains(t, err.Error(), "missing")
		})
	}
}

func TestClientCredentialsCancelled(t *testing.T) {
	var hits int32
	srv := newTokenServer(t, &hits, func(w http.ResponseWriter) {
		writeToken(w, map[string]any{"access_token": "tok-1"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClientCredentials(authConfig(srv.URL), nil).Token(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, apperrors.ErrCredential)
}
