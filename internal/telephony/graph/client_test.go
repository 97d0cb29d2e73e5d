package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/acme/group-call-bot/internal/auth"
	"github.com/acme/group-call-bot/internal/config"
	"github.com/acme/group-call-bot/internal/domain"
	apperrors "github.com/acme/group-call-bot/pkg/errors"
	"github.com/acme/group-call-bot/pkg/logger"
)

type staticTokens struct {
	err   error
	calls int32
}

func (s *staticTokens) Token(context.Context) (*oauth2.Token, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: "test-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *staticTokens) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("accept = %q", got)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	tokens := &staticTokens{}
	c := NewClient(
		config.GraphConfig{BaseURL: srv.URL + "/v1.0/", RequestTimeout: 5 * time.Second},
		"tenant-1",
		auth.NewProvider(tokens, srv.Client()),
		logger.NewNop(),
	)
	return c, tokens
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCreateCall(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/v1.0/communications/calls" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content-type = %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["@odata.type"] != "#microsoft.graph.call" {
			t.Errorf("@odata.type = %v", body["@odata.type"])
		}
		if body["callbackUri"] != "https://bot.example.com/api/calling" {
			t.Errorf("callbackUri = %v", body["callbackUri"])
		}
		if body["tenantId"] != "tenant-1" {
			t.Errorf("tenantId = %v", body["tenantId"])
		}
		modalities, _ := body["requestedModalities"].([]any)
		if len(modalities) != 1 || modalities[0] != "audio" {
			t.Errorf("requestedModalities = %v", body["requestedModalities"])
		}
		media, _ := body["mediaConfig"].(map[string]any)
		if media["@odata.type"] != "#microsoft.graph.serviceHostedMediaConfig" {
			t.Errorf("mediaConfig = %v", media)
		}
		targets, _ := body["targets"].([]any)
		if len(targets) != 2 {
			t.Fatalf("targets = %v", body["targets"])
		}
		for i, want := range []string{"user-a", "user-b"} {
			target := targets[i].(map[string]any)
			if target["@odata.type"] != "#microsoft.graph.invitationParticipantInfo" {
				t.Errorf("target[%d] type = %v", i, target["@odata.type"])
			}
			ident := target["identity"].(map[string]any)
			if ident["@odata.type"] != "#microsoft.graph.identitySet" {
				t.Errorf("identity[%d] type = %v", i, ident["@odata.type"])
			}
			user := ident["user"].(map[string]any)
			if user["@odata.type"] != "#microsoft.graph.identity" || user["id"] != want {
				t.Errorf("user[%d] = %v", i, user)
			}
		}

		writeJSON(w, http.StatusCreated, map[string]any{"id": "c1", "state": "establishing"})
	})

	handle, err := c.CreateCall(context.Background(), []string{"user-a", "user-b"}, "https://bot.example.com/api/calling")
	require.NoError(t, err)
	require.Equal(t, domain.CallHandle("c1"), handle)
	require.EqualValues(t, 1, tokens.calls)
}

func TestCreateCallFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-success": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": map[string]any{"code": "Forbidden"}})
		},
		"missing id": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]any{"state": "establishing"})
		},
		"malformed body": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, handler)
			_, err := c.CreateCall(context.Background(), []string{"a", "b"}, "https://bot.example.com/api/calling")
			require.ErrorIs(t, err, apperrors.ErrCreation)
		})
	}
}

func TestCreateCallStatusErrorDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad target`))
	})

	_, err := c.CreateCall(context.Background(), []string{"a", "b"}, "https://bot.example.com/api/calling")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Equal(t, http.MethodPost, statusErr.Method)
	require.Equal(t, "bad target", statusErr.Body)
}

func TestCreateCallCredentialFailure(t *testing.T) {
	var hits int32
	c, tokens := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
	})
	tokens.err = fmt.Errorf("%w: idp down", apperrors.ErrCredential)

	_, err := c.CreateCall(context.Background(), []string{"a", "b"}, "https://bot.example.com/api/calling")
	require.ErrorIs(t, err, apperrors.ErrCredential)
	require.NotErrorIs(t, err, apperrors.ErrCreation)
	require.Zero(t, atomic.LoadInt32(&hits))
}

func TestCallState(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		kind    domain.ObservationKind
		state   string
	}{
		{
			name: "connected any case",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id": "c1", "state": "CONNECTED"})
			},
			kind:  domain.ObservationConnected,
			state: "CONNECTED",
		},
		{
			name: "establishing",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id": "c1", "state": "establishing"})
			},
			kind:  domain.ObservationOther,
			state: "establishing",
		},
		{
			name: "missing state",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id": "c1"})
			},
			kind: domain.ObservationUnknown,
		},
		{
			name: "null state",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id": "c1", "state": nil})
			},
			kind: domain.ObservationUnknown,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			kind: domain.ObservationUnknown,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			kind: domain.ObservationUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("method = %s", r.Method)
				}
				if r.URL.Path != "/v1.0/communications/calls/c1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				tc.handler(w, r)
			})

			obs, err := c.CallState(context.Background(), "c1")
			require.NoError(t, err)
			require.Equal(t, tc.kind, obs.Kind)
			require.Equal(t, tc.state, obs.State)
		})
	}
}

func TestCallStateCredentialFailureIsFatal(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {})
	tokens.err = fmt.Errorf("%w: rejected", apperrors.ErrCredential)

	_, err := c.CallState(context.Background(), "c1")
	require.ErrorIs(t, err, apperrors.ErrCredential)
}

func TestCallStateCancelled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"state": "connected"})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CallState(ctx, "c1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStartPrompt(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/v1.0/communications/calls/c1/playPrompt" {
			t.Errorf("path = %s", r.URL.Path)
		}

		var body playPromptRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.ClientContext != "id-1" {
			t.Errorf("clientContext = %q", body.ClientContext)
		}
		if len(body.Prompts) != 1 {
			t.Fatalf("prompts = %d", len(body.Prompts))
		}
		prompt := body.Prompts[0]
		if prompt.ODataType != "#microsoft.graph.mediaPrompt" {
			t.Errorf("prompt type = %q", prompt.ODataType)
		}
		if prompt.MediaInfo.ODataType != "#microsoft.graph.mediaInfo" {
			t.Errorf("mediaInfo type = %q", prompt.MediaInfo.ODataType)
		}
		if prompt.MediaInfo.URI != "http://x/audio.wav" {
			t.Errorf("uri = %q", prompt.MediaInfo.URI)
		}
		if prompt.MediaInfo.ResourceID != "id-2" {
			t.Errorf("resourceId = %q", prompt.MediaInfo.ResourceID)
		}

		writeJSON(w, http.StatusOK, map[string]any{"id": "op-1", "status": "running", "clientContext": body.ClientContext})
	})
	ids := []string{"id-1", "id-2"}
	c.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	op, err := c.StartPrompt(context.Background(), "c1", "http://x/audio.wav")
	require.NoError(t, err)
	require.Equal(t, domain.PromptOperation("op-1"), op)
}

func TestStartPromptGeneratesFreshIdentifiers(t *testing.T) {
	var seen []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body playPromptRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		seen = append(seen, body.ClientContext, body.Prompts[0].MediaInfo.ResourceID)
		writeJSON(w, http.StatusOK, map[string]any{"id": "op"})
	})

	for i := 0; i < 2; i++ {
		_, err := c.StartPrompt(context.Background(), "c1", "http://x/audio.wav")
		require.NoError(t, err)
	}

	unique := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		require.NotEmpty(t, id)
		unique[id] = struct{}{}
	}
	require.Len(t, unique, 4)
}

func TestStartPromptMissingOperationID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "running"})
	})

	op, err := c.StartPrompt(context.Background(), "c1", "http://x/audio.wav")
	require.NoError(t, err)
	require.Empty(t, op)
}

func TestStartPromptFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	_, err := c.StartPrompt(context.Background(), "c1", "http://x/audio.wav")
	require.ErrorIs(t, err, apperrors.ErrPrompt)
}
