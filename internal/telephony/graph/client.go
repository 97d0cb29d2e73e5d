package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/group-call-bot/internal/config"
	"github.com/acme/group-call-bot/internal/domain"
	apperrors "github.com/acme/group-call-bot/pkg/errors"
	"github.com/acme/group-call-bot/pkg/logger"
)

const maxResponseBody = 1 << 20

// ClientFactory returns an authenticated HTTP client for one remote call.
type ClientFactory interface {
	Client(ctx context.Context) (*http.Client, error)
}

// StatusError captures non-2xx responses from the platform.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph: unexpected status %d from %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// Client implements telephony.Platform against the Graph communications API.
type Client struct {
	baseURL  string
	tenantID string
	timeout  time.Duration
	clients  ClientFactory
	logger   *logger.Logger
	newID    func() string
}

// NewClient builds a Graph calling adapter.
func NewClient(cfg config.GraphConfig, tenantID string, clients ClientFactory, lg *logger.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenantID: tenantID,
		timeout:  cfg.RequestTimeout,
		clients:  clients,
		logger:   lg,
		newID:    uuid.NewString,
	}
}

// CreateCall places an outbound audio-only group call with service-hosted media.
func (c *Client) CreateCall(ctx context.Context, participants []string, callbackURL string) (domain.CallHandle, error) {
	body := newCreateCallRequest(participants, callbackURL, c.tenantID)

	var created callResource
	if err := c.do(ctx, http.MethodPost, "/communications/calls", body, &created); err != nil {
		if fatal(ctx, err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", apperrors.ErrCreation, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: response carried no call id", apperrors.ErrCreation)
	}
	return domain.CallHandle(created.ID), nil
}

// CallState fetches the call resource and classifies its state.
func (c *Client) CallState(ctx context.Context, handle domain.CallHandle) (domain.StateObservation, error) {
	var res callResource
	if err := c.do(ctx, http.MethodGet, callPath(handle), nil, &res); err != nil {
		if fatal(ctx, err) {
			return domain.Unknown(), err
		}
		c.logger.Debug("graph: state poll failed", zap.String("call_id", string(handle)), zap.Error(err))
		return domain.Unknown(), nil
	}
	return domain.Observe(res.State), nil
}

// StartPrompt asks the platform to play audioURL into the call. An accepted
// request without an operation id yields an empty PromptOperation.
func (c *Client) StartPrompt(ctx context.Context, handle domain.CallHandle, audioURL string) (domain.PromptOperation, error) {
	body := newPlayPromptRequest(audioURL, c.newID(), c.newID())

	var op playPromptOperation
	if err := c.do(ctx, http.MethodPost, callPath(handle)+"/playPrompt", body, &op); err != nil {
		if fatal(ctx, err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", apperrors.ErrPrompt, err)
	}
	return domain.PromptOperation(op.ID), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	httpClient, err := c.clients.Client(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("graph: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("graph: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Method: method, URL: endpoint, Body: string(raw)}
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("graph: decode response: %w", err)
		}
	}
	return nil
}

// fatal reports errors that must end the run instead of being classified
// as a platform failure.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, apperrors.ErrCredential)
}

func callPath(handle domain.CallHandle) string {
	return "/communications/calls/" + url.PathEscape(string(handle))
}
