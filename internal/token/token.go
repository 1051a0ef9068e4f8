// Package token exchanges a long-lived API key for a single-use streaming token.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwulff/echo/internal/errs"
	"github.com/jwulff/echo/internal/logging"
)

// DefaultEndpoint issues single-use tokens for realtime Scribe sessions.
const DefaultEndpoint = "https://api.elevenlabs.io/v1/single-use-token/realtime_scribe"

const op = "fetch token"

// Client requests tokens. It holds no state between calls; every Fetch is one
// POST and tokens are never cached.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Timeouts are the transport's concern.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for endpoint. An empty endpoint uses DefaultEndpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{endpoint: endpoint, http: http.DefaultClient, logger: logging.Discard()}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// Fetch returns a fresh token for credential.
func (c *Client) Fetch(ctx context.Context, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", errs.New(errs.ErrConfig, op, errs.MissingKeyMessage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return "", errs.Wrap(errs.ErrConfig, op, err)
	}
	req.Header.Set("xi-api-key", credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("token request failed", "error", err)
		return "", errs.Wrap(errs.ErrNetwork, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Wrap(errs.ErrNetwork, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(body, resp.StatusCode)
		c.logger.Warn("token request rejected", "status", resp.StatusCode, "message", msg)
		kind := errs.ErrAuth
		if resp.StatusCode >= 500 {
			kind = errs.ErrNetwork
		}
		return "", errs.New(kind, op, "failed to fetch token: "+msg)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.Token == "" {
		return "", errs.New(errs.ErrAuth, op, "no token received from API")
	}

	c.logger.Debug("token received", "token", Redact(tr.Token))
	return tr.Token, nil
}

// errorMessage extracts a readable message from an error body: detail as a
// string, detail.message, message, then the bare status.
func errorMessage(body []byte, status int) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if len(er.Detail) > 0 {
			var s string
			if err := json.Unmarshal(er.Detail, &s); err == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(er.Detail, &obj); err == nil && obj.Message != "" {
				return obj.Message
			}
		}
		if er.Message != "" {
			return er.Message
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

// Redact shortens a secret for logging.
func Redact(secret string) string {
	const keep = 6
	if len(secret) <= keep {
		return strings.Repeat("*", len(secret))
	}
	return secret[:keep] + "…"
}
