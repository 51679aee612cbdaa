// Package api is the typed client for the fleet backend's REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of an error response is read for parsing.
const maxErrorBody = 64 << 10

type Client struct {
	baseURL    string
	httpClient *http.Client
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient sets the client used for every request. The portal passes
// one whose transport is the authorization mediator.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		nowFunc:    time.Now,
		logger:     log.Logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type tokenKey struct{}

// ContextWithToken makes requests made with ctx carry token as their bearer
// credential, regardless of which persona is active.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// do sends a JSON request and decodes a 2xx response into out (which may be
// nil). Failures are returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[api %s %s] failed to encode request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("[api %s %s] failed to build request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := tokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Method: method, URL: u, kind: errors.ErrNetworkUnavailable, cause: err, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newError(method, u, resp.StatusCode, data)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[api %s %s] failed to decode response: %w", method, path, err)
	}
	return nil
}

func pathID(id string) string { return url.PathEscape(id) }
