// Package mediator attaches the active persona's bearer credential to
// outbound domain API calls.
package mediator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultFetchTimeout = 5 * time.Second

// CredentialSource returns the bearer token of whichever persona is active.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) {
	return f(ctx)
}

// Transport is an http.RoundTripper that decorates domain API requests with
// an Authorization header. Requests outside the API base URL, requests to
// the identity provider and requests to public paths pass through untouched,
// as do requests that already carry an Authorization header.
type Transport struct {
	base         http.RoundTripper
	source       CredentialSource
	api          scope
	excluded     []scope
	publicPaths  config.PublicPaths
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

type Option func(*Transport)

func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// WithExcludedPrefixes names URL prefixes (typically the identity provider
// issuer) that never receive a domain credential.
func WithExcludedPrefixes(prefixes ...string) Option {
	return func(t *Transport) {
		for _, p := range prefixes {
			if sc, err := parseScope(p); err == nil {
				t.excluded = append(t.excluded, sc)
			}
		}
	}
}

func WithPublicPaths(paths config.PublicPaths) Option {
	return func(t *Transport) {
		t.publicPaths = paths
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.fetchTimeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

func NewTransport(apiBaseURL string, source CredentialSource, opts ...Option) (*Transport, error) {
	api, err := parseScope(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[mediator NewTransport] invalid API base URL %q: %w", apiBaseURL, err)
	}
	if source == nil {
		return nil, fmt.Errorf("[mediator NewTransport] credential source is required")
	}

	t := &Transport{
		base:         http.DefaultTransport,
		source:       source,
		api:          api,
		fetchTimeout: defaultFetchTimeout,
		logger:       log.Logger.With().Str("component", "mediator").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// New builds a Transport from configuration: the API base URL, the public
// reference-data paths, the identity issuer exclusion and the fetch timeout.
func New(cfg config.Config, source CredentialSource, opts ...Option) (*Transport, error) {
	defaults := []Option{
		WithPublicPaths(cfg.GetPublicPaths()),
		WithExcludedPrefixes(cfg.GetIssuerURL()),
		WithFetchTimeout(cfg.GetTokenFetchTimeout()),
	}
	return NewTransport(cfg.GetAPIBaseURL(), source, append(defaults, opts...)...)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.applies(req) || req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}

	token, err := t.fetch(req.Context())
	if err != nil || token == "" {
		t.logger.Debug().Err(err).Str("path", req.URL.Path).Msg("sending request without credential")
		return t.base.RoundTrip(req)
	}

	authorized := req.Clone(req.Context())
	authorized.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(authorized)
}

// fetch asks the source for a token but never waits longer than fetchTimeout,
// even if the source ignores its context.
func (t *Transport) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := t.source.Credential(ctx)
		done <- result{token, err}
	}()

	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("credential fetch: %w", ctx.Err())
	}
}

func (t *Transport) applies(req *http.Request) bool {
	if !t.api.contains(req.URL) {
		return false
	}
	for _, sc := range t.excluded {
		if sc.contains(req.URL) {
			return false
		}
	}
	return !t.publicPaths.IsPublic(req.URL.Path)
}

// scope is an origin plus a path prefix. A URL is inside it when scheme and
// host (port included) match exactly and the path is the prefix itself or
// continues it at a "/" boundary.
type scope struct {
	scheme string
	host   string
	path   string
}

func parseScope(raw string) (scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return scope{}, fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return scope{}, err
	}
	if u.Scheme == "" || u.Host == "" {
		return scope{}, fmt.Errorf("URL %q has no scheme or host", raw)
	}
	return scope{
		scheme: strings.ToLower(u.Scheme),
		host:   strings.ToLower(u.Host),
		path:   strings.TrimRight(u.Path, "/"),
	}, nil
}

func (s scope) contains(u *url.URL) bool {
	if !strings.EqualFold(u.Scheme, s.scheme) || !strings.EqualFold(u.Host, s.host) {
		return false
	}
	if s.path == "" {
		return true
	}
	return u.Path == s.path || strings.HasPrefix(u.Path, s.path+"/")
}
