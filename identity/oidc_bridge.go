package identity

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	stateLength = 32
	flowTimeout = 10 * time.Minute
)

// OIDCBridge is a Bridge backed by an OpenID Connect provider using the
// authorization code flow with PKCE and a nonce.
type OIDCBridge struct {
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	audience      string
	endSessionURL string
	postLogoutURL string
	flows         FlowStore
	navigator     Navigator
	onLogin       func(ctx context.Context, returnTo string)
	nowFunc       func() time.Time
	logger        zerolog.Logger

	// tokenCtx outlives the constructor's ctx; the token source uses it
	// for refresh requests.
	tokenCtx context.Context

	mu      sync.RWMutex
	source  oauth2.TokenSource
	idToken string
}

var _ Bridge = (*OIDCBridge)(nil)

type OIDCOption func(*OIDCBridge)

func WithFlowStore(flows FlowStore) OIDCOption {
	return func(b *OIDCBridge) {
		b.flows = flows
	}
}

// WithLoginHook registers fn to run after a callback completes successfully.
func WithLoginHook(fn func(ctx context.Context, returnTo string)) OIDCOption {
	return func(b *OIDCBridge) {
		b.onLogin = fn
	}
}

func WithPostLogoutRedirect(redirectURL string) OIDCOption {
	return func(b *OIDCBridge) {
		b.postLogoutURL = redirectURL
	}
}

func WithNowFunc(now func() time.Time) OIDCOption {
	return func(b *OIDCBridge) {
		b.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) OIDCOption {
	return func(b *OIDCBridge) {
		b.logger = logger
	}
}

// NewOIDCBridge discovers the provider named by cfg.GetIssuerURL().
func NewOIDCBridge(ctx context.Context, cfg config.IdentityConfig, navigator Navigator, opts ...OIDCOption) (*OIDCBridge, error) {
	if cfg.GetIssuerURL() == "" {
		return nil, fmt.Errorf("[identity NewOIDCBridge] issuer URL is required")
	}
	if navigator == nil {
		return nil, fmt.Errorf("[identity NewOIDCBridge] navigator is required")
	}

	tokenCtx := context.WithoutCancel(ctx)
	provider, err := oidc.NewProvider(tokenCtx, cfg.GetIssuerURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var metadata struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}

	b := &OIDCBridge{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.GetRedirectURI(),
			Scopes:       cfg.GetScopes(),
		},
		verifier: provider.Verifier(&oidc.Config{
			ClientID: cfg.GetClientID(),
		}),
		audience:      cfg.GetAudience(),
		endSessionURL: metadata.EndSessionEndpoint,
		navigator:     navigator,
		nowFunc:       time.Now,
		logger:        log.Logger.With().Str("component", "identity").Logger(),
		tokenCtx:      tokenCtx,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.flows == nil {
		b.flows = NewInMemoryFlowStore(flowTimeout, b.nowFunc)
	}
	return b, nil
}

func (b *OIDCBridge) IsAuthenticated(ctx context.Context) bool {
	_, err := b.Token(ctx)
	return err == nil
}

func (b *OIDCBridge) Token(_ context.Context) (Token, error) {
	b.mu.RLock()
	source := b.source
	b.mu.RUnlock()

	if source == nil {
		return Token{}, errors.ErrAuthRequired
	}
	tok, err := source.Token()
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", errors.ErrAuthRequired, err)
	}
	if tok.AccessToken == "" {
		return Token{}, errors.ErrAuthRequired
	}
	return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

// Login records a new flow and navigates to the provider's authorization
// endpoint.
func (b *OIDCBridge) Login(ctx context.Context, returnTo string) error {
	state := generateRandomString(stateLength)
	flow := FlowState{
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        generateRandomString(stateLength),
		ReturnTo:     returnTo,
		CreatedAt:    b.nowFunc(),
	}
	if err := b.flows.Put(state, flow); err != nil {
		return fmt.Errorf("failed to store login flow: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(flow.CodeVerifier),
		oidc.Nonce(flow.Nonce),
	}
	if b.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", b.audience))
	}

	b.logger.Debug().Str("returnTo", returnTo).Msg("redirecting to identity provider")
	return b.navigator.Navigate(ctx, b.oauth2Config.AuthCodeURL(state, opts...))
}

// Complete redeems an authorization code delivered to the redirect URI and
// returns the flow's return location.
func (b *OIDCBridge) Complete(ctx context.Context, state, code string) (string, error) {
	flow, err := b.flows.Take(state)
	if err != nil {
		return "", err
	}

	oauth2Token, err := b.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return "", fmt.Errorf("no ID token in response")
	}

	idToken, err := b.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", fmt.Errorf("ID token verification failed: %w", err)
	}

	var claims struct {
		Nonce string `json:"nonce"`
		Sub   string `json:"sub"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("failed to extract claims: %w", err)
	}
	if claims.Nonce != flow.Nonce {
		return "", fmt.Errorf("invalid nonce")
	}

	b.mu.Lock()
	b.source = b.oauth2Config.TokenSource(b.tokenCtx, oauth2Token)
	b.idToken = rawIDToken
	b.mu.Unlock()

	b.logger.Info().Str("sub", claims.Sub).Msg("identity provider login complete")

	if b.onLogin != nil {
		b.onLogin(ctx, flow.ReturnTo)
	}
	return flow.ReturnTo, nil
}

// Logout forgets the local tokens and, when the provider advertises an end
// session endpoint, navigates there.
func (b *OIDCBridge) Logout(ctx context.Context) error {
	b.mu.Lock()
	idToken := b.idToken
	b.source = nil
	b.idToken = ""
	b.mu.Unlock()

	if b.endSessionURL == "" {
		return nil
	}

	u, err := url.Parse(b.endSessionURL)
	if err != nil {
		return fmt.Errorf("invalid end session endpoint: %w", err)
	}
	q := u.Query()
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if b.postLogoutURL != "" {
		q.Set("post_logout_redirect_uri", b.postLogoutURL)
	}
	u.RawQuery = q.Encode()
	return b.navigator.Navigate(ctx, u.String())
}
