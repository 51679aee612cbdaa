// Package session owns the per-persona authentication state of the portal:
// which persona is active, the tokens and profiles behind each persona, and
// renewal of the owner's directly issued token.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-fleet-portal/api"
	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/identity"
	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// RegistrationReturnTo is where the identity provider sends a user who
	// started owner registration.
	RegistrationReturnTo = "/owner/login/callback?action=register"

	defaultRefreshMargin   = 30 * time.Second
	defaultRefreshMinDelay = 30 * time.Second
	scheduledRefreshLimit  = 30 * time.Second
	syncLimit              = 30 * time.Second
)

// PersonaEvent is delivered to OnPersonaChange listeners. LoggedOut is set
// when the change was caused by Logout.
type PersonaEvent struct {
	Previous  Persona
	Current   Persona
	LoggedOut Persona
}

type state struct {
	token      *identity.Token
	fromBridge bool
	profile    *Profile
}

type Manager struct {
	bridge   identity.Bridge
	backend  Backend
	tabStore Store
	cache    *store.Store
	clock    clock.Clock
	logger   zerolog.Logger

	refreshMargin   time.Duration
	refreshMinDelay time.Duration
	scheduler       *RefreshScheduler

	syncGroup singleflight.Group

	mu       sync.RWMutex
	sessions map[Persona]*state
	active   Persona
	// gens is bumped by Logout; results of calls started under an older
	// generation are discarded.
	gens          map[Persona]uint64
	cancelRefresh context.CancelFunc

	listenersMu sync.Mutex
	listeners   []func(PersonaEvent)
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTabStore sets the tab-scoped store. The active persona is restored from
// it on construction.
func WithTabStore(s Store) Option {
	return func(m *Manager) {
		m.tabStore = s
	}
}

// WithEntityCache mirrors the owner profile into the shared entity cache.
func WithEntityCache(cache *store.Store) Option {
	return func(m *Manager) {
		m.cache = cache
	}
}

func WithRefreshTiming(margin, minimumDelay time.Duration) Option {
	return func(m *Manager) {
		m.refreshMargin = margin
		m.refreshMinDelay = minimumDelay
	}
}

func NewManager(bridge identity.Bridge, backend Backend, opts ...Option) *Manager {
	m := &Manager{
		bridge:          bridge,
		backend:         backend,
		tabStore:        NewMemoryStore(),
		clock:           clock.Real(),
		logger:          log.Logger.With().Str("component", "session").Logger(),
		refreshMargin:   defaultRefreshMargin,
		refreshMinDelay: defaultRefreshMinDelay,
		sessions:        make(map[Persona]*state),
		gens:            make(map[Persona]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scheduler = NewRefreshScheduler(m.clock, m.refreshMargin, m.refreshMinDelay, m.scheduledRefresh)

	if raw, ok := m.tabStore.Get(keyPersona); ok {
		if p, err := ParsePersona(raw); err == nil {
			m.active = p
		} else {
			m.tabStore.Delete(keyPersona)
		}
	}
	return m
}

// Scheduler exposes the owner refresh timer.
func (m *Manager) Scheduler() *RefreshScheduler { return m.scheduler }

func (m *Manager) Active() Persona {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// SetActive switches the active persona in one step and persists the choice
// to the tab store.
func (m *Manager) SetActive(p Persona) {
	m.mu.Lock()
	prev := m.swapActiveLocked(p)
	m.mu.Unlock()
	m.activated(prev, p)
}

func (m *Manager) swapActiveLocked(p Persona) Persona {
	prev := m.active
	m.active = p
	if p == PersonaNone {
		m.tabStore.Delete(keyPersona)
	} else {
		m.tabStore.Set(keyPersona, string(p))
	}
	return prev
}

func (m *Manager) activated(prev, p Persona) {
	if prev != p {
		m.logger.Info().Str("from", prev.String()).Str("to", p.String()).Msg("active persona changed")
		m.notify(PersonaEvent{Previous: prev, Current: p})
	}
}

func (m *Manager) generation(p Persona) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gens[p]
}

// commit runs install under the lock and makes p active, unless p was logged
// out after gen was read.
func (m *Manager) commit(p Persona, gen uint64, install func()) error {
	m.mu.Lock()
	if m.gens[p] != gen {
		m.mu.Unlock()
		m.logger.Debug().Str("persona", p.String()).Msg("discarding result for a signed out session")
		return errors.ErrSessionEnded
	}
	install()
	prev := m.swapActiveLocked(p)
	m.mu.Unlock()
	m.activated(prev, p)
	return nil
}

// OnPersonaChange registers fn for persona switches and logouts. The returned
// func removes it.
func (m *Manager) OnPersonaChange(fn func(PersonaEvent)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
	idx := len(m.listeners) - 1
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		m.listeners[idx] = nil
	}
}

func (m *Manager) notify(ev PersonaEvent) {
	m.listenersMu.Lock()
	listeners := append([]func(PersonaEvent){}, m.listeners...)
	m.listenersMu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(ev)
		}
	}
}

// Session returns a copy of the persona's current session.
func (m *Manager) Session(p Persona) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[p]
	if !ok {
		return Session{}
	}
	var s Session
	if st.token != nil {
		tok := *st.token
		s.Token = &tok
	}
	s.Profile = st.profile.clone()
	return s
}

// Profile returns the persona's domain profile. ErrAuthRequired means there
// is no token at all; ErrProfileAbsent means the identity is known but has
// no profile yet.
func (m *Manager) Profile(p Persona) (*Profile, error) {
	s := m.Session(p)
	switch {
	case s.Profile != nil:
		return s.Profile, nil
	case s.HasToken():
		return nil, errors.ErrProfileAbsent
	default:
		return nil, errors.ErrAuthRequired
	}
}

// OwnerID is the owner the active persona works on behalf of.
func (m *Manager) OwnerID() (string, error) {
	p := m.Active()
	if p == PersonaNone {
		return "", errors.ErrAuthRequired
	}
	profile, err := m.Profile(p)
	if err != nil {
		return "", err
	}
	if profile.OwnerID == "" {
		return "", errors.ErrProfileAbsent
	}
	return profile.OwnerID, nil
}

// Authenticated reports whether the persona holds a token and a profile.
// The fleet user is authenticated as soon as the identity provider says so.
func (m *Manager) Authenticated(ctx context.Context, p Persona) bool {
	switch p {
	case PersonaFleetUser:
		return m.bridge.IsAuthenticated(ctx)
	case PersonaOwner:
		s := m.Session(p)
		return s.HasToken() && s.Profile != nil
	}
	return false
}

// Credential returns the bearer token for the active persona. Owner tokens
// issued by direct login are served from memory; everything else comes from
// the identity bridge.
func (m *Manager) Credential(ctx context.Context) (string, error) {
	p := m.Active()
	if p == PersonaNone {
		return "", errors.ErrNoCredential
	}
	return m.credentialFor(ctx, p)
}

func (m *Manager) credentialFor(ctx context.Context, p Persona) (string, error) {
	m.mu.RLock()
	st := m.sessions[p]
	var cached string
	if st != nil && st.token != nil && !st.fromBridge {
		cached = st.token.AccessToken
	}
	m.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	tok, err := m.bridge.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrNoCredential, err)
	}
	m.mu.Lock()
	if st, ok := m.sessions[p]; ok && (st.token == nil || st.fromBridge) {
		st.token = &tok
		st.fromBridge = true
	}
	m.mu.Unlock()
	return tok.AccessToken, nil
}

// Login starts a redirect based sign-in for the persona. An empty returnTo
// lands on the persona's dashboard.
func (m *Manager) Login(ctx context.Context, p Persona, returnTo string) error {
	if !p.Valid() {
		return fmt.Errorf("[session Login] %w: %q", errors.ErrUnknownPersona, p)
	}
	if returnTo == "" {
		returnTo = defaultReturnTo[p]
	}
	if p == PersonaOwner {
		m.stopRefresh()
	}
	if err := m.bridge.Login(ctx, returnTo); err != nil {
		return errors.Wrapf(err, "[session Login] %s", p)
	}
	return nil
}

// LoginOwner signs the owner in with the backend's own credentials.
func (m *Manager) LoginOwner(ctx context.Context, creds Credentials) (*Profile, error) {
	m.stopRefresh()
	gen := m.generation(PersonaOwner)
	resp, err := m.backend.Login(ctx, creds)
	if err != nil {
		return nil, errors.Wrapf(err, "[session LoginOwner] login failed")
	}
	profile, err := m.applyAuthResponse(resp, gen)
	if err != nil {
		return nil, errors.Wrapf(err, "[session LoginOwner]")
	}
	m.logger.Info().Str("ownerId", profile.OwnerID).Msg("owner signed in")
	return profile, nil
}

// Refresh renews the owner's directly issued token. With no stored refresh
// credential it does nothing and returns (nil, nil). On failure the existing
// session is left untouched.
func (m *Manager) Refresh(ctx context.Context, p Persona) (*Profile, error) {
	if p != PersonaOwner {
		return nil, nil
	}
	gen := m.generation(PersonaOwner)
	refreshToken, ok := m.tabStore.Get(keyOwnerRefreshToken)
	if !ok || refreshToken == "" {
		return nil, nil
	}

	resp, err := m.backend.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("[session Refresh] %w: %w", errors.ErrRefreshFailed, err)
	}
	profile, err := m.applyAuthResponse(resp, gen)
	if err != nil {
		return nil, fmt.Errorf("[session Refresh] %w: %w", errors.ErrRefreshFailed, err)
	}
	m.logger.Debug().Str("ownerId", profile.OwnerID).Msg("owner token refreshed")
	return profile, nil
}

func (m *Manager) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledRefreshLimit)
	defer cancel()

	m.mu.Lock()
	m.cancelRefresh = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancelRefresh = nil
		m.mu.Unlock()
	}()

	if _, err := m.Refresh(ctx, PersonaOwner); err != nil {
		m.logger.Warn().Err(err).Msg("scheduled token refresh failed")
	}
}

// stopRefresh cancels the pending timer and any refresh already running.
func (m *Manager) stopRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRefreshLocked()
}

func (m *Manager) stopRefreshLocked() {
	m.scheduler.Cancel()
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
}

// applyAuthResponse installs a login or refresh result. The access token is
// only held in memory; the refresh token goes to the tab store.
func (m *Manager) applyAuthResponse(resp *api.AuthResponse, gen uint64) (*Profile, error) {
	expiresAt, err := resp.ExpiresAt()
	if err != nil {
		return nil, err
	}
	profile := ownerProfile(&resp.Owner)

	err = m.commit(PersonaOwner, gen, func() {
		m.sessions[PersonaOwner] = &state{
			token:   &identity.Token{AccessToken: resp.AccessToken, ExpiresAt: expiresAt},
			profile: profile,
		}
		if resp.RefreshToken != "" {
			m.tabStore.Set(keyOwnerRefreshToken, resp.RefreshToken)
		}
		m.cacheOwner(&resp.Owner)
		m.scheduler.Schedule(expiresAt)
	})
	if err != nil {
		return nil, err
	}
	return profile.clone(), nil
}

// Sync loads the persona's domain profile. Concurrent calls for the same
// persona share one backend round trip. A missing owner profile is not an
// error: Sync returns (nil, nil) and the token is kept.
func (m *Manager) Sync(ctx context.Context, p Persona) (*Profile, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("[session Sync] %w: %q", errors.ErrUnknownPersona, p)
	}
	// the shared call must outlive any single caller giving up
	ch := m.syncGroup.DoChan(string(p), func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncLimit)
		defer cancel()
		if p == PersonaOwner {
			return m.syncOwner(shared)
		}
		return m.syncFleetUser(shared)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		profile, _ := res.Val.(*Profile)
		return profile.clone(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("[session Sync] %s: %w", p, ctx.Err())
	}
}

func (m *Manager) syncOwner(ctx context.Context) (*Profile, error) {
	gen := m.generation(PersonaOwner)
	tok, fromBridge, err := m.ownerToken(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[session Sync] owner")
	}
	if !m.installToken(PersonaOwner, gen, tok, fromBridge) {
		return nil, fmt.Errorf("[session Sync] owner: %w", errors.ErrSessionEnded)
	}

	owner, err := m.backend.GetOwnerMe(api.ContextWithToken(ctx, tok.AccessToken))
	switch {
	case errors.Is(err, errors.ErrNotFound):
		m.logger.Info().Msg("identity has no owner profile")
		m.clearProfile(PersonaOwner, gen)
		return nil, nil
	case errors.Is(err, errors.ErrAuthRejected), errors.Is(err, errors.ErrForbidden):
		m.clearProfile(PersonaOwner, gen)
		if errors.Is(err, errors.ErrAuthRejected) {
			return nil, errors.Wrapf(err, "[session Sync] owner")
		}
		return nil, fmt.Errorf("[session Sync] owner: %w: %w", errors.ErrAuthRejected, err)
	case err != nil:
		return nil, errors.Wrapf(err, "[session Sync] owner")
	}

	profile := ownerProfile(owner)
	err = m.commit(PersonaOwner, gen, func() {
		m.stateLocked(PersonaOwner).profile = profile
		m.cacheOwner(owner)
	})
	if err != nil {
		return nil, fmt.Errorf("[session Sync] owner: %w", err)
	}
	return profile, nil
}

func (m *Manager) installToken(p Persona, gen uint64, tok identity.Token, fromBridge bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[p] != gen {
		return false
	}
	st := m.stateLocked(p)
	st.token, st.fromBridge = &tok, fromBridge
	return true
}

// clearProfile drops the profile but keeps the token: the identity is signed
// in without a domain profile.
func (m *Manager) clearProfile(p Persona, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[p] != gen {
		return
	}
	m.stateLocked(p).profile = nil
	if p == PersonaOwner {
		m.cacheOwner(nil)
	}
}

// ownerToken prefers the bridge, falling back to a directly issued token.
func (m *Manager) ownerToken(ctx context.Context) (identity.Token, bool, error) {
	tok, err := m.bridge.Token(ctx)
	if err == nil {
		return tok, true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st := m.sessions[PersonaOwner]; st != nil && st.token != nil && !st.fromBridge {
		return *st.token, false, nil
	}
	return identity.Token{}, false, err
}

func (m *Manager) syncFleetUser(ctx context.Context) (*Profile, error) {
	gen := m.generation(PersonaFleetUser)
	tok, err := m.bridge.Token(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[session Sync] fleet-user")
	}
	claims, err := identity.ParseClaims(tok.AccessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("fleet user token carries no readable claims")
	}
	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = claims.ExpiresAt
	}
	profile := claimsProfile(claims)

	err = m.commit(PersonaFleetUser, gen, func() {
		m.sessions[PersonaFleetUser] = &state{token: &tok, fromBridge: true, profile: profile}
	})
	if err != nil {
		return nil, fmt.Errorf("[session Sync] fleet-user: %w", err)
	}
	return profile, nil
}

// Logout clears the persona's state, deactivates it if active and ends the
// identity provider session. An owner signed in with direct credentials never
// touched the identity provider, so its logout leaves the provider session
// (and the fleet user riding on it) alone.
func (m *Manager) Logout(ctx context.Context, p Persona) error {
	if !p.Valid() {
		return fmt.Errorf("[session Logout] %w: %q", errors.ErrUnknownPersona, p)
	}

	m.mu.Lock()
	st := m.sessions[p]
	direct := p == PersonaOwner && st != nil && st.token != nil && !st.fromBridge
	delete(m.sessions, p)
	m.gens[p]++
	prev := m.active
	if m.active == p {
		m.active = PersonaNone
	}
	current := m.active
	if p == PersonaOwner {
		m.stopRefreshLocked()
		m.tabStore.Delete(keyOwnerRefreshToken)
		m.cacheOwner(nil)
	}
	if current == PersonaNone {
		m.tabStore.Delete(keyPersona)
	}
	m.mu.Unlock()

	m.logger.Info().Str("persona", p.String()).Msg("signed out")
	m.notify(PersonaEvent{Previous: prev, Current: current, LoggedOut: p})

	if direct {
		return nil
	}
	if err := m.bridge.Logout(ctx); err != nil {
		return errors.Wrapf(err, "[session Logout] failed to end identity provider session")
	}
	return nil
}

// UpdateProfile saves changes to the owner profile.
func (m *Manager) UpdateProfile(ctx context.Context, update fleet.OwnerUpdate) (*Profile, error) {
	token, err := m.credentialFor(ctx, PersonaOwner)
	if err != nil {
		return nil, errors.Wrapf(err, "[session UpdateProfile]")
	}
	owner, err := m.backend.UpdateOwnerMe(api.ContextWithToken(ctx, token), update)
	if err != nil {
		return nil, errors.Wrapf(err, "[session UpdateProfile]")
	}
	profile := ownerProfile(owner)
	m.setProfile(PersonaOwner, profile)
	m.cacheOwner(owner)
	return profile.clone(), nil
}

// BeginRegistration parks the registration form in the tab store and sends
// the user to the identity provider.
func (m *Manager) BeginRegistration(ctx context.Context, reg fleet.OwnerRegistration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("[session BeginRegistration] failed to encode registration: %w", err)
	}
	m.tabStore.Set(keyPendingRegistration, string(data))
	if err := m.bridge.Login(ctx, RegistrationReturnTo); err != nil {
		m.tabStore.Delete(keyPendingRegistration)
		return errors.Wrapf(err, "[session BeginRegistration]")
	}
	return nil
}

func (m *Manager) HasPendingRegistration() bool {
	_, ok := m.tabStore.Get(keyPendingRegistration)
	return ok
}

// CompleteRegistration creates the owner profile from the parked form once
// the identity provider has signed the user in. It returns (nil, nil) if no
// registration is pending. The parked form is consumed either way.
func (m *Manager) CompleteRegistration(ctx context.Context) (*Profile, error) {
	raw, ok := m.tabStore.Get(keyPendingRegistration)
	if !ok {
		return nil, nil
	}
	gen := m.generation(PersonaOwner)
	defer m.tabStore.Delete(keyPendingRegistration)

	var reg fleet.OwnerRegistration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		return nil, fmt.Errorf("[session CompleteRegistration] invalid pending registration: %w", err)
	}
	tok, err := m.bridge.Token(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "[session CompleteRegistration]")
	}
	owner, err := m.backend.CreateOwner(api.ContextWithToken(ctx, tok.AccessToken), reg.CreateOwnerRequest())
	if err != nil {
		return nil, errors.Wrapf(err, "[session CompleteRegistration]")
	}

	profile := ownerProfile(owner)
	err = m.commit(PersonaOwner, gen, func() {
		m.sessions[PersonaOwner] = &state{token: &tok, fromBridge: true, profile: profile}
		m.cacheOwner(owner)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[session CompleteRegistration]")
	}
	m.logger.Info().Str("ownerId", owner.ID).Msg("owner registered")
	return profile.clone(), nil
}

func (m *Manager) stateLocked(p Persona) *state {
	st, ok := m.sessions[p]
	if !ok {
		st = &state{}
		m.sessions[p] = st
	}
	return st
}

func (m *Manager) setProfile(p Persona, profile *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateLocked(p).profile = profile
}

func (m *Manager) cacheOwner(owner *fleet.Owner) {
	if m.cache != nil {
		m.cache.SetOwner(owner)
	}
}
