// Package portal wires the session, authorization, realtime, polling and
// cache components into one running portal client.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-fleet-portal/api"
	"github.com/jrsteele09/go-fleet-portal/identity"
	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/jrsteele09/go-fleet-portal/internal/logging"
	"github.com/jrsteele09/go-fleet-portal/mediator"
	"github.com/jrsteele09/go-fleet-portal/polling"
	"github.com/jrsteele09/go-fleet-portal/realtime"
	"github.com/jrsteele09/go-fleet-portal/session"
	"github.com/jrsteele09/go-fleet-portal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const httpTimeout = 30 * time.Second

type Portal struct {
	env    string
	config config.Config
	logger zerolog.Logger
	clock  clock.Clock

	mux    *http.ServeMux
	routes []string

	Cache     *store.Store
	API       *api.Client
	Bridge    identity.Bridge
	Sessions  *session.Manager
	Realtime  *realtime.Service
	Poller    *polling.Coordinator
	intervals polling.Intervals

	dashboard *Dashboard
	fleets    *FleetView
}

type options struct {
	bridge    identity.Bridge
	navigator identity.Navigator
	factory   realtime.ChannelFactory
	transport http.RoundTripper
	tabStore  session.Store
	clock     clock.Clock
	logger    zerolog.Logger
}

type Option func(*options)

// WithBridge replaces the OIDC bridge built from config.
func WithBridge(b identity.Bridge) Option {
	return func(o *options) {
		o.bridge = b
	}
}

// WithNavigator sets how login and logout redirects are presented.
func WithNavigator(n identity.Navigator) Option {
	return func(o *options) {
		o.navigator = n
	}
}

func WithChannelFactory(f realtime.ChannelFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithTransport sets the base round tripper beneath the authorization
// mediator.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

func WithTabStore(s session.Store) Option {
	return func(o *options) {
		o.tabStore = s
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*Portal, error) {
	o := options{
		transport: http.DefaultTransport,
		tabStore:  session.NewMemoryStore(),
		clock:     clock.Real(),
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Portal{
		env:       cfg.GetEnv(),
		config:    cfg,
		logger:    o.logger.With().Str("component", "portal").Logger(),
		clock:     o.clock,
		mux:       http.NewServeMux(),
		Cache:     store.New(),
		intervals: polling.IntervalsFromConfig(cfg),
	}

	// the mediator reads the manager on every request, so it may be built first
	var sessions *session.Manager
	source := mediator.CredentialFunc(func(ctx context.Context) (string, error) {
		return sessions.Credential(ctx)
	})
	transport, err := mediator.New(cfg, source,
		mediator.WithBase(o.transport),
		mediator.WithLogger(logging.Component(o.logger, "mediator")),
	)
	if err != nil {
		return nil, fmt.Errorf("[portal New] failed to create authorization mediator: %w", err)
	}
	p.API = api.New(cfg.GetAPIBaseURL(),
		api.WithHTTPClient(&http.Client{
			Transport: mediator.Chain(transport, mediator.Logging(logging.Component(o.logger, "http"))),
			Timeout:   httpTimeout,
		}),
		api.WithNowFunc(o.clock.Now),
		api.WithLogger(logging.Component(o.logger, "api")),
	)

	p.Bridge = o.bridge
	if p.Bridge == nil {
		navigator := o.navigator
		if navigator == nil {
			navigator = p.logNavigator()
		}
		bridge, err := identity.NewOIDCBridge(ctx, cfg, navigator,
			identity.WithLoginHook(p.onIdentityLogin),
			identity.WithNowFunc(o.clock.Now),
			identity.WithLogger(logging.Component(o.logger, "identity")),
		)
		if err != nil {
			return nil, fmt.Errorf("[portal New] failed to create identity bridge: %w", err)
		}
		p.Bridge = bridge
	}

	sessions = session.NewManager(p.Bridge, p.API,
		session.WithClock(o.clock),
		session.WithLogger(logging.Component(o.logger, "session")),
		session.WithTabStore(o.tabStore),
		session.WithEntityCache(p.Cache),
		session.WithRefreshTiming(cfg.GetRefreshSafetyMargin(), cfg.GetRefreshMinimumDelay()),
	)
	p.Sessions = sessions

	factory := o.factory
	if factory == nil {
		factory = realtime.NewSignalRFactory(cfg.GetAPIBaseURL(), map[realtime.Topic]string{
			realtime.TopicFleetEvents:   cfg.GetFleetHubPath(),
			realtime.TopicVehicleEvents: cfg.GetVehicleHubPath(),
		}, realtime.WithSignalRLogger(logging.Component(o.logger, "signalr")))
	}
	p.Realtime = realtime.NewService(factory, sessions, p.Cache,
		realtime.WithPolicy(realtime.PolicyFromConfig(cfg)),
		realtime.WithClock(o.clock),
		realtime.WithNowFunc(o.clock.Now),
		realtime.WithLogger(logging.Component(o.logger, "realtime")),
	)
	p.Poller = polling.New(
		polling.WithClock(o.clock),
		polling.WithLogger(logging.Component(o.logger, "polling")),
	)
	p.dashboard = &Dashboard{portal: p}
	p.fleets = &FleetView{portal: p}

	sessions.OnPersonaChange(p.onPersonaChange)

	p.initRoutes()
	p.logRoutes()
	return p, nil
}

// Dashboard returns the owner dashboard view.
func (p *Portal) Dashboard() *Dashboard { return p.dashboard }

// Fleets returns the fleet management view.
func (p *Portal) Fleets() *FleetView { return p.fleets }

// onPersonaChange tears down everything bound to the previous persona.
func (p *Portal) onPersonaChange(ev session.PersonaEvent) {
	if ev.Previous == session.PersonaNone || ev.Previous == ev.Current {
		return
	}
	p.logger.Info().
		Str("from", ev.Previous.String()).
		Str("to", ev.Current.String()).
		Msg("persona changed, stopping realtime channel")
	p.dashboard.Close()
	p.fleets.reset()
	p.Realtime.Stop()
	if ev.Current == session.PersonaNone {
		p.Cache.Reset()
	}
}

// onIdentityLogin runs after the identity provider redirect completes.
func (p *Portal) onIdentityLogin(ctx context.Context, returnTo string) {
	if p.Sessions.HasPendingRegistration() {
		if _, err := p.Sessions.CompleteRegistration(ctx); err != nil {
			p.logger.Error().Err(err).Msg("owner registration failed")
		}
		return
	}
	persona := session.PersonaFleetUser
	if strings.HasPrefix(returnTo, "/owner") {
		persona = session.PersonaOwner
	}
	profile, err := p.Sessions.Sync(ctx, persona)
	switch {
	case err != nil:
		p.logger.Error().Err(err).Str("persona", persona.String()).Msg("profile sync failed")
	case profile == nil:
		p.logger.Info().Str("persona", persona.String()).Msg("signed in without a profile, registration required")
	default:
		p.logger.Info().Str("persona", persona.String()).Str("ownerId", profile.OwnerID).Msg("signed in")
	}
}

func (p *Portal) logNavigator() identity.Navigator {
	return identity.NavigatorFunc(func(_ context.Context, url string) error {
		p.logger.Info().Str("url", url).Msg("open this URL in a browser to continue")
		return nil
	})
}

// Shutdown closes the dashboard and the realtime channel.
func (p *Portal) Shutdown() {
	p.dashboard.Close()
	p.Realtime.Stop()
}

func (p *Portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}
