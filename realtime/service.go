// Package realtime keeps the local entity cache in sync with server-pushed
// fleet and vehicle events.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const startLimit = 30 * time.Second

type Service struct {
	cache   *store.Store
	policy  Policy
	clock   clock.Clock
	nowFunc func() time.Time
	logger  zerolog.Logger

	fleets   *Connection
	vehicles *Connection

	startGroup singleflight.Group
	startMu    sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithNowFunc sets the time used to stamp fleets that carry no timestamps.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(factory ChannelFactory, source CredentialSource, cache *store.Store, opts ...Option) *Service {
	s := &Service{
		cache:   cache,
		policy:  DefaultPolicy(),
		clock:   clock.Real(),
		nowFunc: time.Now,
		logger:  log.Logger.With().Str("component", "realtime").Logger(),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fleets = newConnection(TopicFleetEvents, factory, source, s.policy, s.clock, s.logger, s.publish)
	s.vehicles = newConnection(TopicVehicleEvents, factory, source, s.policy, s.clock, s.logger, s.publish)
	s.registerHandlers()
	return s
}

// Start connects both topics for contextID (the owner id). It returns
// immediately if already connected for the same id, shares the outcome of a
// connect already in flight, and stops first if connected for another id.
func (s *Service) Start(ctx context.Context, contextID string) error {
	if contextID == "" {
		return fmt.Errorf("[realtime Start] %w: empty context id", errors.ErrChannelConnectFailed)
	}
	ch := s.startGroup.DoChan("start:"+contextID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), startLimit)
		defer cancel()
		return nil, s.start(shared, contextID)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("[realtime Start] %w", ctx.Err())
	}
}

func (s *Service) start(ctx context.Context, contextID string) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	for _, conn := range s.connections() {
		if id := conn.ContextID(); id != "" && id != contextID {
			s.logger.Info().Str("from", id).Str("to", contextID).Msg("context changed, restarting channels")
			s.stop()
			break
		}
	}

	if s.fleets.State() != Connected {
		if err := s.fleets.Connect(ctx, contextID); err != nil {
			s.logger.Warn().Err(err).Msg("fleet channel connect failed")
			return err
		}
		// some hubs scope groups from the credential alone
		if err := s.fleets.JoinGroup(ctx, contextID); err != nil {
			s.logger.Info().Err(err).Msg("fleet group join not accepted")
		}
	}
	if s.vehicles.State() != Connected {
		if err := s.vehicles.Connect(ctx, contextID); err != nil {
			s.logger.Warn().Err(err).Msg("vehicle channel connect failed")
			return err
		}
	}
	return nil
}

// Stop closes both channels. It is idempotent.
func (s *Service) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.stop()
}

func (s *Service) stop() {
	for _, conn := range s.connections() {
		conn.Stop()
	}
}

// JoinFleetGroup subscribes to vehicle events for one fleet.
func (s *Service) JoinFleetGroup(ctx context.Context, fleetID string) error {
	if err := s.vehicles.JoinGroup(ctx, fleetID); err != nil {
		return errors.Wrapf(err, "[realtime JoinFleetGroup] %s", fleetID)
	}
	return nil
}

func (s *Service) LeaveFleetGroup(ctx context.Context, fleetID string) error {
	if err := s.vehicles.LeaveGroup(ctx, fleetID); err != nil {
		return errors.Wrapf(err, "[realtime LeaveFleetGroup] %s", fleetID)
	}
	return nil
}

func (s *Service) State(topic Topic) State {
	for _, conn := range s.connections() {
		if conn.Topic() == topic {
			return conn.State()
		}
	}
	return Disconnected
}

// Connected reports whether every topic is connected.
func (s *Service) Connected() bool {
	for _, conn := range s.connections() {
		if conn.State() != Connected {
			return false
		}
	}
	return true
}

func (s *Service) Connection(topic Topic) *Connection {
	if topic == TopicVehicleEvents {
		return s.vehicles
	}
	return s.fleets
}

func (s *Service) connections() []*Connection {
	return []*Connection{s.fleets, s.vehicles}
}

// Subscribe registers fn for state changes and errors. The returned func
// removes it.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Service) publish(ev Event) {
	s.subsMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
