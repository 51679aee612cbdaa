package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/rs/zerolog"
)

const (
	joinGroupMethod  = "JoinFleetGroup"
	leaveGroupMethod = "LeaveFleetGroup"
)

// Connection drives the channel for one topic through
// Disconnected -> Connecting -> Connected -> Reconnecting -> ... -> Closed.
type Connection struct {
	topic    Topic
	factory  ChannelFactory
	source   CredentialSource
	policy   Policy
	clock    clock.Clock
	logger   zerolog.Logger
	onChange func(Event)

	handlers map[string]func([]json.RawMessage)

	mu        sync.Mutex
	id        string
	state     State
	channel   Channel
	contextID string
	groups    []string
	gen       uint64
	cancel    context.CancelFunc
}

func newConnection(topic Topic, factory ChannelFactory, source CredentialSource, policy Policy, clk clock.Clock, logger zerolog.Logger, onChange func(Event)) *Connection {
	return &Connection{
		topic:    topic,
		factory:  factory,
		source:   source,
		policy:   policy,
		clock:    clk,
		logger:   logger.With().Str("topic", string(topic)).Logger(),
		onChange: onChange,
		handlers: make(map[string]func([]json.RawMessage)),
	}
}

// handle must be called before the first Connect.
func (c *Connection) handle(target string, fn func([]json.RawMessage)) {
	c.handlers[target] = fn
}

func (c *Connection) Topic() Topic { return c.topic }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) ContextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextID
}

// Connect opens the channel. A failure leaves the connection Disconnected
// and is not retried; reconnects only follow a successful connect.
func (c *Connection) Connect(ctx context.Context, contextID string) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting || c.state == Reconnecting {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.state = Connecting
	c.contextID = contextID
	c.id = uuid.NewString()
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()
	c.emit(Connecting, nil)

	ch, err := c.open(ctx)
	if err != nil {
		cancel()
		if c.setState(gen, Disconnected, nil) {
			c.emit(Disconnected, err)
		}
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		// stopped while connecting
		c.mu.Unlock()
		_ = ch.Close()
		return fmt.Errorf("[realtime Connect] %s: %w", c.topic, errors.ErrChannelClosed)
	}
	c.channel = ch
	c.state = Connected
	id := c.id
	c.mu.Unlock()

	c.logger.Info().Str("connectionId", id).Str("contextId", contextID).Msg("channel connected")
	c.emit(Connected, nil)
	go c.watch(runCtx, gen, ch)
	return nil
}

// open builds a channel with a fresh token and every handler registered,
// then starts it.
func (c *Connection) open(ctx context.Context) (Channel, error) {
	token, err := c.source.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("[realtime open] %s: %w: %w", c.topic, errors.ErrChannelConnectFailed, err)
	}
	ch, err := c.factory(c.topic, token)
	if err != nil {
		return nil, fmt.Errorf("[realtime open] %s: %w: %w", c.topic, errors.ErrChannelConnectFailed, err)
	}
	for target, fn := range c.handlers {
		ch.On(target, fn)
	}
	if err := ch.Start(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("[realtime open] %s: %w: %w", c.topic, errors.ErrChannelConnectFailed, err)
	}
	return ch, nil
}

func (c *Connection) watch(ctx context.Context, gen uint64, ch Channel) {
	var err error
	select {
	case err = <-ch.Closed():
	case <-ctx.Done():
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.channel != ch {
		c.mu.Unlock()
		return
	}
	c.channel = nil
	if err == nil {
		c.state = Disconnected
		c.mu.Unlock()
		c.logger.Info().Msg("channel closed")
		c.emit(Disconnected, nil)
		return
	}
	c.state = Reconnecting
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("channel dropped, reconnecting")
	c.emit(Reconnecting, fmt.Errorf("[realtime watch] %s: %w: %w", c.topic, errors.ErrChannelDropped, err))
	c.reconnect(ctx, gen)
}

func (c *Connection) reconnect(ctx context.Context, gen uint64) {
	started := c.clock.Now()
	for retry := 0; ; retry++ {
		delay, ok := c.policy.Next(retry, c.clock.Now().Sub(started))
		if !ok {
			if c.setState(gen, Disconnected, nil) {
				c.logger.Error().Int("attempts", retry).Msg("reconnect abandoned")
				c.emit(Disconnected, fmt.Errorf("[realtime reconnect] %s: %w", c.topic, errors.ErrReconnectAbandoned))
			}
			return
		}

		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}

		ch, err := c.open(ctx)
		if err != nil {
			c.logger.Debug().Err(err).Int("retry", retry).Msg("reconnect attempt failed")
			continue
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			_ = ch.Close()
			return
		}
		c.channel = ch
		c.state = Connected
		groups := append([]string(nil), c.groups...)
		c.mu.Unlock()

		for _, group := range groups {
			if err := ch.Invoke(ctx, joinGroupMethod, group); err != nil {
				c.logger.Warn().Err(err).Str("group", group).Msg("failed to rejoin group")
			}
		}
		c.logger.Info().Int("retry", retry).Msg("channel reconnected")
		c.emit(Connected, nil)
		go c.watch(ctx, gen, ch)
		return
	}
}

// Invoke calls a hub method on the live channel.
func (c *Connection) Invoke(ctx context.Context, method string, args ...any) error {
	c.mu.Lock()
	ch := c.channel
	state := c.state
	c.mu.Unlock()
	if ch == nil || state != Connected {
		return fmt.Errorf("[realtime Invoke] %s %s: %w", c.topic, method, errors.ErrChannelClosed)
	}
	return ch.Invoke(ctx, method, args...)
}

// JoinGroup joins a server group and remembers it for rejoin after a
// reconnect.
func (c *Connection) JoinGroup(ctx context.Context, group string) error {
	if err := c.Invoke(ctx, joinGroupMethod, group); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.groups {
		if g == group {
			return nil
		}
	}
	c.groups = append(c.groups, group)
	return nil
}

func (c *Connection) LeaveGroup(ctx context.Context, group string) error {
	c.mu.Lock()
	for i, g := range c.groups {
		if g == group {
			c.groups = append(c.groups[:i], c.groups[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return c.Invoke(ctx, leaveGroupMethod, group)
}

// Groups returns the groups that will be rejoined after a reconnect.
func (c *Connection) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.groups...)
}

// Stop closes the channel and cancels any reconnect loop. Safe to call in
// any state, any number of times.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.state == Closed || (c.state == Disconnected && c.cancel == nil) {
		c.mu.Unlock()
		return
	}
	c.gen++
	ch := c.channel
	cancel := c.cancel
	c.channel = nil
	c.cancel = nil
	c.groups = nil
	c.contextID = ""
	c.state = Closed
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("error closing channel")
		}
	}
	c.logger.Info().Msg("channel stopped")
	c.emit(Closed, nil)
}

func (c *Connection) setState(gen uint64, state State, ch Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.state = state
	c.channel = ch
	return true
}

func (c *Connection) emit(state State, err error) {
	if c.onChange != nil {
		c.onChange(Event{Topic: c.topic, State: state, Err: err})
	}
}
