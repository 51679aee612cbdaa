// Package channelfake provides scriptable realtime channels for tests.
package channelfake

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/realtime"
)

type Invocation struct {
	Method string
	Args   []any
}

// Channel is an in-memory realtime.Channel.
type Channel struct {
	Topic realtime.Topic
	Token string

	factory *Factory

	mu              sync.Mutex
	handlers        map[string]func([]json.RawMessage)
	handlersAtStart []string
	invocations     []Invocation
	started         bool
	isClosed        bool

	closeOnce sync.Once
	closed    chan error
}

var _ realtime.Channel = (*Channel)(nil)

func (c *Channel) On(target string, handler func([]json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[target] = handler
}

func (c *Channel) Start(ctx context.Context) error {
	if err := c.factory.waitStart(ctx, c.Topic); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	for target := range c.handlers {
		c.handlersAtStart = append(c.handlersAtStart, target)
	}
	return nil
}

func (c *Channel) Invoke(_ context.Context, method string, args ...any) error {
	c.mu.Lock()
	c.invocations = append(c.invocations, Invocation{Method: method, Args: args})
	c.mu.Unlock()
	return c.factory.invokeError(method)
}

func (c *Channel) Closed() <-chan error { return c.closed }

func (c *Channel) Close() error {
	c.end(nil)
	return nil
}

// Drop ends the channel as if the server went away. A nil err is a clean
// close.
func (c *Channel) Drop(err error) {
	c.end(err)
}

func (c *Channel) end(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isClosed = true
		c.mu.Unlock()
		c.closed <- err
	})
}

// Emit delivers a server invocation to the registered handler.
func (c *Channel) Emit(target string, payloads ...any) {
	args := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			panic(err)
		}
		args = append(args, data)
	}
	c.mu.Lock()
	handler := c.handlers[target]
	c.mu.Unlock()
	if handler != nil {
		handler(args)
	}
}

func (c *Channel) HandlersAtStart() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.handlersAtStart...)
}

func (c *Channel) Invocations() []Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Invocation(nil), c.invocations...)
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

// Factory hands out Channels and scripts their Start and Invoke outcomes.
type Factory struct {
	mu        sync.Mutex
	channels  map[realtime.Topic][]*Channel
	starts    map[realtime.Topic]int
	startErr  map[realtime.Topic]error
	invokeErr map[string]error
	startGate chan struct{}
}

func NewFactory() *Factory {
	return &Factory{
		channels:  make(map[realtime.Topic][]*Channel),
		starts:    make(map[realtime.Topic]int),
		startErr:  make(map[realtime.Topic]error),
		invokeErr: make(map[string]error),
	}
}

// New is a realtime.ChannelFactory.
func (f *Factory) New(topic realtime.Topic, token string) (realtime.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &Channel{
		Topic:    topic,
		Token:    token,
		factory:  f,
		handlers: make(map[string]func([]json.RawMessage)),
		closed:   make(chan error, 1),
	}
	f.channels[topic] = append(f.channels[topic], ch)
	return ch, nil
}

// FailStart makes every later Start for topic fail with err until cleared
// with a nil err.
func (f *Factory) FailStart(topic realtime.Topic, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.startErr, topic)
		return
	}
	f.startErr[topic] = err
}

func (f *Factory) FailInvoke(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokeErr[method] = err
}

// HoldStarts blocks every Start until the returned func is called.
func (f *Factory) HoldStarts() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.startGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.startGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *Factory) waitStart(ctx context.Context, topic realtime.Topic) error {
	f.mu.Lock()
	f.starts[topic]++
	gate := f.startGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startErr[topic]
}

func (f *Factory) invokeError(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invokeErr[method]
}

// Starts counts Start calls for topic, including failed ones.
func (f *Factory) Starts(topic realtime.Topic) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[topic]
}

func (f *Factory) Channels(topic realtime.Topic) []*Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Channel(nil), f.channels[topic]...)
}

// Latest returns the most recently opened channel for topic.
func (f *Factory) Latest(topic realtime.Topic) *Channel {
	chs := f.Channels(topic)
	if len(chs) == 0 {
		return nil
	}
	return chs[len(chs)-1]
}

// ErrRefused is a convenient start failure.
var ErrRefused = errors.New("connection refused")
