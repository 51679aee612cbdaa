package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SignalR JSON hub protocol framing.
const (
	recordSeparator = 0x1e

	msgInvocation = 1
	msgCompletion = 3
	msgPing       = 6
	msgClose      = 7

	defaultHandshakeTimeout = 15 * time.Second
	defaultKeepAlive        = 15 * time.Second
)

var handshakeRequest = []byte(`{"protocol":"json","version":1}`)

type hubMessage struct {
	Type           int               `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

type invocation struct {
	Type         int    `json:"type"`
	InvocationID string `json:"invocationId"`
	Target       string `json:"target"`
	Arguments    []any  `json:"arguments"`
}

type SignalROption func(*signalRConfig)

type signalRConfig struct {
	dialer    *websocket.Dialer
	keepAlive time.Duration
	logger    zerolog.Logger
}

func WithDialer(d *websocket.Dialer) SignalROption {
	return func(c *signalRConfig) {
		c.dialer = d
	}
}

// WithKeepAlive sets the client ping interval. Zero disables pings.
func WithKeepAlive(d time.Duration) SignalROption {
	return func(c *signalRConfig) {
		c.keepAlive = d
	}
}

func WithSignalRLogger(logger zerolog.Logger) SignalROption {
	return func(c *signalRConfig) {
		c.logger = logger
	}
}

// NewSignalRFactory returns a ChannelFactory that opens SignalR hubs under
// baseURL, one hub path per topic.
func NewSignalRFactory(baseURL string, hubs map[Topic]string, opts ...SignalROption) ChannelFactory {
	cfg := signalRConfig{
		dialer:    &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		keepAlive: defaultKeepAlive,
		logger:    log.Logger.With().Str("component", "signalr").Logger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(topic Topic, token string) (Channel, error) {
		path, ok := hubs[topic]
		if !ok {
			return nil, fmt.Errorf("no hub configured for topic %q", topic)
		}
		u, err := hubURL(baseURL, path, token)
		if err != nil {
			return nil, err
		}
		return newSignalRChannel(u, token, cfg), nil
	}
}

func hubURL(baseURL, path, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid hub url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// signalRChannel speaks the SignalR JSON hub protocol over one websocket.
type signalRChannel struct {
	url   string
	token string
	cfg   signalRConfig

	handlersMu sync.RWMutex
	handlers   map[string]func([]json.RawMessage)

	writeMu sync.Mutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan hubMessage
	nextID    atomic.Int64

	local  atomic.Bool
	finish sync.Once
	done   chan struct{}
	closed chan error
}

var _ Channel = (*signalRChannel)(nil)

func newSignalRChannel(url, token string, cfg signalRConfig) *signalRChannel {
	return &signalRChannel{
		url:      url,
		token:    token,
		cfg:      cfg,
		handlers: make(map[string]func([]json.RawMessage)),
		pending:  make(map[string]chan hubMessage),
		done:     make(chan struct{}),
		closed:   make(chan error, 1),
	}
}

func (c *signalRChannel) On(target string, handler func([]json.RawMessage)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[target] = handler
}

func (c *signalRChannel) Start(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.cfg.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	rest, err := c.handshake(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	// the server may pack hub messages into the handshake frame
	if c.handleFrame(rest) {
		return nil
	}
	go c.readLoop(conn)
	if c.cfg.keepAlive > 0 {
		go c.pingLoop()
	}
	return nil
}

// handshake negotiates the protocol and returns whatever followed the reply
// record in the same frame.
func (c *signalRChannel) handshake(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)
	defer func() {
		_ = conn.SetWriteDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Time{})
	}()

	if err := conn.WriteMessage(websocket.TextMessage, append(handshakeRequest, recordSeparator)); err != nil {
		return nil, fmt.Errorf("handshake write failed: %w", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("handshake read failed: %w", err)
	}
	first, rest, _ := bytes.Cut(data, []byte{recordSeparator})
	var reply struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(first, &reply); err != nil {
		return nil, fmt.Errorf("invalid handshake response: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("handshake rejected: %s", reply.Error)
	}
	return rest, nil
}

func (c *signalRChannel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.end(err)
			return
		}
		if c.handleFrame(data) {
			return
		}
	}
}

// handleFrame dispatches every record in one frame and reports whether the
// channel ended.
func (c *signalRChannel) handleFrame(data []byte) bool {
	for _, record := range bytes.Split(data, []byte{recordSeparator}) {
		if len(record) == 0 {
			continue
		}
		var msg hubMessage
		if err := json.Unmarshal(record, &msg); err != nil {
			c.cfg.logger.Warn().Err(err).Msg("dropping malformed hub message")
			continue
		}
		if c.dispatch(msg) {
			return true
		}
	}
	return false
}

// dispatch handles one message and reports whether the channel ended.
func (c *signalRChannel) dispatch(msg hubMessage) bool {
	switch msg.Type {
	case msgInvocation:
		c.handlersMu.RLock()
		handler := c.handlers[msg.Target]
		c.handlersMu.RUnlock()
		if handler != nil {
			handler(msg.Arguments)
		}
	case msgCompletion:
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.InvocationID]
		delete(c.pending, msg.InvocationID)
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	case msgPing:
	case msgClose:
		c.end(errors.New(closeReason(msg)))
		return true
	}
	return false
}

func closeReason(msg hubMessage) string {
	if msg.Error != "" {
		return "server closed connection: " + msg.Error
	}
	return "server closed connection"
}

func (c *signalRChannel) pingLoop() {
	ticker := time.NewTicker(c.cfg.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.write(map[string]int{"type": msgPing}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *signalRChannel) Invoke(ctx context.Context, method string, args ...any) error {
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	reply := make(chan hubMessage, 1)

	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if args == nil {
		args = []any{}
	}
	if err := c.write(invocation{Type: msgInvocation, InvocationID: id, Target: method, Arguments: args}); err != nil {
		return err
	}

	select {
	case msg := <-reply:
		if msg.Error != "" {
			return fmt.Errorf("hub method %s failed: %s", method, msg.Error)
		}
		return nil
	case <-c.done:
		return fmt.Errorf("hub method %s: %w", method, errors.ErrChannelClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *signalRChannel) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.ErrChannelClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, append(data, recordSeparator))
}

func (c *signalRChannel) Closed() <-chan error { return c.closed }

func (c *signalRChannel) Close() error {
	c.local.Store(true)

	c.writeMu.Lock()
	conn := c.conn
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	c.writeMu.Unlock()

	if conn == nil {
		c.end(nil)
		return nil
	}
	return conn.Close()
}

// end finishes the channel once, reporting nil for a local close.
func (c *signalRChannel) end(err error) {
	c.finish.Do(func() {
		if c.local.Load() {
			err = nil
		}
		c.writeMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.writeMu.Unlock()
		close(c.done)
		c.closed <- err
	})
}
