package realtime

import (
	"context"
	"encoding/json"
)

// Channel is one push connection to a server hub.
type Channel interface {
	// On registers the handler for a server-invoked target. Handlers must be
	// registered before Start and are called from the channel's read loop,
	// in arrival order.
	On(target string, handler func(args []json.RawMessage))
	Start(ctx context.Context) error
	Invoke(ctx context.Context, method string, args ...any) error
	// Closed receives exactly once when the channel ends. A nil value means
	// the channel was closed locally.
	Closed() <-chan error
	Close() error
}

// ChannelFactory opens a new, unstarted channel for topic using token.
type ChannelFactory func(topic Topic, token string) (Channel, error)

// CredentialSource supplies the bearer token for each (re)connect.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) { return f(ctx) }
