// Package identity adapts an external identity provider to the four
// operations the session layer consumes.
package identity

import (
	"context"
	"time"
)

// Token is a bearer credential and its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the token has expired at now. A zero expiry never expires.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Bridge is the client-visible contract of the identity provider.
type Bridge interface {
	IsAuthenticated(ctx context.Context) bool
	// Token returns a current access token or an error wrapping ErrAuthRequired.
	Token(ctx context.Context) (Token, error)
	// Login starts the provider redirect; control returns through the callback.
	Login(ctx context.Context, returnTo string) error
	Logout(ctx context.Context) error
}

// Navigator sends the user agent to a URL. In a browser this is a redirect;
// the headless agent prints the URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}
