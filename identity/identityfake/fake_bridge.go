package identityfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-fleet-portal/identity"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
)

// Bridge is an in-memory identity.Bridge for tests.
type Bridge struct {
	mu            sync.Mutex
	authenticated bool
	token         identity.Token
	tokenErr      error
	loginErr      error
	tokenCalls    int
	logins        []string
	logouts       int
}

var _ identity.Bridge = (*Bridge)(nil)

func NewFakeBridge() *Bridge {
	return &Bridge{}
}

// SignIn makes the bridge authenticated with tok.
func (b *Bridge) SignIn(tok identity.Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authenticated = true
	b.token = tok
	b.tokenErr = nil
}

// FailToken makes subsequent Token calls return err.
func (b *Bridge) FailToken(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenErr = err
}

func (b *Bridge) FailLogin(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginErr = err
}

func (b *Bridge) IsAuthenticated(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authenticated
}

func (b *Bridge) Token(context.Context) (identity.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenCalls++
	if b.tokenErr != nil {
		return identity.Token{}, b.tokenErr
	}
	if !b.authenticated {
		return identity.Token{}, errors.ErrAuthRequired
	}
	return b.token, nil
}

func (b *Bridge) Login(_ context.Context, returnTo string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logins = append(b.logins, returnTo)
	return b.loginErr
}

func (b *Bridge) Logout(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	b.authenticated = false
	b.token = identity.Token{}
	return nil
}

func (b *Bridge) TokenCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokenCalls
}

func (b *Bridge) Logins() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.logins...)
}

func (b *Bridge) Logouts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logouts
}
