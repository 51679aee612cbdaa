package config

import "time"

type SessionConfig interface {
	GetRefreshSafetyMargin() time.Duration
	GetRefreshMinimumDelay() time.Duration
	GetTokenFetchTimeout() time.Duration
}

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

func (s Session) src() *File { return orEmpty(s.file) }

// GetRefreshSafetyMargin is how long before expiry a token is renewed.
func (s Session) GetRefreshSafetyMargin() time.Duration {
	return lookupDuration("SESSION_REFRESH_MARGIN", s.src().Session.RefreshSafetyMargin, 30*time.Second)
}

// GetRefreshMinimumDelay bounds how soon a refresh may fire so short-lived
// tokens cannot cause a refresh storm.
func (s Session) GetRefreshMinimumDelay() time.Duration {
	return lookupDuration("SESSION_REFRESH_MIN_DELAY", s.src().Session.RefreshMinimumDelay, 30*time.Second)
}

func (s Session) GetTokenFetchTimeout() time.Duration {
	return lookupDuration("SESSION_TOKEN_FETCH_TIMEOUT", s.src().Session.TokenFetchTimeout, 5*time.Second)
}
