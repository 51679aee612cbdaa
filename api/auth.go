package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// AuthResponse is returned by both login and refresh.
type AuthResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAtUTC string      `json:"expiresAtUtc"`
	Owner        fleet.Owner `json:"owner"`
}

// backendTimeLayouts are tried in order; the backend omits the zone on some
// endpoints and always means UTC.
var backendTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// ExpiresAt parses ExpiresAtUTC.
func (r AuthResponse) ExpiresAt() (time.Time, error) {
	for _, layout := range backendTimeLayouts {
		if t, err := time.ParseInLocation(layout, r.ExpiresAtUTC, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiresAtUtc %q", r.ExpiresAtUTC)
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
