package api

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

// GetOwnerMe loads the owner profile for the presented credential. A 404
// means the identity has no owner profile yet.
func (c *Client) GetOwnerMe(ctx context.Context) (*fleet.Owner, error) {
	var owner fleet.Owner
	if err := c.do(ctx, http.MethodGet, "/api/Owners/me", nil, nil, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

func (c *Client) UpdateOwnerMe(ctx context.Context, update fleet.OwnerUpdate) (*fleet.Owner, error) {
	var owner fleet.Owner
	if err := c.do(ctx, http.MethodPut, "/api/Owners/me", nil, update, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

func (c *Client) CreateOwner(ctx context.Context, req fleet.CreateOwnerRequest) (*fleet.Owner, error) {
	var owner fleet.Owner
	if err := c.do(ctx, http.MethodPost, "/api/Owners", nil, req, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}
