package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

func (c *Client) ListFleets(ctx context.Context, ownerID string, page fleet.Pagination) (fleet.Page[fleet.Fleet], error) {
	query := url.Values{}
	if page.Page > 0 && page.Size > 0 {
		query.Set("page", strconv.Itoa(page.Page))
		query.Set("size", strconv.Itoa(page.Size))
	}

	var resp fleet.APIPage[fleet.Fleet]
	if err := c.do(ctx, http.MethodGet, "/api/owners/"+pathID(ownerID)+"/fleets", query, nil, &resp); err != nil {
		return fleet.Page[fleet.Fleet]{}, err
	}
	now := c.nowFunc()
	return fleet.NormalizePage(resp, func(f fleet.Fleet) fleet.Fleet {
		return fleet.NormalizeFleet(f, now)
	}), nil
}

func (c *Client) GetFleet(ctx context.Context, fleetID string) (*fleet.FleetDetail, error) {
	var detail fleet.FleetDetail
	if err := c.do(ctx, http.MethodGet, "/api/Fleets/"+pathID(fleetID), nil, nil, &detail); err != nil {
		return nil, err
	}
	detail = fleet.NormalizeFleetDetail(detail, c.nowFunc())
	return &detail, nil
}

// CreateFleet posts to the owner's nested route; the owner id defaults to ownerID.
func (c *Client) CreateFleet(ctx context.Context, ownerID string, req fleet.CreateFleetRequest) (*fleet.Fleet, error) {
	if req.OwnerID == "" {
		req.OwnerID = ownerID
	}
	var f fleet.Fleet
	if err := c.do(ctx, http.MethodPost, "/api/owners/"+pathID(ownerID)+"/fleets", nil, req, &f); err != nil {
		return nil, err
	}
	f = fleet.NormalizeFleet(f, c.nowFunc())
	return &f, nil
}

func (c *Client) UpdateFleet(ctx context.Context, fleetID string, req fleet.UpdateFleetRequest) (*fleet.Fleet, error) {
	var f fleet.Fleet
	if err := c.do(ctx, http.MethodPut, "/api/Fleets/"+pathID(fleetID), nil, req, &f); err != nil {
		return nil, err
	}
	f = fleet.NormalizeFleet(f, c.nowFunc())
	return &f, nil
}

func (c *Client) DeleteFleet(ctx context.Context, fleetID string) error {
	return c.do(ctx, http.MethodDelete, "/api/Fleets/"+pathID(fleetID), nil, nil, nil)
}
