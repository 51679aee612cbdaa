package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

// Countries never fails; reference data is optional and an unreachable or
// failing backend yields an empty list.
func (c *Client) Countries(ctx context.Context) []fleet.Country {
	countries := []fleet.Country{}
	if err := c.do(ctx, http.MethodGet, "/api/Countries", nil, nil, &countries); err != nil {
		c.logger.Debug().Err(err).Msg("countries unavailable")
		return []fleet.Country{}
	}
	return countries
}

// Cities lists cities, optionally for one country. Like Countries it degrades
// to an empty list.
func (c *Client) Cities(ctx context.Context, countryID string) []fleet.City {
	query := url.Values{}
	if countryID != "" {
		query.Set("countryId", countryID)
	}
	cities := []fleet.City{}
	if err := c.do(ctx, http.MethodGet, "/api/Cities", query, nil, &cities); err != nil {
		c.logger.Debug().Err(err).Msg("cities unavailable")
		return []fleet.City{}
	}
	return cities
}
