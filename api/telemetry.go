package api

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

// ListOwnerTelemetry returns the latest snapshot for each of the owner's vehicles.
func (c *Client) ListOwnerTelemetry(ctx context.Context, ownerID string) ([]fleet.Telemetry, error) {
	var items []fleet.Telemetry
	if err := c.do(ctx, http.MethodGet, "/api/owners/"+pathID(ownerID)+"/vehicles/telemetry", nil, nil, &items); err != nil {
		return nil, err
	}
	return fleet.NormalizeTelemetryList(items), nil
}
