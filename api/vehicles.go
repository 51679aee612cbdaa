package api

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

func (c *Client) AddVehicle(ctx context.Context, fleetID string, req fleet.CreateVehicleRequest) (*fleet.Vehicle, error) {
	req.FleetID = fleetID
	var v fleet.Vehicle
	if err := c.do(ctx, http.MethodPost, "/api/Fleets/"+pathID(fleetID)+"/vehicles", nil, req, &v); err != nil {
		return nil, err
	}
	v = fleet.NormalizeVehicle(v)
	return &v, nil
}

func (c *Client) UpdateVehicle(ctx context.Context, vehicleID string, req fleet.UpdateVehicleRequest) (*fleet.Vehicle, error) {
	var v fleet.Vehicle
	if err := c.do(ctx, http.MethodPut, "/api/Vehicles/"+pathID(vehicleID), nil, req, &v); err != nil {
		return nil, err
	}
	v = fleet.NormalizeVehicle(v)
	return &v, nil
}

// UpdateVehicleStatus sends only the status, as its numeric wire value.
func (c *Client) UpdateVehicleStatus(ctx context.Context, vehicleID string, status fleet.VehicleStatus) (*fleet.Vehicle, error) {
	body := map[string]int{"status": status.Code()}
	var v fleet.Vehicle
	if err := c.do(ctx, http.MethodPut, "/api/Vehicles/"+pathID(vehicleID), nil, body, &v); err != nil {
		return nil, err
	}
	v = fleet.NormalizeVehicle(v)
	return &v, nil
}

func (c *Client) DeleteVehicle(ctx context.Context, vehicleID string) error {
	return c.do(ctx, http.MethodDelete, "/api/Vehicles/"+pathID(vehicleID), nil, nil, nil)
}
