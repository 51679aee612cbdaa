package portal

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
)

// FleetView manages the owner's fleets and the vehicles of the selected
// fleet. Every successful mutation is written back to the cache, so the cache
// agrees with the backend without waiting for a push event or a poll.
type FleetView struct {
	portal *Portal

	mu       sync.Mutex
	selected string
}

// Selected returns the selected fleet id, or "" when none is selected.
func (v *FleetView) Selected() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// Select loads the fleet's detail, replaces the cached vehicles with its
// vehicles and joins the fleet's vehicle event group. A group the hub will
// not join is logged; vehicle polling is not needed since the detail was
// just loaded.
func (v *FleetView) Select(ctx context.Context, fleetID string) (*fleet.FleetDetail, error) {
	p := v.portal
	detail, err := p.API.GetFleet(ctx, fleetID)
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.Select] fleet %s", fleetID)
	}

	v.mu.Lock()
	previous := v.selected
	v.selected = detail.ID
	v.mu.Unlock()

	if previous != "" && previous != detail.ID {
		v.leave(ctx, previous)
	}
	v.upsertFleet(detail.Fleet)
	vehicles := make([]fleet.Vehicle, 0, len(detail.Vehicles))
	for _, vehicle := range detail.Vehicles {
		vehicles = append(vehicles, fleet.NormalizeVehicle(vehicle))
	}
	p.Cache.SetVehicles(vehicles)

	if err := p.Realtime.JoinFleetGroup(ctx, detail.ID); err != nil {
		p.logger.Warn().Err(err).Str("fleetId", detail.ID).Msg("vehicle events for fleet unavailable")
	}
	return detail, nil
}

// Deselect leaves the selected fleet's group and clears the cached vehicles.
func (v *FleetView) Deselect(ctx context.Context) {
	v.mu.Lock()
	previous := v.selected
	v.selected = ""
	v.mu.Unlock()

	if previous == "" {
		return
	}
	v.leave(ctx, previous)
	v.portal.Cache.SetVehicles(nil)
}

// reset forgets the selection without talking to the hub. Used when the
// channel is already being torn down.
func (v *FleetView) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = ""
}

func (v *FleetView) leave(ctx context.Context, fleetID string) {
	if err := v.portal.Realtime.LeaveFleetGroup(ctx, fleetID); err != nil {
		v.portal.logger.Debug().Err(err).Str("fleetId", fleetID).Msg("leaving fleet group failed")
	}
}

func (v *FleetView) CreateFleet(ctx context.Context, req fleet.CreateFleetRequest) (*fleet.Fleet, error) {
	ownerID, err := v.portal.Sessions.OwnerID()
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.CreateFleet]")
	}
	f, err := v.portal.API.CreateFleet(ctx, ownerID, req)
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.CreateFleet]")
	}
	return v.upsertFleet(*f), nil
}

func (v *FleetView) UpdateFleet(ctx context.Context, fleetID string, req fleet.UpdateFleetRequest) (*fleet.Fleet, error) {
	f, err := v.portal.API.UpdateFleet(ctx, fleetID, req)
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.UpdateFleet] fleet %s", fleetID)
	}
	return v.upsertFleet(*f), nil
}

// DeleteFleet removes the fleet and drops the selection if it was selected.
func (v *FleetView) DeleteFleet(ctx context.Context, fleetID string) error {
	if err := v.portal.API.DeleteFleet(ctx, fleetID); err != nil {
		return errors.Wrapf(err, "[portal FleetView.DeleteFleet] fleet %s", fleetID)
	}
	v.portal.Cache.RemoveFleet(fleetID)
	if v.Selected() == fleetID {
		v.Deselect(ctx)
	}
	return nil
}

func (v *FleetView) AddVehicle(ctx context.Context, fleetID string, req fleet.CreateVehicleRequest) (*fleet.Vehicle, error) {
	vehicle, err := v.portal.API.AddVehicle(ctx, fleetID, req)
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.AddVehicle] fleet %s", fleetID)
	}
	return v.upsertVehicle(*vehicle), nil
}

func (v *FleetView) UpdateVehicle(ctx context.Context, vehicleID string, req fleet.UpdateVehicleRequest) (*fleet.Vehicle, error) {
	vehicle, err := v.portal.API.UpdateVehicle(ctx, vehicleID, req)
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.UpdateVehicle] vehicle %s", vehicleID)
	}
	return v.upsertVehicle(*vehicle), nil
}

func (v *FleetView) UpdateVehicleStatus(ctx context.Context, vehicleID string, status fleet.VehicleStatus) (*fleet.Vehicle, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(errors.ErrValidation, "[portal FleetView.UpdateVehicleStatus] status %q", status)
	}
	vehicle, err := v.portal.API.UpdateVehicleStatus(ctx, vehicleID, status)
	if err != nil {
		return nil, errors.Wrapf(err, "[portal FleetView.UpdateVehicleStatus] vehicle %s", vehicleID)
	}
	return v.upsertVehicle(*vehicle), nil
}

func (v *FleetView) DeleteVehicle(ctx context.Context, vehicleID string) error {
	if err := v.portal.API.DeleteVehicle(ctx, vehicleID); err != nil {
		return errors.Wrapf(err, "[portal FleetView.DeleteVehicle] vehicle %s", vehicleID)
	}
	v.portal.Cache.RemoveVehicle(vehicleID)
	return nil
}

func (v *FleetView) upsertFleet(f fleet.Fleet) *fleet.Fleet {
	f = fleet.NormalizeFleet(f, v.portal.clock.Now())
	v.portal.Cache.UpsertFleet(f)
	return &f
}

func (v *FleetView) upsertVehicle(vehicle fleet.Vehicle) *fleet.Vehicle {
	vehicle = fleet.NormalizeVehicle(vehicle)
	v.portal.Cache.UpsertVehicle(vehicle)
	return &vehicle
}
