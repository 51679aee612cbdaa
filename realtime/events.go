package realtime

import (
	"encoding/json"

	"github.com/jrsteele09/go-fleet-portal/fleet"
)

// Server-invoked targets.
const (
	targetFleetCreated   = "FleetCreated"
	targetFleetUpdated   = "FleetUpdated"
	targetFleetDeleted   = "FleetDeleted"
	targetConnected      = "Connected"
	targetVehicleCreated = "VehicleCreated"
	targetVehicleUpdated = "VehicleUpdated"
	targetVehicleDeleted = "VehicleDeleted"
)

type fleetDeleted struct {
	FleetID string `json:"fleetId"`
	OwnerID string `json:"ownerId"`
}

type vehicleDeleted struct {
	VehicleID string `json:"vehicleId"`
	FleetID   string `json:"fleetId"`
}

type connectedNotice struct {
	OwnerID string `json:"ownerId"`
}

func (s *Service) registerHandlers() {
	s.fleets.handle(targetFleetCreated, s.onFleetUpserted(targetFleetCreated))
	s.fleets.handle(targetFleetUpdated, s.onFleetUpserted(targetFleetUpdated))
	s.fleets.handle(targetFleetDeleted, func(args []json.RawMessage) {
		var ev fleetDeleted
		if !s.decode(targetFleetDeleted, args, &ev) {
			return
		}
		s.cache.RemoveFleet(ev.FleetID)
	})
	s.fleets.handle(targetConnected, func(args []json.RawMessage) {
		var ev connectedNotice
		if s.decode(targetConnected, args, &ev) {
			s.logger.Info().Str("ownerId", ev.OwnerID).Msg("server confirmed owner group")
		}
	})

	s.vehicles.handle(targetVehicleCreated, s.onVehicleUpserted(targetVehicleCreated))
	s.vehicles.handle(targetVehicleUpdated, s.onVehicleUpserted(targetVehicleUpdated))
	s.vehicles.handle(targetVehicleDeleted, func(args []json.RawMessage) {
		var ev vehicleDeleted
		if !s.decode(targetVehicleDeleted, args, &ev) {
			return
		}
		s.cache.RemoveVehicle(ev.VehicleID)
	})
}

func (s *Service) onFleetUpserted(target string) func([]json.RawMessage) {
	return func(args []json.RawMessage) {
		var f fleet.Fleet
		if !s.decode(target, args, &f) {
			return
		}
		s.cache.UpsertFleet(fleet.NormalizeFleet(f, s.nowFunc()))
	}
}

func (s *Service) onVehicleUpserted(target string) func([]json.RawMessage) {
	return func(args []json.RawMessage) {
		var v fleet.Vehicle
		if !s.decode(target, args, &v) {
			return
		}
		s.cache.UpsertVehicle(fleet.NormalizeVehicle(v))
	}
}

// decode reads the first argument of a server invocation into out.
func (s *Service) decode(target string, args []json.RawMessage, out any) bool {
	if len(args) == 0 {
		s.logger.Warn().Str("target", target).Msg("event without payload")
		return false
	}
	if err := json.Unmarshal(args[0], out); err != nil {
		s.logger.Warn().Err(err).Str("target", target).Msg("malformed event payload")
		return false
	}
	s.logger.Debug().Str("target", target).Msg("event received")
	return true
}
