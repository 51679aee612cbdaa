package config

import "time"

type RealtimeConfig interface {
	GetInitialBackoff() time.Duration
	GetMaxBackoff() time.Duration
	GetReconnectWindow() time.Duration
	GetFleetHubPath() string
	GetVehicleHubPath() string
}

type Realtime struct {
	file *File
}

var _ RealtimeConfig = Realtime{}

func (r Realtime) src() *File { return orEmpty(r.file) }

func (r Realtime) GetInitialBackoff() time.Duration {
	return lookupDuration("REALTIME_INITIAL_BACKOFF", r.src().Realtime.InitialBackoff, time.Second)
}

func (r Realtime) GetMaxBackoff() time.Duration {
	return lookupDuration("REALTIME_MAX_BACKOFF", r.src().Realtime.MaxBackoff, 30*time.Second)
}

// GetReconnectWindow is the continuous failure time after which reconnect
// attempts are abandoned.
func (r Realtime) GetReconnectWindow() time.Duration {
	return lookupDuration("REALTIME_RECONNECT_WINDOW", r.src().Realtime.ReconnectWindow, 60*time.Second)
}

func (r Realtime) GetFleetHubPath() string {
	return lookup("REALTIME_FLEET_HUB", r.src().Realtime.FleetHubPath, "/hub/fleets")
}

func (r Realtime) GetVehicleHubPath() string {
	return lookup("REALTIME_VEHICLE_HUB", r.src().Realtime.VehicleHubPath, "/hub/vehicles")
}
