package config

import "time"

type PollingConfig interface {
	GetTelemetryPollInterval() time.Duration
	GetFleetPollInterval() time.Duration
}

type Polling struct {
	file *File
}

var _ PollingConfig = Polling{}

func (p Polling) src() *File { return orEmpty(p.file) }

func (p Polling) GetTelemetryPollInterval() time.Duration {
	return lookupDuration("POLL_TELEMETRY_INTERVAL", p.src().Polling.TelemetryInterval, 15*time.Second)
}

func (p Polling) GetFleetPollInterval() time.Duration {
	return lookupDuration("POLL_FLEET_INTERVAL", p.src().Polling.FleetInterval, 30*time.Second)
}
