package fleet

type Telemetry struct {
	ID                  string  `json:"id,omitempty"`
	VehicleID           string  `json:"vehicleId"`
	VehicleVIN          string  `json:"vehicleVin,omitempty"`
	VehicleName         string  `json:"vehicleName,omitempty"`
	SpeedKph            float64 `json:"speedKph"`
	FuelLevelPercentage float64 `json:"fuelLevelPercentage"`
	BatteryHealth       float64 `json:"batteryHealth,omitempty"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	Status              string  `json:"status,omitempty"`
	Alert               string  `json:"alert,omitempty"`
	CapturedAtUTC       string  `json:"capturedAtUtc"`

	// Legacy names still read by older views.
	Speed      float64 `json:"speed,omitempty"`
	FuelLevel  float64 `json:"fuelLevel,omitempty"`
	RecordedOn string  `json:"recordedOn,omitempty"`
}

// Key identifies a telemetry record. Snapshots without a record id are one
// per vehicle.
func (t Telemetry) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.VehicleID
}

func NormalizeTelemetry(t Telemetry) Telemetry {
	if t.SpeedKph == 0 && t.Speed != 0 {
		t.SpeedKph = t.Speed
	}
	if t.FuelLevelPercentage == 0 && t.FuelLevel != 0 {
		t.FuelLevelPercentage = t.FuelLevel
	}
	if t.CapturedAtUTC == "" {
		t.CapturedAtUTC = t.RecordedOn
	}
	t.Speed = t.SpeedKph
	t.FuelLevel = t.FuelLevelPercentage
	t.RecordedOn = t.CapturedAtUTC
	if t.Status == "" {
		t.Status = "Normal"
	}
	return t
}

func NormalizeTelemetryList(items []Telemetry) []Telemetry {
	out := make([]Telemetry, 0, len(items))
	for _, t := range items {
		out = append(out, NormalizeTelemetry(t))
	}
	return out
}
