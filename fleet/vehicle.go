package fleet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// VehicleStatus is the display form of a vehicle's status. The backend sends
// it as a number; older payloads and the cache carry the string.
type VehicleStatus string

const (
	VehicleActive         VehicleStatus = "Active"
	VehicleInactive       VehicleStatus = "Inactive"
	VehicleMaintenance    VehicleStatus = "Maintenance"
	VehicleDecommissioned VehicleStatus = "Decommissioned"
	VehicleStatusUnknown  VehicleStatus = "Unknown"
)

// statusCodes is indexed by the backend's numeric status.
var statusCodes = []VehicleStatus{
	VehicleActive,
	VehicleInactive,
	VehicleMaintenance,
	VehicleDecommissioned,
}

// StatusFromCode maps the backend's numeric status to its display string.
func StatusFromCode(code int) VehicleStatus {
	if code < 0 || code >= len(statusCodes) {
		return VehicleStatusUnknown
	}
	return statusCodes[code]
}

// Code returns the numeric status the backend expects, or 0 (Active) for
// strings it does not know.
func (s VehicleStatus) Code() int {
	for i, status := range statusCodes {
		if status == s {
			return i
		}
	}
	return 0
}

func (s VehicleStatus) Valid() bool {
	for _, status := range statusCodes {
		if status == s {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts both the numeric wire form and the display string.
func (s *VehicleStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if code, err := strconv.Atoi(str); err == nil {
			*s = StatusFromCode(code)
			return nil
		}
		*s = VehicleStatus(str)
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("vehicle status: %w", err)
	}
	*s = StatusFromCode(code)
	return nil
}

type Vehicle struct {
	ID            string        `json:"id"`
	FleetID       string        `json:"fleetId"`
	VIN           string        `json:"vin"`
	PlateNumber   string        `json:"plateNumber,omitempty"`
	Make          string        `json:"make,omitempty"`
	Model         string        `json:"model,omitempty"`
	ModelYear     int           `json:"modelYear,omitempty"`
	Year          int           `json:"year,omitempty"` // legacy, mirrors ModelYear
	Status        VehicleStatus `json:"status"`
	LastTelemetry *Telemetry    `json:"lastTelemetry,omitempty"`
}

func (v Vehicle) Key() string { return v.ID }

// NormalizeVehicle brings a vehicle from any source (REST response or push
// event) to the shape the cache holds.
func NormalizeVehicle(v Vehicle) Vehicle {
	switch {
	case v.ModelYear != 0:
		v.Year = v.ModelYear
	case v.Year != 0:
		v.ModelYear = v.Year
	}
	if v.Status == "" {
		v.Status = VehicleActive
	}
	if v.LastTelemetry != nil {
		t := NormalizeTelemetry(*v.LastTelemetry)
		v.LastTelemetry = &t
	}
	return v
}

type CreateVehicleRequest struct {
	FleetID     string `json:"fleetId"`
	VIN         string `json:"vin"`
	PlateNumber string `json:"plateNumber,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	ModelYear   int    `json:"modelYear,omitempty"`
	Status      int    `json:"status"`
}

type UpdateVehicleRequest struct {
	VIN         string `json:"vin,omitempty"`
	PlateNumber string `json:"plateNumber,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	ModelYear   int    `json:"modelYear,omitempty"`
	Status      int    `json:"status"`
}
