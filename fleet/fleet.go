package fleet

import (
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/utils"
)

type Fleet struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	OwnerID      string `json:"ownerId"`
	OwnerName    string `json:"ownerName,omitempty"`
	VehicleCount int    `json:"vehicleCount"`
	Status       string `json:"status,omitempty"`
	CreatedAtUTC string `json:"createdAtUtc,omitempty"`
	UpdatedAtUTC string `json:"updatedAtUtc,omitempty"`
	UpdatedOn    string `json:"updatedOn,omitempty"` // legacy, derived from the timestamps
}

func (f Fleet) Key() string { return f.ID }

type FleetDetail struct {
	Fleet
	Location string    `json:"location,omitempty"`
	Vehicles []Vehicle `json:"vehicles"`
}

// NormalizeFleet fills the legacy UpdatedOn field. now is only used when the
// payload carries neither timestamp.
func NormalizeFleet(f Fleet, now time.Time) Fleet {
	f.UpdatedOn = utils.FirstNonEmpty(f.UpdatedAtUTC, f.CreatedAtUTC, f.UpdatedOn)
	if f.UpdatedOn == "" {
		f.UpdatedOn = now.UTC().Format(time.RFC3339)
	}
	return f
}

func NormalizeFleetDetail(d FleetDetail, now time.Time) FleetDetail {
	d.Fleet = NormalizeFleet(d.Fleet, now)
	vehicles := make([]Vehicle, 0, len(d.Vehicles))
	for _, v := range d.Vehicles {
		vehicles = append(vehicles, NormalizeVehicle(v))
	}
	d.Vehicles = vehicles
	return d
}

type CreateFleetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
}

type UpdateFleetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
