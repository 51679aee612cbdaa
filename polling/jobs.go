package polling

import (
	"context"

	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/store"
)

const (
	fleetPageSize = 100
	maxFleetPages = 100
)

type TelemetrySource interface {
	ListOwnerTelemetry(ctx context.Context, ownerID string) ([]fleet.Telemetry, error)
}

type FleetSource interface {
	ListFleets(ctx context.Context, ownerID string, page fleet.Pagination) (fleet.Page[fleet.Fleet], error)
}

// TelemetryJob reloads the owner's latest telemetry into the cache.
func TelemetryJob(src TelemetrySource, cache *store.Store, ownerID string, intervals Intervals) Job {
	return Job{
		Name:     "telemetry",
		Interval: intervals.Telemetry,
		Run: func(ctx context.Context) error {
			records, err := src.ListOwnerTelemetry(ctx, ownerID)
			if err != nil {
				return errors.Wrapf(err, "[polling TelemetryJob] owner %s", ownerID)
			}
			cache.SetTelemetry(records)
			return nil
		},
	}
}

// FleetsJob reloads the owner's fleet list into the cache.
func FleetsJob(src FleetSource, cache *store.Store, ownerID string, intervals Intervals) Job {
	return Job{
		Name:     "fleets",
		Interval: intervals.Fleets,
		Run: func(ctx context.Context) error {
			fleets, err := allFleets(ctx, src, ownerID)
			if err != nil {
				return errors.Wrapf(err, "[polling FleetsJob] owner %s", ownerID)
			}
			cache.SetFleets(fleets)
			return nil
		},
	}
}

// allFleets walks the fleet pages until the reported total is reached. The
// cache is only replaced once every page has loaded.
func allFleets(ctx context.Context, src FleetSource, ownerID string) ([]fleet.Fleet, error) {
	var fleets []fleet.Fleet
	for n := 1; n <= maxFleetPages; n++ {
		page, err := src.ListFleets(ctx, ownerID, fleet.Pagination{Page: n, Size: fleetPageSize})
		if err != nil {
			return nil, err
		}
		fleets = append(fleets, page.Data...)
		if len(page.Data) == 0 || len(fleets) >= page.Total {
			break
		}
	}
	return fleets, nil
}
