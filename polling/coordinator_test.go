package polling_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-fleet-portal/api"
	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/polling"
	"github.com/jrsteele09/go-fleet-portal/store"
	"github.com/stretchr/testify/require"
)

var (
	_ polling.TelemetrySource = (*api.Client)(nil)
	_ polling.FleetSource     = (*api.Client)(nil)
)

const waitFor = 2 * time.Second

var startTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type source struct {
	mu        sync.Mutex
	calls     int
	failFirst bool
}

func (s *source) next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFirst && s.calls == 1 {
		return s.calls, errors.ErrNetworkUnavailable
	}
	return s.calls, nil
}

func (s *source) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *source) ListOwnerTelemetry(_ context.Context, ownerID string) ([]fleet.Telemetry, error) {
	n, err := s.next()
	if err != nil {
		return nil, err
	}
	records := make([]fleet.Telemetry, n)
	for i := range records {
		records[i] = fleet.Telemetry{VehicleID: ownerID + "-v" + string(rune('a'+i))}
	}
	return records, nil
}

func (s *source) ListFleets(_ context.Context, ownerID string, page fleet.Pagination) (fleet.Page[fleet.Fleet], error) {
	if _, err := s.next(); err != nil {
		return fleet.Page[fleet.Fleet]{}, err
	}
	return fleet.Page[fleet.Fleet]{Data: []fleet.Fleet{{ID: "f1", OwnerID: ownerID}}, Page: page.Page, Size: page.Size, Total: 1}, nil
}

func TestRunPollsImmediatelyThenOnTick(t *testing.T) {
	clk := clock.NewFake(startTime)
	src := &source{}
	cache := store.New()
	c := polling.New(polling.WithClock(clk))

	h := c.Start(context.Background(), polling.TelemetryJob(src, cache, "owner-1", polling.Intervals{Telemetry: 15 * time.Second}))
	defer h.Stop()

	require.Eventually(t, func() bool { return src.count() == 1 }, waitFor, time.Millisecond)
	require.Len(t, cache.Telemetry(), 1)

	clk.WaitForTimers(1)
	clk.Advance(15 * time.Second)
	require.Eventually(t, func() bool { return len(cache.Telemetry()) == 2 }, waitFor, time.Millisecond)

	h.Stop()
	h.Stop()
	clk.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 2, src.count())
}

func TestRunKeepsPollingAfterFailure(t *testing.T) {
	clk := clock.NewFake(startTime)
	src := &source{failFirst: true}
	cache := store.New()
	cache.SetFleets([]fleet.Fleet{{ID: "stale"}})
	c := polling.New(polling.WithClock(clk), polling.WithInterval(30*time.Second))

	h := c.Start(context.Background(), polling.FleetsJob(src, cache, "owner-1", polling.Intervals{}))
	defer h.Stop()

	require.Eventually(t, func() bool { return src.count() == 1 }, waitFor, time.Millisecond)
	require.Equal(t, "stale", cache.Fleets()[0].ID, "a failed poll leaves the cache alone")

	clk.WaitForTimers(1)
	clk.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		fleets := cache.Fleets()
		return len(fleets) == 1 && fleets[0].ID == "f1"
	}, waitFor, time.Millisecond)
}

func TestRunStopsWithContext(t *testing.T) {
	clk := clock.NewFake(startTime)
	src := &source{}
	c := polling.New(polling.WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, polling.TelemetryJob(src, store.New(), "owner-1", polling.Intervals{}))
	}()

	require.Eventually(t, func() bool { return src.count() == 1 }, waitFor, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
}

type pagedSource struct {
	total int
	pages []int
}

func (s *pagedSource) ListFleets(_ context.Context, ownerID string, page fleet.Pagination) (fleet.Page[fleet.Fleet], error) {
	s.pages = append(s.pages, page.Page)
	var data []fleet.Fleet
	for i := (page.Page - 1) * page.Size; i < s.total && i < page.Page*page.Size; i++ {
		data = append(data, fleet.Fleet{ID: fmt.Sprintf("f%d", i), OwnerID: ownerID})
	}
	return fleet.Page[fleet.Fleet]{Data: data, Page: page.Page, Size: page.Size, Total: s.total}, nil
}

func TestFleetsJobLoadsEveryPage(t *testing.T) {
	tests := []struct {
		name  string
		total int
		pages []int
	}{
		{name: "no fleets", total: 0, pages: []int{1}},
		{name: "one page", total: 40, pages: []int{1}},
		{name: "exact page", total: 100, pages: []int{1}},
		{name: "several pages", total: 250, pages: []int{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &pagedSource{total: tt.total}
			cache := store.New()
			require.NoError(t, polling.FleetsJob(src, cache, "owner-1", polling.Intervals{}).Run(context.Background()))
			require.Equal(t, tt.pages, src.pages)
			require.Len(t, cache.Fleets(), tt.total)
		})
	}
}

func TestJobsAgainstBackend(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/owners/owner-1/vehicles/telemetry":
			_, _ = w.Write([]byte(`[{"vehicleId":"v1","speedKph":40}]`))
		case "/api/owners/owner-1/fleets":
			_, _ = w.Write([]byte(`{"items":[{"id":"f1","name":"North"}],"pageNumber":1,"pageSize":100,"totalCount":1,"totalPages":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := api.New(server.URL)
	cache := store.New()
	ctx := context.Background()

	require.NoError(t, polling.TelemetryJob(client, cache, "owner-1", polling.Intervals{}).Run(ctx))
	require.NoError(t, polling.FleetsJob(client, cache, "owner-1", polling.Intervals{}).Run(ctx))

	require.Equal(t, "v1", cache.Telemetry()[0].VehicleID)
	require.Equal(t, "North", cache.Fleets()[0].Name)
	require.Equal(t, []string{
		"/api/owners/owner-1/vehicles/telemetry?",
		"/api/owners/owner-1/fleets?page=1&size=100",
	}, paths)

	err := polling.TelemetryJob(client, cache, "owner-2", polling.Intervals{}).Run(ctx)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestIntervalsFromConfig(t *testing.T) {
	t.Setenv("POLL_TELEMETRY_INTERVAL", "5s")
	cfg := polling.IntervalsFromConfig(config.FromFile(nil))
	require.Equal(t, 5*time.Second, cfg.Telemetry)
	require.Equal(t, 30*time.Second, cfg.Fleets)
}
