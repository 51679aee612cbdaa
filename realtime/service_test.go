package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/realtime"
	"github.com/jrsteele09/go-fleet-portal/realtime/channelfake"
	"github.com/jrsteele09/go-fleet-portal/store"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) record(ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) find(topic realtime.Topic, state realtime.State) (realtime.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Topic == topic && ev.State == state {
			return ev, true
		}
	}
	return realtime.Event{}, false
}

type fixture struct {
	service *realtime.Service
	factory *channelfake.Factory
	cache   *store.Store
	clock   *clock.FakeClock
	events  *recorder
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		factory: channelfake.NewFactory(),
		cache:   store.New(),
		clock:   clock.NewFake(startTime),
		events:  &recorder{},
	}
	source := realtime.CredentialFunc(func(context.Context) (string, error) { return "token-1", nil })
	f.service = realtime.NewService(f.factory.New, source, f.cache,
		realtime.WithClock(f.clock),
		realtime.WithNowFunc(func() time.Time { return startTime }),
	)
	f.service.Subscribe(f.events.record)
	t.Cleanup(f.service.Stop)
	return f
}

func TestStartConnectsBothTopics(t *testing.T) {
	f := setupService(t)

	require.NoError(t, f.service.Start(context.Background(), "owner-1"))
	require.True(t, f.service.Connected())

	fleetCh := f.factory.Latest(realtime.TopicFleetEvents)
	vehicleCh := f.factory.Latest(realtime.TopicVehicleEvents)
	require.Equal(t, "token-1", fleetCh.Token)
	require.ElementsMatch(t, []string{"FleetCreated", "FleetUpdated", "FleetDeleted", "Connected"}, fleetCh.HandlersAtStart())
	require.ElementsMatch(t, []string{"VehicleCreated", "VehicleUpdated", "VehicleDeleted"}, vehicleCh.HandlersAtStart())
	require.Equal(t, []channelfake.Invocation{{Method: "JoinFleetGroup", Args: []any{"owner-1"}}}, fleetCh.Invocations())
	require.Empty(t, vehicleCh.Invocations())

	// same context: nothing new is opened
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))
	require.Len(t, f.factory.Channels(realtime.TopicFleetEvents), 1)
	require.Len(t, f.factory.Channels(realtime.TopicVehicleEvents), 1)
}

func TestGroupJoinFailureIsNotFatal(t *testing.T) {
	f := setupService(t)
	f.factory.FailInvoke("JoinFleetGroup", errors.New("method does not exist"))

	require.NoError(t, f.service.Start(context.Background(), "owner-1"))
	require.True(t, f.service.Connected())
	require.Empty(t, f.service.Connection(realtime.TopicFleetEvents).Groups())
}

func TestConcurrentStartOpensOneConnection(t *testing.T) {
	f := setupService(t)
	release := f.factory.HoldStarts()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.service.Start(context.Background(), "owner-1")
		}()
	}

	require.Eventually(t, func() bool {
		return f.factory.Starts(realtime.TopicFleetEvents) == 1
	}, waitFor, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.factory.Starts(realtime.TopicFleetEvents))
	require.Equal(t, 1, f.factory.Starts(realtime.TopicVehicleEvents))
	require.True(t, f.service.Connected())
}

func TestStartCallerCancelDoesNotFailOthers(t *testing.T) {
	f := setupService(t)
	release := f.factory.HoldStarts()
	defer release()

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- f.service.Start(first, "owner-1") }()
	require.Eventually(t, func() bool {
		return f.factory.Starts(realtime.TopicFleetEvents) == 1
	}, waitFor, time.Millisecond)

	secondErr := make(chan error, 1)
	go func() { secondErr <- f.service.Start(context.Background(), "owner-1") }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	release()

	select {
	case err := <-secondErr:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("joined caller did not get the shared result")
	}
	require.True(t, f.service.Connected())
	require.Equal(t, 1, f.factory.Starts(realtime.TopicFleetEvents))
}

func TestStartForAnotherContextRestarts(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.service.Start(ctx, "owner-1"))
	first := f.factory.Latest(realtime.TopicFleetEvents)

	require.NoError(t, f.service.Start(ctx, "owner-2"))
	require.True(t, first.IsClosed())

	second := f.factory.Latest(realtime.TopicFleetEvents)
	require.NotSame(t, first, second)
	require.Equal(t, []channelfake.Invocation{{Method: "JoinFleetGroup", Args: []any{"owner-2"}}}, second.Invocations())
	require.Equal(t, "owner-2", f.service.Connection(realtime.TopicVehicleEvents).ContextID())
}

func TestStartFailureSurfacesError(t *testing.T) {
	f := setupService(t)
	f.factory.FailStart(realtime.TopicFleetEvents, channelfake.ErrRefused)

	err := f.service.Start(context.Background(), "owner-1")
	require.ErrorIs(t, err, errors.ErrChannelConnectFailed)
	require.ErrorIs(t, err, channelfake.ErrRefused)
	require.Equal(t, realtime.Disconnected, f.service.State(realtime.TopicFleetEvents))

	ev, ok := f.events.find(realtime.TopicFleetEvents, realtime.Disconnected)
	require.True(t, ok)
	require.ErrorIs(t, ev.Err, errors.ErrChannelConnectFailed)

	// a failed first connect is never retried automatically
	require.Equal(t, 0, f.clock.PendingCount())
	require.Equal(t, 0, f.factory.Starts(realtime.TopicVehicleEvents))

	f.factory.FailStart(realtime.TopicFleetEvents, nil)
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))
	require.True(t, f.service.Connected())
}

func TestStartRejectsEmptyContext(t *testing.T) {
	f := setupService(t)
	require.ErrorIs(t, f.service.Start(context.Background(), ""), errors.ErrChannelConnectFailed)
}

func TestVehicleUpdatedNormalizedInPlace(t *testing.T) {
	f := setupService(t)
	f.cache.SetVehicles([]fleet.Vehicle{
		{ID: "v1", Status: fleet.VehicleActive},
		{ID: "v2", Status: fleet.VehicleActive},
		{ID: "v3", Status: fleet.VehicleActive},
	})
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))

	f.factory.Latest(realtime.TopicVehicleEvents).Emit("VehicleUpdated",
		map[string]any{"id": "v2", "fleetId": "f1", "vin": "VIN2", "status": 2, "modelYear": 2021})

	vehicles := f.cache.Vehicles()
	require.Len(t, vehicles, 3)
	require.Equal(t, "v2", vehicles[1].ID)
	require.Equal(t, fleet.VehicleMaintenance, vehicles[1].Status)
	require.Equal(t, 2021, vehicles[1].Year)
}

func TestServerEventsReconcileCache(t *testing.T) {
	f := setupService(t)
	f.cache.SetFleets([]fleet.Fleet{{ID: "f1", Name: "North"}})
	f.cache.SetVehicles([]fleet.Vehicle{{ID: "v1"}})
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))

	fleetCh := f.factory.Latest(realtime.TopicFleetEvents)
	vehicleCh := f.factory.Latest(realtime.TopicVehicleEvents)

	fleetCh.Emit("FleetCreated", map[string]any{"id": "f2", "name": "South", "createdAtUtc": "2024-05-01T00:00:00Z"})
	fleets := f.cache.Fleets()
	require.Equal(t, []string{"f2", "f1"}, []string{fleets[0].ID, fleets[1].ID})
	require.Equal(t, "2024-05-01T00:00:00Z", fleets[0].UpdatedOn)

	fleetCh.Emit("FleetUpdated", map[string]any{"id": "f1", "name": "North East"})
	fleets = f.cache.Fleets()
	require.Equal(t, "North East", fleets[1].Name)
	require.Equal(t, startTime.Format(time.RFC3339), fleets[1].UpdatedOn)

	fleetCh.Emit("FleetDeleted", map[string]any{"fleetId": "f2", "ownerId": "owner-1"})
	fleetCh.Emit("FleetDeleted", map[string]any{"fleetId": "f2", "ownerId": "owner-1"})
	require.Len(t, f.cache.Fleets(), 1)

	vehicleCh.Emit("VehicleCreated", map[string]any{"id": "v2", "status": "Inactive"})
	require.Equal(t, fleet.VehicleInactive, f.cache.Vehicles()[0].Status)

	vehicleCh.Emit("VehicleDeleted", map[string]any{"vehicleId": "v1", "fleetId": "f1"})
	require.Len(t, f.cache.Vehicles(), 1)

	// malformed payloads are ignored
	vehicleCh.Emit("VehicleUpdated", "not an object")
	vehicleCh.Emit("VehicleUpdated")
	require.Len(t, f.cache.Vehicles(), 1)
}

func TestReconnectRejoinsGroups(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	require.NoError(t, f.service.Start(ctx, "owner-1"))
	require.NoError(t, f.service.JoinFleetGroup(ctx, "fleet-9"))

	first := f.factory.Latest(realtime.TopicVehicleEvents)
	first.Drop(errors.New("connection reset"))

	require.Eventually(t, func() bool {
		return f.service.State(realtime.TopicVehicleEvents) == realtime.Reconnecting
	}, waitFor, time.Millisecond)
	ev, ok := f.events.find(realtime.TopicVehicleEvents, realtime.Reconnecting)
	require.True(t, ok)
	require.ErrorIs(t, ev.Err, errors.ErrChannelDropped)

	f.clock.WaitForTimers(1)
	f.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return f.service.State(realtime.TopicVehicleEvents) == realtime.Connected
	}, waitFor, time.Millisecond)
	second := f.factory.Latest(realtime.TopicVehicleEvents)
	require.NotSame(t, first, second)
	require.Equal(t, []channelfake.Invocation{{Method: "JoinFleetGroup", Args: []any{"fleet-9"}}}, second.Invocations())

	// handlers are in place on the new channel too
	second.Emit("VehicleCreated", map[string]any{"id": "v7"})
	require.Equal(t, "v7", f.cache.Vehicles()[0].ID)

	require.NoError(t, f.service.LeaveFleetGroup(ctx, "fleet-9"))
	require.Empty(t, f.service.Connection(realtime.TopicVehicleEvents).Groups())
}

func TestReconnectAbandonedAfterWindow(t *testing.T) {
	f := setupService(t)
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))

	f.factory.FailStart(realtime.TopicFleetEvents, channelfake.ErrRefused)
	f.factory.Latest(realtime.TopicFleetEvents).Drop(errors.New("server restarting"))

	for _, delay := range []time.Duration{1, 2, 4, 8, 16, 30} {
		f.clock.WaitForTimers(1)
		f.clock.Advance(delay * time.Second)
	}

	require.Eventually(t, func() bool {
		_, ok := f.events.find(realtime.TopicFleetEvents, realtime.Disconnected)
		return ok
	}, waitFor, time.Millisecond)
	ev, _ := f.events.find(realtime.TopicFleetEvents, realtime.Disconnected)
	require.ErrorIs(t, ev.Err, errors.ErrReconnectAbandoned)

	require.Equal(t, realtime.Disconnected, f.service.State(realtime.TopicFleetEvents))
	require.Equal(t, 7, f.factory.Starts(realtime.TopicFleetEvents))
	require.Equal(t, startTime.Add(61*time.Second), f.clock.Now())
	require.Equal(t, 0, f.clock.PendingCount())

	// an explicit Start is needed to come back
	f.factory.FailStart(realtime.TopicFleetEvents, nil)
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))
	require.Equal(t, realtime.Connected, f.service.State(realtime.TopicFleetEvents))
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	f := setupService(t)
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))

	f.factory.Latest(realtime.TopicFleetEvents).Drop(nil)

	require.Eventually(t, func() bool {
		return f.service.State(realtime.TopicFleetEvents) == realtime.Disconnected
	}, waitFor, time.Millisecond)
	require.Equal(t, 0, f.clock.PendingCount())
	require.Len(t, f.factory.Channels(realtime.TopicFleetEvents), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	f.service.Stop()
	require.NoError(t, f.service.Start(ctx, "owner-1"))
	f.service.Stop()
	f.service.Stop()

	require.True(t, f.factory.Latest(realtime.TopicFleetEvents).IsClosed())
	require.True(t, f.factory.Latest(realtime.TopicVehicleEvents).IsClosed())
	require.Equal(t, realtime.Closed, f.service.State(realtime.TopicFleetEvents))
	require.ErrorIs(t, f.service.JoinFleetGroup(ctx, "fleet-1"), errors.ErrChannelClosed)

	f.events.mu.Lock()
	closedEvents := 0
	for _, ev := range f.events.events {
		if ev.State == realtime.Closed {
			closedEvents++
		}
	}
	f.events.mu.Unlock()
	require.Equal(t, 2, closedEvents)
}

func TestStopCancelsReconnect(t *testing.T) {
	f := setupService(t)
	require.NoError(t, f.service.Start(context.Background(), "owner-1"))

	f.factory.Latest(realtime.TopicFleetEvents).Drop(errors.New("gone"))
	f.clock.WaitForTimers(1)
	f.service.Stop()
	f.clock.Advance(time.Minute)

	time.Sleep(20 * time.Millisecond)
	require.Len(t, f.factory.Channels(realtime.TopicFleetEvents), 1)
	require.Equal(t, realtime.Closed, f.service.State(realtime.TopicFleetEvents))
}
