package portal

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/polling"
	"github.com/jrsteele09/go-fleet-portal/realtime"
)

// Dashboard keeps the owner's fleets and telemetry current. Telemetry is
// always polled; fleets come from the realtime channel and fall back to
// polling while the fleet topic is down.
type Dashboard struct {
	portal *Portal

	// lifecycle serializes Open and Close; mu guards the fields below and is
	// never held across a realtime call.
	lifecycle   sync.Mutex
	mu          sync.Mutex
	open        bool
	ownerID     string
	ctx         context.Context
	cancel      context.CancelFunc
	telemetry   *polling.Handle
	fleets      *polling.Handle
	unsubscribe func()
}

// Open loads the owner's fleets, starts telemetry polling and brings up the
// realtime channel. A realtime failure is not an error: fleet polling covers
// for it.
func (d *Dashboard) Open(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	p := d.portal
	ownerID, err := p.Sessions.OwnerID()
	if err != nil {
		return errors.Wrapf(err, "[portal Dashboard.Open]")
	}

	d.mu.Lock()
	if d.open && d.ownerID == ownerID {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	d.close()

	p.Cache.SetLoading(true)
	if err := polling.FleetsJob(p.API, p.Cache, ownerID, p.intervals).Run(ctx); err != nil {
		p.logger.Warn().Err(err).Str("ownerId", ownerID).Msg("initial fleet load failed")
	}
	p.Cache.SetLoading(false)

	d.mu.Lock()
	d.open = true
	d.ownerID = ownerID
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.telemetry = p.Poller.Start(d.ctx, polling.TelemetryJob(p.API, p.Cache, ownerID, p.intervals))
	d.unsubscribe = p.Realtime.Subscribe(d.onRealtime)
	d.mu.Unlock()

	// Start reports state changes synchronously, so no lock is held here
	if err := p.Realtime.Start(ctx, ownerID); err != nil {
		p.logger.Warn().Err(err).Str("ownerId", ownerID).Msg("realtime unavailable, polling fleets")
	}
	return nil
}

// Close stops polling and the realtime channel. The cache keeps its data.
func (d *Dashboard) Close() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	d.close()
}

func (d *Dashboard) close() {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return
	}
	handles := []*polling.Handle{d.telemetry, d.fleets}
	unsubscribe, cancel := d.unsubscribe, d.cancel
	d.open = false
	d.ownerID = ""
	d.telemetry, d.fleets, d.unsubscribe, d.cancel = nil, nil, nil, nil
	d.mu.Unlock()

	unsubscribe()
	cancel()
	for _, h := range handles {
		h.Stop()
	}
	d.portal.Realtime.Stop()
}

// FleetPolling reports whether fleets are currently being polled.
func (d *Dashboard) FleetPolling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fleets != nil
}

func (d *Dashboard) onRealtime(ev realtime.Event) {
	if ev.Topic != realtime.TopicFleetEvents {
		return
	}
	switch ev.State {
	case realtime.Connected:
		d.stopFleetPolling()
	case realtime.Disconnected, realtime.Reconnecting:
		d.startFleetPolling()
	}
}

func (d *Dashboard) startFleetPolling() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || d.fleets != nil {
		return
	}
	p := d.portal
	p.logger.Info().Str("ownerId", d.ownerID).Msg("fleet channel down, polling fleets")
	d.fleets = p.Poller.Start(d.ctx, polling.FleetsJob(p.API, p.Cache, d.ownerID, p.intervals))
}

func (d *Dashboard) stopFleetPolling() {
	d.mu.Lock()
	h := d.fleets
	d.fleets = nil
	d.mu.Unlock()
	if h != nil {
		d.portal.logger.Info().Msg("fleet channel up, fleet polling stopped")
		h.Stop()
	}
}
