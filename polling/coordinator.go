// Package polling refreshes cached data over REST on a fixed interval. It
// runs next to the realtime channel and stands in for it while it is down.
package polling

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/clock"
	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 30 * time.Second

// Job is one periodic refresh. A zero Interval uses the coordinator default.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Coordinator struct {
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
}

type Option func(*Coordinator)

func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interval = d
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		interval: DefaultInterval,
		clock:    clock.Real(),
		logger:   log.Logger.With().Str("component", "polling").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Intervals reads the per-job intervals from config.
type Intervals struct {
	Telemetry time.Duration
	Fleets    time.Duration
}

func IntervalsFromConfig(cfg config.PollingConfig) Intervals {
	return Intervals{
		Telemetry: cfg.GetTelemetryPollInterval(),
		Fleets:    cfg.GetFleetPollInterval(),
	}
}

// Run executes job immediately and then on every tick until ctx is done.
// Job failures are logged and polling carries on.
func (c *Coordinator) Run(ctx context.Context, job Job) {
	interval := job.Interval
	if interval <= 0 {
		interval = c.interval
	}
	logger := c.logger.With().Str("job", job.Name).Dur("interval", interval).Logger()

	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug().Msg("polling started")
	c.tick(ctx, logger, job)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("polling stopped")
			return
		case <-ticker.C:
			c.tick(ctx, logger, job)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context, logger zerolog.Logger, job Job) {
	if ctx.Err() != nil {
		return
	}
	started := c.clock.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Msg("poll failed")
		return
	}
	logger.Trace().Dur("took", c.clock.Now().Sub(started)).Msg("poll complete")
}

// Handle is a running job started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs job in its own goroutine until the handle is stopped or ctx is
// done.
func (c *Coordinator) Start(ctx context.Context, job Job) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		c.Run(ctx, job)
	}()
	return h
}

// Stop cancels the job and waits for it to return. Safe to call repeatedly.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}
