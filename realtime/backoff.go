package realtime

import (
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/config"
)

// Policy is the reconnect schedule after an established connection drops.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	// Window is the continuous failure time after which attempts stop.
	Window time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Initial: time.Second, Max: 30 * time.Second, Window: 60 * time.Second}
}

func PolicyFromConfig(cfg config.RealtimeConfig) Policy {
	return Policy{
		Initial: cfg.GetInitialBackoff(),
		Max:     cfg.GetMaxBackoff(),
		Window:  cfg.GetReconnectWindow(),
	}
}

// Next returns the wait before retry number retry (counting from zero), or
// false once elapsed has reached the window.
func (p Policy) Next(retry int, elapsed time.Duration) (time.Duration, bool) {
	if elapsed >= p.Window {
		return 0, false
	}
	delay := p.Initial
	for i := 0; i < retry && delay < p.Max; i++ {
		delay *= 2
	}
	return min(delay, p.Max), true
}
