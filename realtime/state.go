package realtime

// Topic names a push connection.
type Topic string

const (
	TopicFleetEvents   Topic = "fleet-events"
	TopicVehicleEvents Topic = "vehicle-events"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Degraded reports whether data for the topic has to come from polling.
func (s State) Degraded() bool {
	return s != Connected
}

// Event is delivered to Service subscribers on every state change. Err is
// set for connect failures, drops and abandoned reconnects.
type Event struct {
	Topic Topic
	State State
	Err   error
}
