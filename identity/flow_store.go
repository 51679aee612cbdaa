package identity

import (
	"errors"
	"sync"
	"time"
)

var ErrFlowNotFound = errors.New("login flow not found")

// FlowState is what a redirect login needs to remember until the callback.
type FlowState struct {
	CodeVerifier string
	Nonce        string
	ReturnTo     string
	CreatedAt    time.Time
}

type FlowStore interface {
	Put(state string, flow FlowState) error
	// Take returns and removes the flow. A state can be redeemed once.
	Take(state string) (FlowState, error)
}

// InMemoryFlowStore is a thread-safe FlowStore whose entries expire after ttl.
type InMemoryFlowStore struct {
	mu      sync.Mutex
	flows   map[string]FlowState
	ttl     time.Duration
	nowFunc func() time.Time
}

var _ FlowStore = (*InMemoryFlowStore)(nil)

// NewInMemoryFlowStore creates a flow store. nowFunc may be nil, in which case
// time.Now is used.
func NewInMemoryFlowStore(ttl time.Duration, nowFunc func() time.Time) *InMemoryFlowStore {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &InMemoryFlowStore{
		flows:   make(map[string]FlowState),
		ttl:     ttl,
		nowFunc: nowFunc,
	}
}

func (s *InMemoryFlowStore) Put(state string, flow FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for k, f := range s.flows {
		if s.expired(f, now) {
			delete(s.flows, k)
		}
	}
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	s.flows[state] = flow
	return nil
}

func (s *InMemoryFlowStore) Take(state string) (FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[state]
	if !ok {
		return FlowState{}, ErrFlowNotFound
	}
	delete(s.flows, state)

	if s.expired(flow, s.nowFunc()) {
		return FlowState{}, ErrFlowNotFound
	}
	return flow, nil
}

func (s *InMemoryFlowStore) expired(flow FlowState, now time.Time) bool {
	return s.ttl > 0 && now.Sub(flow.CreatedAt) > s.ttl
}
