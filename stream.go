package autotron

import (
	"sync"

	"github.com/aretw0/autotron/pkg/domain"
)

const streamBuffer = 8

// StreamManager fans status snapshots out to live subscribers (SSE clients).
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan domain.Status]struct{}
	closed      bool
}

// NewStreamManager creates an empty fan-out.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan domain.Status]struct{}),
	}
}

// Subscribe returns a channel of snapshots and its cancel function.
func (sm *StreamManager) Subscribe() (<-chan domain.Status, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Status, streamBuffer)
	if sm.closed {
		close(ch)
		return ch, func() {}
	}
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Broadcast delivers status to every subscriber, dropping it for slow ones.
func (sm *StreamManager) Broadcast(status domain.Status) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}

// Close ends every subscription.
func (sm *StreamManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ch := range sm.subscribers {
		close(ch)
	}
	clear(sm.subscribers)
	sm.closed = true
}
