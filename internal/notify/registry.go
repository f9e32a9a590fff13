package notify

import (
	"sync"

	"github.com/gosuda/handoff/internal/messenger"
)

// Registry holds messengers in registration order.
type Registry struct {
	mu         sync.RWMutex
	messengers []messenger.Messenger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds m. A messenger for an already registered platform replaces
// the old one in place.
func (r *Registry) Register(m messenger.Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.messengers {
		if existing.Platform() == m.Platform() {
			r.messengers[i] = m
			return
		}
	}
	r.messengers = append(r.messengers, m)
}

// All returns the registered messengers in order.
func (r *Registry) All() []messenger.Messenger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]messenger.Messenger, len(r.messengers))
	copy(out, r.messengers)
	return out
}

// Len returns the number of registered messengers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messengers)
}
