package inquiry

import (
	"sync"

	"github.com/google/uuid"
)

// Change announces that an inquiry was inserted, updated or deleted.
type Change struct {
	ID uuid.UUID `json:"id"`
}

// Hub fans change notifications out to subscribers. Slow subscribers lose
// notifications rather than block the publisher; a change only tells them to
// refetch, so a dropped one is covered by the next.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Change
	nextID uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Change)}
}

// Subscribe returns a channel of changes and a function that closes it.
func (h *Hub) Subscribe() (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Change, 8)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Publish delivers c to every subscriber without blocking.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
