// Package broadcast carries timer snapshots from the single engine writer
// to any number of readers. Delivery is best-effort and never replays.
package broadcast

import (
	"sync"

	"github.com/fentz26/dormindo/internal/models"
)

// Hub fans snapshots out to subscribers. A subscriber whose buffer is full
// misses that snapshot; the publisher never blocks.
type Hub struct {
	mu        sync.Mutex
	subs      map[int]chan models.Snapshot
	nextID    int
	closed    bool
	published uint64
	dropped   uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan models.Snapshot)}
}

// Subscribe registers a reader. The returned channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe(buffer int) (<-chan models.Snapshot, int) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Snapshot, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, -1
	}
	h.nextID++
	h.subs[h.nextID] = ch
	return ch, h.nextID
}

// Unsubscribe removes a reader and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers s to every subscriber that has room for it.
func (h *Hub) Publish(s models.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.published++
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			h.dropped++
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Stats returns the subscriber count and delivery counters.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]interface{}{
		"subscribers": len(h.subs),
		"published":   h.published,
		"dropped":     h.dropped,
	}
}
