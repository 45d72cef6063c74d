package alerts

import (
	"sync"

	"github.com/mediaheat/heatwatch/internal/persistence"
)

// Hub fans freshly dispatched alerts out to live subscribers (the websocket
// feed). Publishing never blocks: a subscriber that cannot keep up has its
// oldest pending alert dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[chan persistence.Alert]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan persistence.Alert]struct{})}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function that must be called when the consumer goes away.
func (h *Hub) Subscribe() (<-chan persistence.Alert, func()) {
	ch := make(chan persistence.Alert, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the alert to every subscriber without blocking.
func (h *Hub) Publish(a persistence.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- a:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- a:
			default:
			}
		}
	}
}
