package hub

import (
	"sync"
	"sync/atomic"

	"accountflow/logger"
	"accountflow/models"
)

// Hub fans normalized state updates out to subscribers. Publishing is
// fire-and-forget; a subscriber whose buffer is full misses the message and
// catches up on the next full snapshot.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan models.NotifyMessage
	nextID  int
	buffer  int
	dropped atomic.Int64
	log     *logger.Log
}

// New creates a hub whose subscriber channels hold buffer messages.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[int]chan models.NotifyMessage),
		buffer: buffer,
		log:    logger.GetLogger(),
	}
}

// Subscribe registers a new subscriber and returns its channel together with
// an id used to unsubscribe.
func (h *Hub) Subscribe() (int, <-chan models.NotifyMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan models.NotifyMessage, h.buffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers the message to every subscriber without blocking. Full
// subscriber buffers are skipped and counted.
func (h *Hub) Publish(msg models.NotifyMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
			h.log.WithComponent("hub").WithFields(logger.Fields{
				"subscriber": id,
				"store":      msg.Store,
			}).Debug("subscriber buffer full, message dropped")
		}
	}
}

// Dropped returns the total number of messages skipped because a
// subscriber's buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
