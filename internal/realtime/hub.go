package realtime

import (
	"context"
	"sync"

	"github.com/conorfennell/studyloop/internal/logger"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

type subscriber struct {
	id    uint64
	topic Topic
	out   chan ChangeEvent
}

// Hub delivers published events to matching subscribers. With a Bus, events
// travel through it and are dispatched when they come back, so every
// instance sharing the bus sees them.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	bus    Bus
	log    *logger.Logger
}

// NewHub returns a hub. bus may be nil for a single-process hub.
func NewHub(log *logger.Logger, bus Bus) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		buffer: DefaultBuffer,
		bus:    bus,
		log:    log.With("component", "RealtimeHub"),
	}
}

// Start begins forwarding bus events to local subscribers until ctx ends.
// It is a no-op without a bus.
func (h *Hub) Start(ctx context.Context) error {
	if h.bus == nil {
		return nil
	}
	return h.bus.StartForwarder(ctx, h.Dispatch)
}

// Close releases the bus.
func (h *Hub) Close() error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Close()
}

// Subscribe registers interest in topic. The returned cancel func removes
// the subscription and closes the channel; calling it again is harmless.
func (h *Hub) Subscribe(topic Topic) (<-chan ChangeEvent, func()) {
	h.mu.Lock()
	h.nextID++
	sub := &subscriber{
		id:    h.nextID,
		topic: topic,
		out:   make(chan ChangeEvent, h.buffer),
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.log.Debug("Subscribed", "table", topic.Table, "filter_column", topic.Filter.Column)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub.id)
			close(sub.out)
			h.mu.Unlock()
		})
	}
	return sub.out, cancel
}

// Publish sends ev through the bus, or dispatches it locally without one.
func (h *Hub) Publish(ctx context.Context, ev ChangeEvent) {
	if h.bus == nil {
		h.Dispatch(ev)
		return
	}
	if err := h.bus.Publish(ctx, ev); err != nil {
		h.log.Warn("Bus publish failed, dispatching locally", "table", ev.Table, "error", err)
		h.Dispatch(ev)
	}
}

// Dispatch delivers ev to every matching local subscriber.
func (h *Hub) Dispatch(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.topic.Matches(ev) {
			continue
		}
		select {
		case sub.out <- ev:
		default:
			h.log.Warn("Dropping change event, subscriber buffer full", "subscriber", sub.id, "table", ev.Table)
		}
	}
}

// Subscribers is the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
