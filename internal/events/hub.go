// Package events carries run, incident, and stats notifications from the
// engine to interested subscribers, primarily the WebSocket layer
package events

import (
	"log/slog"
	"sync"

	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/util"
)

type (
	// Hub is an in-process broadcast bus for domain events. Publishing
	// never blocks; subscribers that fall behind lose events rather than
	// stalling the engine
	Hub struct {
		sync.RWMutex
		logger *slog.Logger
		subs   map[int]*Subscription
		nextID int
	}

	// Subscription is one subscriber's view of the Hub. An empty flow
	// filter delivers everything; otherwise only events for the filtered
	// flows, plus flow-agnostic events, are delivered
	Subscription struct {
		hub    *Hub
		id     int
		ch     chan *api.Event
		mu     sync.RWMutex
		flows  util.Set[api.FlowID]
		closed bool
	}
)

// DefaultBuffer is the per-subscriber channel depth
const DefaultBuffer = 64

// NewHub creates an event Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   map[int]*Subscription{},
	}
}

// Subscribe registers a new subscriber with the default buffer depth
func (h *Hub) Subscribe() *Subscription {
	h.Lock()
	defer h.Unlock()

	h.nextID++
	sub := &Subscription{
		hub:   h,
		id:    h.nextID,
		ch:    make(chan *api.Event, DefaultBuffer),
		flows: util.Set[api.FlowID]{},
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers an event to every matching subscriber. Full
// subscriber buffers are skipped
func (h *Hub) Publish(ev *api.Event) {
	h.RLock()
	defer h.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				slog.String("type", string(ev.Type)),
				log.FlowID(ev.FlowID))
		}
	}
}

// SubscriberCount reports the number of active subscriptions
func (h *Hub) SubscriberCount() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.subs)
}

// Events is the subscriber's delivery channel. It is closed when the
// subscription is closed
func (s *Subscription) Events() <-chan *api.Event {
	return s.ch
}

// Filter restricts delivery to the given flows. Calling it with no
// arguments clears the filter
func (s *Subscription) Filter(flowIDs ...api.FlowID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows = util.SetOf(flowIDs...)
}

// Close removes the subscription from the Hub and closes its channel
func (s *Subscription) Close() {
	s.hub.Lock()
	defer s.hub.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.hub.subs, s.id)
	close(s.ch)
}

func (s *Subscription) wants(ev *api.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	if s.flows.IsEmpty() || ev.FlowID == "" {
		return true
	}
	return s.flows.Contains(ev.FlowID)
}
