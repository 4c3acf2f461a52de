// Package realtime pushes newly created notifications to connected recipients.
// Publishing never blocks: a subscriber that falls behind loses messages and
// recovers them with a catch-up read when it reconnects.
package realtime

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/stockalert/stockalert/internal/database"
)

// DefaultBuffer is the per-subscription queue length used when none is given
const DefaultBuffer = 64

// Forwarder receives every locally published notification for delivery to other instances
type Forwarder interface {
	Forward(n *database.Notification)
}

// Subscription is a live feed of notifications for one recipient
type Subscription struct {
	hub         *Hub
	recipientID uint
	ch          chan *database.Notification
	dropped     atomic.Int64
	closeOnce   sync.Once
}

// C returns the channel notifications arrive on; it is closed by Close or Hub.Close
func (s *Subscription) C() <-chan *database.Notification {
	return s.ch
}

// RecipientID returns the recipient this subscription is for
func (s *Subscription) RecipientID() uint {
	return s.recipientID
}

// Dropped returns how many notifications were discarded because the buffer was full
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes; it is safe to call more than once
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans notifications out to the subscriptions of their recipient
type Hub struct {
	mu        sync.RWMutex
	subs      map[uint]map[*Subscription]struct{}
	closed    bool
	forwarder Forwarder

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint]map[*Subscription]struct{}),
	}
}

// SetForwarder installs a forwarder that sees every local publish
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwarder = f
}

// Subscribe registers a subscription for recipientID with a queue of buffer messages
func (h *Hub) Subscribe(recipientID uint, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		hub:         h,
		recipientID: recipientID,
		ch:          make(chan *database.Notification, buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.closeOnce.Do(func() { close(sub.ch) })
		return sub
	}
	set, ok := h.subs[recipientID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[recipientID] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.recipientID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sub.recipientID)
			}
		}
	}
	sub.closeOnce.Do(func() { close(sub.ch) })
}

// Publish delivers n to local subscribers and hands it to the forwarder
func (h *Hub) Publish(n *database.Notification) {
	h.Deliver(n)

	h.mu.RLock()
	f := h.forwarder
	h.mu.RUnlock()
	if f != nil {
		f.Forward(n)
	}
}

// Deliver pushes n to local subscribers of its recipient only.
// It returns the number of subscriptions the notification was queued on.
func (h *Hub) Deliver(n *database.Notification) int {
	if n == nil {
		return 0
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	delivered := 0
	for sub := range h.subs[n.RecipientID] {
		select {
		case sub.ch <- n:
			delivered++
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
			log.Printf("Warning: Hub: subscriber buffer full for recipient %d, dropped notification %s", n.RecipientID, n.ID)
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions for recipientID
func (h *Hub) SubscriberCount(recipientID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[recipientID])
}

// Stats reports counters for the health endpoint
type Stats struct {
	Recipients    int   `json:"recipients"`
	Subscriptions int   `json:"subscriptions"`
	Published     int64 `json:"published"`
	Dropped       int64 `json:"dropped"`
}

// Stats returns a snapshot of hub counters
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := 0
	for _, set := range h.subs {
		subs += len(set)
	}
	return Stats{
		Recipients:    len(h.subs),
		Subscriptions: subs,
		Published:     h.published.Load(),
		Dropped:       h.dropped.Load(),
	}
}

// Close ends every subscription; later subscriptions are returned already closed
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			sub.closeOnce.Do(func() { close(sub.ch) })
		}
	}
	h.subs = make(map[uint]map[*Subscription]struct{})
}
