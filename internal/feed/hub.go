package feed

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/p2pswap"
)

// Hub is a one-to-many fan-out of engine events. It satisfies
// p2pswap.EventSink and distributes to per-market subscribers and to
// unfiltered subscribers. Slow subscribers lose events rather than stall
// the engine.
type Hub struct {
	in chan p2pswap.Event

	// Filtered subscribers keyed by market ID.
	mu   sync.RWMutex
	subs map[uint64][]chan p2pswap.Event

	// allMu guards the unfiltered subscriber list.
	allMu  sync.RWMutex
	allSub []chan p2pswap.Event
}

// NewHub creates a Hub. Call Run to start distribution.
func NewHub() *Hub {
	return &Hub{
		in:   make(chan p2pswap.Event, 1024),
		subs: make(map[uint64][]chan p2pswap.Event),
	}
}

// Publish enqueues ev without blocking.
func (h *Hub) Publish(ev p2pswap.Event) {
	select {
	case h.in <- ev:
	default:
		log.WithFields(log.Fields{"component": "feed", "kind": ev.Kind}).Warn("hub: input full, dropping event")
	}
}

// Subscribe returns a buffered channel that receives events of one market.
func (h *Hub) Subscribe(marketID uint64) <-chan p2pswap.Event {
	ch := make(chan p2pswap.Event, 256)

	h.mu.Lock()
	h.subs[marketID] = append(h.subs[marketID], ch)
	h.mu.Unlock()

	return ch
}

// SubscribeAll returns a buffered channel that receives every event,
// including ones not tied to a market.
func (h *Hub) SubscribeAll() <-chan p2pswap.Event {
	ch := make(chan p2pswap.Event, 512)

	h.allMu.Lock()
	h.allSub = append(h.allSub, ch)
	h.allMu.Unlock()

	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe or
// SubscribeAll.
func (h *Hub) Unsubscribe(sub <-chan p2pswap.Event) {
	h.mu.Lock()
	for id, subs := range h.subs {
		if kept, ok := without(subs, sub); ok {
			if len(kept) == 0 {
				delete(h.subs, id)
			} else {
				h.subs[id] = kept
			}
		}
	}
	h.mu.Unlock()

	h.allMu.Lock()
	if kept, ok := without(h.allSub, sub); ok {
		h.allSub = kept
	}
	h.allMu.Unlock()
}

func without(subs []chan p2pswap.Event, sub <-chan p2pswap.Event) ([]chan p2pswap.Event, bool) {
	for i, ch := range subs {
		if (<-chan p2pswap.Event)(ch) == sub {
			close(ch)
			return append(subs[:i:i], subs[i+1:]...), true
		}
	}
	return subs, false
}

// Close closes every subscriber channel. Streams fed by the hub end.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, subs := range h.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subs, id)
	}
	h.mu.Unlock()

	h.allMu.Lock()
	for _, ch := range h.allSub {
		close(ch)
	}
	h.allSub = nil
	h.allMu.Unlock()
}

// Run distributes published events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.in:
			h.distribute(ev)
		}
	}
}

// distribute sends ev to the market's subscribers and to all unfiltered
// subscribers. Non-blocking: slow consumers get events dropped.
func (h *Hub) distribute(ev p2pswap.Event) {
	if ev.Market.ID != 0 {
		h.mu.RLock()
		for _, ch := range h.subs[ev.Market.ID] {
			select {
			case ch <- ev:
			default:
				log.WithFields(log.Fields{"component": "feed", "market": ev.Market.ID}).
					Warn("hub: dropping event for slow subscriber")
			}
		}
		h.mu.RUnlock()
	}

	h.allMu.RLock()
	for _, ch := range h.allSub {
		select {
		case ch <- ev:
		default:
			// Slow unfiltered subscriber, drop.
		}
	}
	h.allMu.RUnlock()
}
