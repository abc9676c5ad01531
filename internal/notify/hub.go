package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub fans events out to registered in-process subscribers (the websocket
// layer bridges each connection to one subscriber). Subscribers have explicit
// lifecycle: Subscribe returns an unregister func the caller must run.
type Hub struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// Subscriber receives marshaled events on C until unregistered.
type Subscriber struct {
	pubkey string
	C      chan []byte
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a listener. pubkey scopes participant-only events; an
// empty pubkey receives broadcast events only.
func (h *Hub) Subscribe(pubkey string) (*Subscriber, func()) {
	s := &Subscriber{pubkey: pubkey, C: make(chan []byte, 16)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.C)
		})
	}
}

// Emit delivers the event to all matching subscribers. Slow subscribers are
// skipped rather than blocking the engine.
func (h *Hub) Emit(_ context.Context, ev Event) {
	b, err := ev.Marshal()
	if err != nil {
		h.logger.Error("marshal event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if len(ev.Pubkeys) > 0 && !ev.scopedTo(s.pubkey) {
			continue
		}
		select {
		case s.C <- b:
		default:
			h.logger.Warn("dropping event for slow subscriber", zap.String("kind", string(ev.Kind)))
		}
	}
}
