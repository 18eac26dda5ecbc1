package web

import (
	"sync"

	"github.com/lucasnoah/sdlcfactory/internal/orchestrator"
)

// subscriberBuffer is how many events a slow subscriber may lag before
// events are dropped for it.
const subscriberBuffer = 64

// hub fans a run's events out to stream subscribers. Late subscribers get the
// full history first.
type hub struct {
	mu      sync.Mutex
	history []orchestrator.Event
	subs    map[chan orchestrator.Event]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan orchestrator.Event]struct{})}
}

// publish records e and forwards it without blocking the run.
func (h *hub) publish(e orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.history = append(h.history, e)
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// subscribe returns the history so far and a channel of later events. The
// channel is closed when the run ends or unsubscribe is called.
func (h *hub) subscribe() ([]orchestrator.Event, <-chan orchestrator.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	replay := append([]orchestrator.Event(nil), h.history...)
	ch := make(chan orchestrator.Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return replay, ch, func() {}
	}
	h.subs[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return replay, ch, unsubscribe
}

// close ends every subscription.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
