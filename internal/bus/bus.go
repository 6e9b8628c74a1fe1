// Package bus implements the priority event bus that serializes every state
// change in the runtime into a single total order.
package bus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/pkg/models"
)

// Handler processes one dispatched event. Handlers run on the dispatcher
// goroutine and must not block on I/O; suspending work is offloaded to a
// worker goroutine whose completion emits a follow-up event.
type Handler func(ev models.Event) error

// DefaultHistoryCap bounds the history ring buffer unless overridden.
const DefaultHistoryCap = 1024

// Options configures a Bus.
type Options struct {
	// HistoryCap bounds history retention. 0 uses DefaultHistoryCap; a
	// negative value disables history.
	HistoryCap int

	Logger *observability.Logger
}

type subscription struct {
	key     uintptr
	handler Handler
}

// Bus is a single-threaded cooperative dispatcher. Emit never blocks; one
// dispatcher goroutine pops the most urgent pending event and runs its
// handlers to completion before the next event is popped.
type Bus struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queue       eventQueue
	exact       map[models.EventType][]subscription
	wildcard    []subscription
	history     []models.Event
	historyCap  int
	seq         uint64
	running     bool
	dispatching bool
	done        chan struct{}
	log         *observability.Logger
}

// New creates a stopped bus. Call Start to begin draining.
func New(opts Options) *Bus {
	historyCap := opts.HistoryCap
	if historyCap == 0 {
		historyCap = DefaultHistoryCap
	}
	log := opts.Logger
	if log == nil {
		log = observability.NewTestLogger()
	}
	b := &Bus{
		exact:      make(map[models.EventType][]subscription),
		historyCap: historyCap,
		log:        log,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// handlerKey identifies a handler by its code pointer. reflect.Value.Pointer
// does not distinguish method values bound to different receivers, so
// subscribers needing per-instance dispatch must use distinct functions.
func handlerKey(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// Subscribe registers a handler for an exact event type. Registering the
// same (type, handler) pair twice has no extra effect on dispatch.
func (b *Bus) Subscribe(t models.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := handlerKey(h)
	for _, sub := range b.exact[t] {
		if sub.key == key {
			return
		}
	}
	b.exact[t] = append(b.exact[t], subscription{key: key, handler: h})
}

// SubscribeAll registers a wildcard handler that receives every event after
// the exact-type handlers. Idempotent per handler.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := handlerKey(h)
	for _, sub := range b.wildcard {
		if sub.key == key {
			return
		}
	}
	b.wildcard = append(b.wildcard, subscription{key: key, handler: h})
}

// Unsubscribe removes a handler for an exact event type. No-op when the pair
// is not registered.
func (b *Bus) Unsubscribe(t models.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := handlerKey(h)
	subs := b.exact[t]
	for i, sub := range subs {
		if sub.key == key {
			b.exact[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit places an event in the pending queue. It assigns the emission
// sequence, never blocks, and never fails. The enqueued copy is returned so
// callers can derive follow-up events from it.
func (b *Bus) Emit(ev models.Event) models.Event {
	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq
	b.queue.push(ev)
	b.cond.Broadcast()
	b.mu.Unlock()
	return ev
}

// Start begins draining the queue. Idempotent.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.done = make(chan struct{})
	go b.run(b.done)
}

// Stop halts dispatch after the in-flight event completes. Pending events
// stay queued. Idempotent. Must not be called from a handler.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	done := b.done
	b.cond.Broadcast()
	b.mu.Unlock()
	<-done
}

// IsRunning reports whether the dispatcher is draining.
func (b *Bus) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// PendingCount returns the number of queued, not yet dispatched events.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// History returns a copy of the dispatched-event history in dispatch order.
// Returns nil when history is disabled.
func (b *Bus) History() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return nil
	}
	out := make([]models.Event, len(b.history))
	copy(out, b.history)
	return out
}

// Idle reports whether no event is queued or being dispatched.
func (b *Bus) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len() == 0 && !b.dispatching
}

func (b *Bus) run(done chan struct{}) {
	defer close(done)
	for {
		b.mu.Lock()
		for b.running && b.queue.Len() == 0 {
			b.cond.Wait()
		}
		if !b.running {
			b.mu.Unlock()
			return
		}
		ev := b.queue.pop()
		b.dispatching = true
		b.appendHistory(ev)
		handlers := b.handlersFor(ev.Type)
		b.mu.Unlock()

		for _, sub := range handlers {
			b.safeDispatch(sub.handler, ev)
		}

		b.mu.Lock()
		b.dispatching = false
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

// handlersFor returns exact-type handlers followed by wildcard handlers, in
// registration order. Caller holds b.mu.
func (b *Bus) handlersFor(t models.EventType) []subscription {
	out := make([]subscription, 0, len(b.exact[t])+len(b.wildcard))
	out = append(out, b.exact[t]...)
	out = append(out, b.wildcard...)
	return out
}

// safeDispatch runs one handler, containing panics and logging errors so the
// remaining handlers for the same event still run.
func (b *Bus) safeDispatch(h Handler, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				"event_id", ev.ID,
				"event_type", ev.Type.String(),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	if err := h(ev); err != nil {
		b.log.Error("event handler failed",
			"event_id", ev.ID,
			"event_type", ev.Type.String(),
			"error", err,
		)
	}
}

// appendHistory records a dispatched event, evicting the oldest entry when
// the ring is full. Caller holds b.mu.
func (b *Bus) appendHistory(ev models.Event) {
	if b.historyCap < 0 {
		return
	}
	if len(b.history) >= b.historyCap {
		b.history = b.history[1:]
	}
	b.history = append(b.history, ev)
}
