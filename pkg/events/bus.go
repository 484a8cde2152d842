// Package events implements the synchronous publish/subscribe bus that
// connects the harness with instrumentation modules.
//
// Publish runs every handler for the event type in registration order, on
// the caller's goroutine, before returning. Handlers may subscribe or publish
// from inside a handler; a nested publish is dispatched immediately.
package events

import (
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/phantomas/pkg/types"
)

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("event handler panicked")

// Handler receives a published event. A non-nil error aborts dispatch in
// strict mode.
type Handler func(types.Event) error

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscription struct {
	handler Handler
	id      SubscriptionID
	once    bool
	active  bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLenient keeps dispatching after a handler fails. onError receives the
// failing event and the handler error (panics included).
func WithLenient(onError func(types.Event, error)) Option {
	return func(b *Bus) {
		b.lenient = true
		b.onError = onError
	}
}

// WithObserver registers a function called for every published event before
// its handlers run.
func WithObserver(fn func(types.Event)) Option {
	return func(b *Bus) {
		b.observer = fn
	}
}

// Bus is a synchronous event bus.
type Bus struct {
	handlers map[types.EventType][]*subscription
	onError  func(types.Event, error)
	observer func(types.Event)
	mu       sync.Mutex
	nextID   SubscriptionID
	lenient  bool
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{handlers: make(map[types.EventType][]*subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for every event of type t.
func (b *Bus) Subscribe(t types.EventType, h Handler) SubscriptionID {
	return b.add(t, h, false)
}

// SubscribeOnce registers h for the next event of type t only.
func (b *Bus) SubscribeOnce(t types.EventType, h Handler) SubscriptionID {
	return b.add(t, h, true)
}

// Unsubscribe removes a handler. It returns false if id is unknown or the
// handler was already removed.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.handlers {
		for i, s := range subs {
			if s.id == id {
				s.active = false
				b.handlers[t] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// HandlerCount returns the number of handlers registered for t.
func (b *Bus) HandlerCount(t types.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[t])
}

// Publish dispatches ev to the handlers registered for its type. Handlers
// added during dispatch do not see the current event.
func (b *Bus) Publish(ev types.Event) error {
	if b.observer != nil {
		b.observer(ev)
	}

	b.mu.Lock()
	subs := append([]*subscription(nil), b.handlers[ev.Type]...)
	b.mu.Unlock()

	for _, s := range subs {
		if !b.claim(s) {
			continue
		}

		if err := invoke(s.handler, ev); err != nil {
			if !b.lenient {
				return fmt.Errorf("handler for %q: %w", ev.Type, err)
			}
			if b.onError != nil {
				b.onError(ev, err)
			}
		}
	}
	return nil
}

func (b *Bus) add(t types.EventType, h Handler, once bool) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[t] = append(b.handlers[t], &subscription{
		handler: h,
		id:      b.nextID,
		once:    once,
		active:  true,
	})
	return b.nextID
}

// claim reports whether s may still run, removing once-handlers before they
// are invoked.
func (b *Bus) claim(s *subscription) bool {
	b.mu.Lock()
	active := s.active
	b.mu.Unlock()

	if !active {
		return false
	}
	if s.once {
		return b.Unsubscribe(s.id)
	}
	return true
}

func invoke(h Handler, ev types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ev)
}
