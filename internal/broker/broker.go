// ============================================================================
// Aegis Broker - process-local publish/subscribe
// ============================================================================
//
// Package: internal/broker
// Purpose: string-keyed pub/sub that PortEventRouter and the pool runtime
// build on top of. One interface, one concrete implementation, handlers
// run in registration order.
//
// ============================================================================

package broker

import (
	"log/slog"
	"sync"
)

var log = slog.Default()

// Handler reacts to a notification. Handlers never abort the fan-out:
// a panicking or erroring handler is logged and the remaining handlers
// still run.
type Handler func(event string, data any)

// Broker is a process-local pub/sub keyed by string event name.
type Broker interface {
	// On appends a handler for event. Handlers for the same event run
	// in the order they were registered.
	On(event string, h Handler)
	// Notify invokes every handler registered for event, sequentially,
	// catching per-handler failures without aborting the fan-out.
	Notify(event string, data any)
}

type broker struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// New returns a ready to use, empty Broker.
func New() Broker {
	return &broker{handlers: make(map[string][]Handler)}
}

func (b *broker) On(event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], h)
}

func (b *broker) Notify(event string, data any) {
	b.mu.Lock()
	hs := append([]Handler(nil), b.handlers[event]...)
	b.mu.Unlock()

	for _, h := range hs {
		b.invoke(h, event, data)
	}
}

func (b *broker) invoke(h Handler, event string, data any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("broker handler panicked", "event", event, "recover", r)
		}
	}()
	h(event, data)
}
