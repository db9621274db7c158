// Package events provides a synchronous publish/subscribe bus for
// role-composition events.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event names published by Forwarder.
const (
	RoleApplied  = "role.applied"
	RoleRejected = "role.rejected"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "role.applied").
	Name string

	// Class is the consumer class the event concerns.
	Class string

	// Roles are the names of the roles involved, in argument order.
	Roles []string

	// Data contains the event payload.
	Data map[string]any
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// Supports wildcard subscriptions:
//   - "role.applied" - exact match
//   - "role.*" - all role events
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish calls every matching handler synchronously in registration order.
// Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	matched := b.match(event.Name)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", event.Name).
		Str("class", event.Class).
		Strs("roles", event.Roles).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers reports whether any handler would receive event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.match(event)) > 0
}

// match collects exact, prefix-wildcard and global handlers. Caller holds mu.
func (b *Bus) match(name string) []Handler {
	var matched []Handler
	matched = append(matched, b.handlers[name]...)

	if name != "" {
		prefix, _, _ := strings.Cut(name, ".")
		matched = append(matched, b.handlers[prefix+".*"]...)
	}

	matched = append(matched, b.handlers["*"]...)
	return matched
}
