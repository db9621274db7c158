// Package registry applies roles to consumer classes and answers
// role-satisfaction queries.
//
// Each registry remembers, per role, the classes produced by applying it
// directly or through a composing role. Records only grow.
package registry

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/refmap"
	"github.com/artpar/traits/core/role"
)

// ErrNoRoles is returned when Apply is called without roles.
var ErrNoRoles = errors.New("at least one role is required")

// Registry tracks role applications.
type Registry struct {
	mu sync.RWMutex

	// consumers maps role -> classes produced by applying it
	consumers *refmap.Map[*role.Role, []*class.Class]

	logger    zerolog.Logger
	observers []Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithObserver adds an observer notified after every Apply.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, o)
	}
}

// New creates an isolated registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		consumers: refmap.New[*role.Role, []*class.Class](),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Apply applies roles to consumer using the process-wide registry.
func Apply(consumer *class.Class, roles ...*role.Role) (*class.Class, error) {
	return defaultRegistry.Apply(consumer, roles...)
}

// DoesRole queries the process-wide registry.
func DoesRole(candidate any, r *role.Role) bool {
	return defaultRegistry.DoesRole(candidate, r)
}

// DoesRole reports whether candidate satisfies r.
//
// A *role.Role satisfies r when r is in its applied closure. A *class.Class
// or *class.Instance satisfies r when it is, is an instance of, or descends
// from a class r was applied to. Any other candidate does not.
func (reg *Registry) DoesRole(candidate any, r *role.Role) bool {
	if r == nil {
		return false
	}

	var k *class.Class
	switch c := candidate.(type) {
	case *role.Role:
		return c != nil && c.Composes(r)
	case *class.Class:
		k = c
	case *class.Instance:
		if c != nil {
			k = c.Class()
		}
	}
	if k == nil {
		return false
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	targets, _ := reg.consumers.Get(r)
	for _, target := range targets {
		if k.IsA(target) {
			return true
		}
	}
	return false
}

// Consumers returns the classes r has been applied to, in application order.
func (reg *Registry) Consumers(r *role.Role) []*class.Class {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	targets, _ := reg.consumers.Get(r)
	return append([]*class.Class(nil), targets...)
}

// Roles returns every role with at least one recorded application.
func (reg *Registry) Roles() []*role.Role {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.consumers.Keys()
}

// RolesOf returns the recorded roles candidate satisfies, in first
// application order.
func (reg *Registry) RolesOf(candidate any) []*role.Role {
	var out []*role.Role
	for _, r := range reg.Roles() {
		if reg.DoesRole(candidate, r) {
			out = append(out, r)
		}
	}
	return out
}
