// Package role defines composable roles.
//
// A role bundles methods, required method names and method advice, and may
// compose other roles. Roles are validated and frozen at construction: the
// provides, requires, modifiers and applied views never change afterwards.
package role

import (
	"fmt"
	"sort"

	"github.com/artpar/traits/core/class"
)

// Spec describes a role to construct.
type Spec struct {
	// Name identifies the role in errors and logs. Optional.
	Name string

	// Methods are the implementations the role contributes directly.
	Methods map[string]*class.Method

	// Requires lists methods that must exist wherever the role is applied.
	Requires []string

	// With lists composed roles, highest priority last.
	With []*Role

	Before map[string][]Advice
	After  map[string][]Advice
	Around map[string][]Around
}

// Role is an immutable, validated bundle of behavior.
type Role struct {
	name      string
	provides  map[string]*class.Method
	requires  []string
	modifiers Modifiers
	applied   []*Role
}

// New validates spec and freezes the derived views.
func New(spec Spec) (*Role, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	sources := make([]map[string]*class.Method, 0, len(spec.With)+1)
	sources = append(sources, spec.Methods)
	for _, sub := range spec.With {
		sources = append(sources, sub.provides)
	}
	provides, conflicts := merge(sources)
	if len(conflicts) > 0 {
		return nil, NewConflictError(spec.subject(), conflicts)
	}

	layers := make([]Modifiers, 0, len(spec.With)+1)
	for _, sub := range spec.With {
		layers = append(layers, sub.modifiers)
	}
	layers = append(layers, Modifiers{Before: spec.Before, After: spec.After, Around: spec.Around})
	modifiers := Stack(layers...)

	r := &Role{
		name:      spec.Name,
		provides:  provides,
		modifiers: modifiers,
	}
	r.requires = spec.requires(provides, modifiers)
	r.applied = spec.closure(r)
	return r, nil
}

// MustNew is like New but panics on error. Intended for package-level role
// definitions.
func MustNew(spec Spec) *Role {
	r, err := New(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the role name.
func (r *Role) Name() string {
	return r.name
}

// String implements fmt.Stringer.
func (r *Role) String() string {
	if r.name == "" {
		return fmt.Sprintf("role(%p)", r)
	}
	return r.name
}

// Provides returns every method the role contributes, including those of
// composed roles.
func (r *Role) Provides() map[string]*class.Method {
	out := make(map[string]*class.Method, len(r.provides))
	for name, m := range r.provides {
		out[name] = m
	}
	return out
}

// ProvidedNames returns the provided method names, sorted.
func (r *Role) ProvidedNames() []string {
	names := make([]string, 0, len(r.provides))
	for name := range r.provides {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requires returns the method names the role needs but does not provide.
func (r *Role) Requires() []string {
	return append([]string(nil), r.requires...)
}

// Modifiers returns the combined advice of the role and its composed roles.
func (r *Role) Modifiers() Modifiers {
	return r.modifiers.clone()
}

// Applied returns the role followed by every role it transitively composes.
func (r *Role) Applied() []*Role {
	return append([]*Role(nil), r.applied...)
}

// Composes reports whether other is in r's applied closure.
func (r *Role) Composes(other *Role) bool {
	for _, a := range r.applied {
		if a == other {
			return true
		}
	}
	return false
}

// Merge combines the provides of roles. It returns the merged methods and
// the sorted names that two roles implement differently.
func Merge(roles ...*Role) (map[string]*class.Method, []string) {
	sources := make([]map[string]*class.Method, 0, len(roles))
	for _, r := range roles {
		sources = append(sources, r.provides)
	}
	return merge(sources)
}

func merge(sources []map[string]*class.Method) (map[string]*class.Method, []string) {
	merged := make(map[string]*class.Method)
	conflicting := make(map[string]bool)
	for _, source := range sources {
		for name, m := range source {
			existing, ok := merged[name]
			if !ok {
				merged[name] = m
				continue
			}
			if existing != m {
				conflicting[name] = true
			}
		}
	}

	names := make([]string, 0, len(conflicting))
	for name := range conflicting {
		names = append(names, name)
	}
	sort.Strings(names)
	return merged, names
}

func (s Spec) subject() string {
	if s.Name == "" {
		return "role"
	}
	return fmt.Sprintf("role %q", s.Name)
}

func (s Spec) validate() error {
	for name, m := range s.Methods {
		if m == nil {
			return fmt.Errorf("%s: method %q has no implementation", s.subject(), name)
		}
	}
	for i, sub := range s.With {
		if sub == nil {
			return fmt.Errorf("%s: composed role %d is nil", s.subject(), i)
		}
	}
	for name, advice := range s.Before {
		if hasNilAdvice(advice) {
			return fmt.Errorf("%s: nil before advice for %q", s.subject(), name)
		}
	}
	for name, advice := range s.After {
		if hasNilAdvice(advice) {
			return fmt.Errorf("%s: nil after advice for %q", s.subject(), name)
		}
	}
	for name, arounds := range s.Around {
		for _, a := range arounds {
			if a == nil {
				return fmt.Errorf("%s: nil around advice for %q", s.subject(), name)
			}
		}
	}
	return nil
}

func hasNilAdvice(advice []Advice) bool {
	for _, a := range advice {
		if a == nil {
			return true
		}
	}
	return false
}

// requires is own requirements, then composed requirements, then modifier
// targets, minus provided names.
func (s Spec) requires(provides map[string]*class.Method, modifiers Modifiers) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(names []string) {
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, ok := provides[name]; !ok {
				out = append(out, name)
			}
		}
	}

	add(s.Requires)
	for _, sub := range s.With {
		add(sub.requires)
	}
	add(modifiers.Targets())
	return out
}

func (s Spec) closure(self *Role) []*Role {
	seen := map[*Role]bool{self: true}
	out := []*Role{self}
	for _, sub := range s.With {
		for _, r := range sub.applied {
			if seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
