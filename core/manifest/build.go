package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/registry"
	"github.com/artpar/traits/core/role"
)

// Entry kinds reported by Build.
const (
	KindClass       = "class"
	KindRole        = "role"
	KindApplication = "application"
)

// ErrUnknown is wrapped by problems that reference an undeclared name.
var ErrUnknown = errors.New("unknown name")

// ErrCycle is wrapped by problems caused by roles composing themselves.
var ErrCycle = errors.New("composition cycle")

// Result is the outcome of building one manifest entry.
type Result struct {
	Kind   string
	Name   string
	Err    error
	Detail string
}

// OK reports whether the entry was built.
func (r Result) OK() bool {
	return r.Err == nil
}

// BuildError aggregates every failed entry.
type BuildError struct {
	Problems []Result
}

// Error returns one line per failed entry.
func (e *BuildError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, fmt.Sprintf("%s %q: %v", p.Kind, p.Name, p.Err))
	}
	return fmt.Sprintf("manifest has %d problem(s):\n  - %s", len(e.Problems), strings.Join(msgs, "\n  - "))
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, 0, len(e.Problems))
	for _, p := range e.Problems {
		errs = append(errs, p.Err)
	}
	return errs
}

// World holds everything a manifest built.
type World struct {
	Registry *registry.Registry
	Results  []Result

	classes map[string]*class.Class
	roles   map[string]*role.Role
}

// Class returns a declared class or application result.
func (w *World) Class(name string) (*class.Class, bool) {
	c, ok := w.classes[name]
	return c, ok
}

// Role returns a built role.
func (w *World) Role(name string) (*role.Role, bool) {
	r, ok := w.roles[name]
	return r, ok
}

// ClassNames returns the built class names, sorted.
func (w *World) ClassNames() []string {
	return sortedKeys(w.classes)
}

// RoleNames returns the built role names, sorted.
func (w *World) RoleNames() []string {
	return sortedKeys(w.roles)
}

// Invoke calls method on a fresh instance of the named class and returns
// the result with the stub trace.
func (w *World) Invoke(className, method string, args ...any) (any, []string, error) {
	c, ok := w.classes[className]
	if !ok {
		return nil, nil, fmt.Errorf("class %q: %w", className, ErrUnknown)
	}
	inst := c.NewInstance(nil)
	result, err := inst.Call(method, args...)
	return result, Trace(inst), err
}

// Build constructs the manifest's classes, roles and applications,
// applying roles through reg. It continues past failures; entries that
// depend on a failed entry fail too. The returned World is never nil.
func (m *Manifest) Build(reg *registry.Registry) (*World, error) {
	b := &builder{
		stubs:    newStubs(),
		defs:     make(map[string]RoleDef, len(m.Roles)),
		visiting: make(map[string]bool),
		failed:   make(map[string]error),
		world: &World{
			Registry: reg,
			classes:  make(map[string]*class.Class),
			roles:    make(map[string]*role.Role),
		},
	}
	for _, def := range m.Roles {
		b.defs[def.Name] = def
	}

	for _, def := range m.Classes {
		c := class.New(def.Name, b.stubs.table(def.Methods))
		b.world.classes[def.Name] = c
		b.record(KindClass, def.Name, nil, strings.Join(c.MethodNames(), ","))
	}
	for _, def := range m.Roles {
		// failures are recorded by role itself
		_, _ = b.role(def.Name)
	}
	for _, def := range m.Applications {
		b.apply(def)
	}

	var problems []Result
	for _, r := range b.world.Results {
		if !r.OK() {
			problems = append(problems, r)
		}
	}
	if len(problems) > 0 {
		return b.world, &BuildError{Problems: problems}
	}
	return b.world, nil
}

type builder struct {
	stubs    *stubs
	defs     map[string]RoleDef
	visiting map[string]bool
	failed   map[string]error
	world    *World
}

func (b *builder) record(kind, name string, err error, detail string) {
	b.world.Results = append(b.world.Results, Result{Kind: kind, Name: name, Err: err, Detail: detail})
}

// role builds a role after the roles it composes. Each declared role is
// recorded exactly once, successful or not.
func (b *builder) role(name string) (*role.Role, error) {
	if r, ok := b.world.roles[name]; ok {
		return r, nil
	}
	if err, ok := b.failed[name]; ok {
		return nil, err
	}
	def, ok := b.defs[name]
	if !ok {
		return nil, fmt.Errorf("role %q: %w", name, ErrUnknown)
	}
	if b.visiting[name] {
		return nil, fmt.Errorf("role %q: %w", name, ErrCycle)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	with := make([]*role.Role, 0, len(def.With))
	for _, sub := range def.With {
		r, err := b.role(sub)
		if err != nil {
			return nil, b.fail(name, fmt.Errorf("with %q: %w", sub, err))
		}
		with = append(with, r)
	}

	r, err := role.New(role.Spec{
		Name:     def.Name,
		Methods:  b.stubs.table(def.Methods),
		Requires: def.Requires,
		With:     with,
		Before:   adviceMap(def.Before),
		After:    adviceMap(def.After),
		Around:   aroundMap(def.Around),
	})
	if err != nil {
		return nil, b.fail(name, err)
	}

	b.world.roles[name] = r
	b.record(KindRole, name, nil, describeRole(r))
	return r, nil
}

func (b *builder) fail(name string, err error) error {
	b.failed[name] = err
	b.record(KindRole, name, err, "")
	return err
}

func (b *builder) apply(def ApplicationDef) {
	base, ok := b.world.classes[def.Class]
	if !ok {
		b.record(KindApplication, def.Name, fmt.Errorf("class %q: %w", def.Class, ErrUnknown), "")
		return
	}

	roles := make([]*role.Role, 0, len(def.Roles))
	for _, name := range def.Roles {
		r, err := b.role(name)
		if err != nil {
			b.record(KindApplication, def.Name, fmt.Errorf("role %q: %w", name, err), "")
			return
		}
		roles = append(roles, r)
	}

	result, err := b.world.Registry.Apply(base, roles...)
	if err != nil {
		b.record(KindApplication, def.Name, err, "")
		return
	}
	b.world.classes[def.Name] = result
	b.record(KindApplication, def.Name, nil, result.Name())
}

func describeRole(r *role.Role) string {
	var parts []string
	if p := r.ProvidedNames(); len(p) > 0 {
		parts = append(parts, "provides "+strings.Join(p, ","))
	}
	if req := r.Requires(); len(req) > 0 {
		parts = append(parts, "requires "+strings.Join(req, ","))
	}
	if applied := r.Applied(); len(applied) > 1 {
		names := make([]string, 0, len(applied)-1)
		for _, a := range applied[1:] {
			names = append(names, a.Name())
		}
		parts = append(parts, "composes "+strings.Join(names, ","))
	}
	return strings.Join(parts, "; ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
