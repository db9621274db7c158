// Package class provides extensible consumer types.
//
// A Class is a named dispatch table with an optional parent. Extending a class
// never mutates it: Extend returns a new subtype whose own methods shadow the
// inherited ones. Instances dispatch through their class chain.
package class

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoMethod is returned when an instance is asked to run a method that no
// class in its chain defines.
var ErrNoMethod = errors.New("no such method")

// Func is the body of a method.
type Func func(recv *Instance, args ...any) (any, error)

// Method is an implementation handle. Two contributions are the same
// implementation only when they are the same *Method.
type Method struct {
	label string
	fn    Func
}

// NewMethod wraps fn in a new Method.
func NewMethod(fn Func) *Method {
	return &Method{fn: fn}
}

// NewNamedMethod wraps fn in a new Method with a label used in diagnostics.
func NewNamedMethod(label string, fn Func) *Method {
	return &Method{label: label, fn: fn}
}

// Label returns the diagnostic label, if any.
func (m *Method) Label() string {
	return m.label
}

// Func returns the underlying function.
func (m *Method) Func() Func {
	return m.fn
}

// Call invokes the method on recv.
func (m *Method) Call(recv *Instance, args ...any) (any, error) {
	if m == nil || m.fn == nil {
		return nil, ErrNoMethod
	}
	return m.fn(recv, args...)
}

// Class is a consumer type.
type Class struct {
	name    string
	parent  *Class
	methods map[string]*Method
}

// New creates a root class with the given methods.
func New(name string, methods map[string]*Method) *Class {
	return &Class{
		name:    name,
		methods: copyMethods(methods),
	}
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// String implements fmt.Stringer.
func (c *Class) String() string {
	return c.name
}

// Parent returns the class this one extends, or nil for a root class.
func (c *Class) Parent() *Class {
	return c.parent
}

// Extend returns a new subtype of c exposing methods as its own.
func (c *Class) Extend(name string, methods map[string]*Method) *Class {
	return &Class{
		name:    name,
		parent:  c,
		methods: copyMethods(methods),
	}
}

// Own returns a method defined directly on c.
func (c *Class) Own(name string) (*Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Lookup resolves a method through the class chain.
func (c *Class) Lookup(name string) (*Method, bool) {
	for k := c; k != nil; k = k.parent {
		if m, ok := k.methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Has reports whether name resolves on c.
func (c *Class) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// MethodNames returns every resolvable method name, sorted.
func (c *Class) MethodNames() []string {
	seen := make(map[string]bool)
	for k := c; k != nil; k = k.parent {
		for name := range k.methods {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsA reports whether c is other or one of its descendants.
func (c *Class) IsA(other *Class) bool {
	if other == nil {
		return false
	}
	for k := c; k != nil; k = k.parent {
		if k == other {
			return true
		}
	}
	return false
}

// NewInstance creates an instance of c with an initial copy of fields.
func (c *Class) NewInstance(fields map[string]any) *Instance {
	inst := &Instance{class: c, fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		inst.fields[k] = v
	}
	return inst
}

// Instance is a value of some Class.
type Instance struct {
	class  *Class
	fields map[string]any
}

// Class returns the class of the instance.
func (i *Instance) Class() *Class {
	return i.class
}

// Call dispatches name through the instance's class chain.
func (i *Instance) Call(name string, args ...any) (any, error) {
	m, ok := i.class.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", i.class.name, name, ErrNoMethod)
	}
	return m.Call(i, args...)
}

// Get returns a field value.
func (i *Instance) Get(key string) (any, bool) {
	v, ok := i.fields[key]
	return v, ok
}

// Set stores a field value.
func (i *Instance) Set(key string, value any) {
	i.fields[key] = value
}

func copyMethods(methods map[string]*Method) map[string]*Method {
	out := make(map[string]*Method, len(methods))
	for name, m := range methods {
		out[name] = m
	}
	return out
}
