package role

import (
	"sort"

	"github.com/artpar/traits/core/class"
)

// Advice runs before or after a method. Its error aborts the call.
type Advice func(recv *class.Instance, args ...any) error

// Around wraps a method. next is the previously wrapped form.
type Around func(next class.Func, recv *class.Instance, args ...any) (any, error)

// Modifiers holds advice per method name, already ordered for one layer:
// Before in run order, After in run order, Around innermost first.
type Modifiers struct {
	Before map[string][]Advice
	After  map[string][]Advice
	Around map[string][]Around
}

// Targets returns every method name touched by advice, sorted.
func (m Modifiers) Targets() []string {
	seen := make(map[string]bool)
	for name := range m.Before {
		seen[name] = true
	}
	for name := range m.After {
		seen[name] = true
	}
	for name := range m.Around {
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether no advice is declared.
func (m Modifiers) Empty() bool {
	return len(m.Before) == 0 && len(m.After) == 0 && len(m.Around) == 0
}

// Stack folds layers in processing order. Each later layer's before advice
// is prepended, its after advice appended, and its around advice wraps
// everything accumulated so far.
func Stack(layers ...Modifiers) Modifiers {
	out := Modifiers{
		Before: make(map[string][]Advice),
		After:  make(map[string][]Advice),
		Around: make(map[string][]Around),
	}
	for _, layer := range layers {
		for name, advice := range layer.Before {
			if len(advice) == 0 {
				continue
			}
			merged := make([]Advice, 0, len(advice)+len(out.Before[name]))
			merged = append(merged, advice...)
			out.Before[name] = append(merged, out.Before[name]...)
		}
		for name, advice := range layer.After {
			if len(advice) == 0 {
				continue
			}
			out.After[name] = append(out.After[name], advice...)
		}
		for name, arounds := range layer.Around {
			if len(arounds) == 0 {
				continue
			}
			out.Around[name] = append(out.Around[name], arounds...)
		}
	}
	return out
}

// Wrap builds the replacement for core: all before advice, then the around
// chain with core innermost, then all after advice. An error from before
// advice or from the around chain stops the call; after advice only runs
// once the chain has succeeded.
func (m Modifiers) Wrap(name string, core class.Func) class.Func {
	before := append([]Advice(nil), m.Before[name]...)
	after := append([]Advice(nil), m.After[name]...)

	wrapped := core
	for _, around := range m.Around[name] {
		next, advice := wrapped, around
		wrapped = func(recv *class.Instance, args ...any) (any, error) {
			return advice(next, recv, args...)
		}
	}

	return func(recv *class.Instance, args ...any) (any, error) {
		for _, advice := range before {
			if err := advice(recv, args...); err != nil {
				return nil, err
			}
		}
		result, err := wrapped(recv, args...)
		if err != nil {
			return result, err
		}
		for _, advice := range after {
			if err := advice(recv, args...); err != nil {
				return result, err
			}
		}
		return result, nil
	}
}

func (m Modifiers) clone() Modifiers {
	out := Modifiers{
		Before: make(map[string][]Advice, len(m.Before)),
		After:  make(map[string][]Advice, len(m.After)),
		Around: make(map[string][]Around, len(m.Around)),
	}
	for name, advice := range m.Before {
		out.Before[name] = append([]Advice(nil), advice...)
	}
	for name, advice := range m.After {
		out.After[name] = append([]Advice(nil), advice...)
	}
	for name, arounds := range m.Around {
		out.Around[name] = append([]Around(nil), arounds...)
	}
	return out
}
