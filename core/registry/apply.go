package registry

import (
	"fmt"
	"strings"

	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/role"
)

// Apply composes roles onto consumer and returns the derived class.
//
// Conflicts between the given roles are reported first, then unmet
// requirements. A failed Apply changes nothing. Every role in the applied
// closure of the given roles is recorded against the new class.
func (reg *Registry) Apply(consumer *class.Class, roles ...*role.Role) (*class.Class, error) {
	if consumer == nil {
		return nil, fmt.Errorf("apply: consumer class is nil")
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("apply to %s: %w", consumer.Name(), ErrNoRoles)
	}
	for i, r := range roles {
		if r == nil {
			return nil, fmt.Errorf("apply to %s: role %d is nil", consumer.Name(), i)
		}
	}

	subject := fmt.Sprintf("class %q", consumer.Name())

	provided, conflicts := role.Merge(roles...)
	if len(conflicts) > 0 {
		return nil, reg.reject(consumer, roles, role.NewConflictError(subject, conflicts))
	}

	if missing := missingRequirements(consumer, provided, roles); len(missing) > 0 {
		return nil, reg.reject(consumer, roles, role.NewMissingRequirementError(subject, missing))
	}

	table, modified := installModifiers(consumer, provided, roles)
	result := consumer.Extend(derivedName(consumer, roles), table)
	applied := appliedClosure(roles)

	reg.mu.Lock()
	for _, r := range applied {
		targets, _ := reg.consumers.Get(r)
		reg.consumers.Set(r, append(targets, result))
	}
	reg.mu.Unlock()

	app := Application{
		Base:     consumer,
		Result:   result,
		Roles:    append([]*role.Role(nil), roles...),
		Applied:  applied,
		Modified: modified,
	}

	reg.logger.Debug().
		Str("class", consumer.Name()).
		Str("result", result.Name()).
		Strs("roles", roleNames(roles)).
		Int("methods", len(table)).
		Strs("modified", modified).
		Msg("roles applied")

	for _, o := range reg.observers {
		o.Applied(app)
	}
	return result, nil
}

func (reg *Registry) reject(consumer *class.Class, roles []*role.Role, err *role.CompositionError) error {
	reg.logger.Warn().
		Str("class", consumer.Name()).
		Strs("roles", roleNames(roles)).
		Str("kind", string(err.Kind)).
		Strs("methods", err.Methods).
		Msg("role application rejected")

	rej := Rejection{Base: consumer, Roles: append([]*role.Role(nil), roles...), Err: err}
	for _, o := range reg.observers {
		o.Rejected(rej)
	}
	return err
}

// missingRequirements returns required names defined neither on consumer
// nor in provided.
func missingRequirements(consumer *class.Class, provided map[string]*class.Method, roles []*role.Role) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, r := range roles {
		for _, name := range r.Requires() {
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, ok := provided[name]; ok {
				continue
			}
			if consumer.Has(name) {
				continue
			}
			missing = append(missing, name)
		}
	}
	return missing
}

// installModifiers returns the method table of the derived class: every
// provided method, plus a wrapped replacement for each advised method. The
// wrapped core is the method the derived class would resolve without
// advice, so a method provided in the same application can be advised.
func installModifiers(consumer *class.Class, provided map[string]*class.Method, roles []*role.Role) (map[string]*class.Method, []string) {
	table := make(map[string]*class.Method, len(provided))
	for name, m := range provided {
		table[name] = m
	}

	layers := make([]role.Modifiers, 0, len(roles))
	for _, r := range roles {
		layers = append(layers, r.Modifiers())
	}
	stacked := role.Stack(layers...)

	modified := stacked.Targets()
	for _, name := range modified {
		original, ok := table[name]
		if !ok {
			original, _ = consumer.Lookup(name)
		}
		table[name] = class.NewNamedMethod(name, stacked.Wrap(name, original.Call))
	}
	return table, modified
}

func appliedClosure(roles []*role.Role) []*role.Role {
	seen := make(map[*role.Role]bool)
	var out []*role.Role
	for _, r := range roles {
		for _, a := range r.Applied() {
			if seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func derivedName(consumer *class.Class, roles []*role.Role) string {
	return consumer.Name() + "+" + strings.Join(roleNames(roles), "+")
}

func roleNames(roles []*role.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}
