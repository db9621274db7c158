package manifest

import (
	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/role"
)

// TraceField is the instance field collecting stub invocations.
const TraceField = "trace"

// stubs hands out one shared implementation per id.
type stubs struct {
	methods map[string]*class.Method
}

func newStubs() *stubs {
	return &stubs{methods: make(map[string]*class.Method)}
}

func (s *stubs) method(id string) *class.Method {
	if m, ok := s.methods[id]; ok {
		return m
	}
	m := class.NewNamedMethod(id, func(recv *class.Instance, args ...any) (any, error) {
		trace(recv, id)
		return id, nil
	})
	s.methods[id] = m
	return m
}

func (s *stubs) table(defs map[string]string) map[string]*class.Method {
	out := make(map[string]*class.Method, len(defs))
	for name, id := range defs {
		out[name] = s.method(id)
	}
	return out
}

func advice(ids []string) []role.Advice {
	out := make([]role.Advice, 0, len(ids))
	for _, id := range ids {
		id := id
		out = append(out, func(recv *class.Instance, args ...any) error {
			trace(recv, id)
			return nil
		})
	}
	return out
}

func arounds(ids []string) []role.Around {
	out := make([]role.Around, 0, len(ids))
	for _, id := range ids {
		id := id
		out = append(out, func(next class.Func, recv *class.Instance, args ...any) (any, error) {
			trace(recv, id+":enter")
			result, err := next(recv, args...)
			trace(recv, id+":exit")
			return result, err
		})
	}
	return out
}

func adviceMap(defs map[string][]string) map[string][]role.Advice {
	if len(defs) == 0 {
		return nil
	}
	out := make(map[string][]role.Advice, len(defs))
	for name, ids := range defs {
		out[name] = advice(ids)
	}
	return out
}

func aroundMap(defs map[string][]string) map[string][]role.Around {
	if len(defs) == 0 {
		return nil
	}
	out := make(map[string][]role.Around, len(defs))
	for name, ids := range defs {
		out[name] = arounds(ids)
	}
	return out
}

func trace(recv *class.Instance, entry string) {
	if recv == nil {
		return
	}
	v, _ := recv.Get(TraceField)
	entries, _ := v.([]string)
	recv.Set(TraceField, append(entries, entry))
}

// Trace returns the stub invocations recorded on inst.
func Trace(inst *class.Instance) []string {
	v, _ := inst.Get(TraceField)
	entries, _ := v.([]string)
	return append([]string(nil), entries...)
}
