package refmap_test

import (
	"testing"

	"github.com/artpar/traits/core/refmap"
)

type ref struct{ name string }

func TestMap_IdentityKeys(t *testing.T) {
	a := &ref{name: "same"}
	b := &ref{name: "same"}

	m := refmap.New[*ref, int]()
	m.Set(a, 1)

	if !m.Has(a) {
		t.Error("Has(a) = false, want true")
	}
	if m.Has(b) {
		t.Error("Has(b) = true, want false for a structurally equal but distinct key")
	}
}

func TestMap_SetReturnsPrevious(t *testing.T) {
	k := &ref{}
	m := refmap.New[*ref, string]()

	if prev, existed := m.Set(k, "one"); existed || prev != "" {
		t.Errorf("first Set() = %q, %v; want empty, false", prev, existed)
	}
	if prev, existed := m.Set(k, "two"); !existed || prev != "one" {
		t.Errorf("second Set() = %q, %v; want one, true", prev, existed)
	}
	if got, _ := m.Get(k); got != "two" {
		t.Errorf("Get() = %q, want two", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMap_Unset(t *testing.T) {
	k := &ref{}
	m := refmap.New(refmap.Pair[*ref, int]{Key: k, Value: 7})

	v, ok := m.Unset(k)
	if !ok || v != 7 {
		t.Errorf("Unset() = %d, %v; want 7, true", v, ok)
	}
	if _, ok := m.Unset(k); ok {
		t.Error("second Unset() should report absent")
	}
	if _, ok := m.Get(k); ok {
		t.Error("Get() after Unset should report absent")
	}
}

func TestMap_InsertionOrder(t *testing.T) {
	a, b, c := &ref{"a"}, &ref{"b"}, &ref{"c"}
	m := refmap.New(
		refmap.Pair[*ref, int]{Key: b, Value: 2},
		refmap.Pair[*ref, int]{Key: a, Value: 1},
	)
	m.Set(c, 3)
	m.Set(b, 20)

	keys := m.Keys()
	wantKeys := []*ref{b, a, c}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] {
			t.Errorf("Keys()[%d] = %s, want %s", i, keys[i].name, wantKeys[i].name)
		}
	}

	values := m.Values()
	wantValues := []int{20, 1, 3}
	for i := range wantValues {
		if values[i] != wantValues[i] {
			t.Errorf("Values()[%d] = %d, want %d", i, values[i], wantValues[i])
		}
	}
}
