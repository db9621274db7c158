package app_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/traits/adapters/clock"
	"github.com/artpar/traits/adapters/idgen"
	"github.com/artpar/traits/adapters/memory"
	"github.com/artpar/traits/app"
	"github.com/artpar/traits/core/class"
	"github.com/artpar/traits/core/events"
	"github.com/artpar/traits/core/registry"
	"github.com/artpar/traits/core/role"
)

func TestAuditRecorder_RecordsApplications(t *testing.T) {
	ctx := context.Background()
	store := memory.NewApplicationStore()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	bus := events.NewBus(zerolog.Nop())
	recorder := app.NewAuditRecorder(store, idgen.NewSequential("app_"), clock.NewFake(now), zerolog.Nop())
	recorder.Subscribe(bus)

	reg := registry.New(registry.WithObserver(events.NewForwarder(ctx, bus)))
	run := class.NewMethod(func(recv *class.Instance, args ...any) (any, error) { return nil, nil })
	inner := role.MustNew(role.Spec{Name: "Inner"})
	outer := role.MustNew(role.Spec{
		Name:  "Outer",
		With:  []*role.Role{inner},
		After: map[string][]role.Advice{"run": {func(recv *class.Instance, args ...any) error { return nil }}},
	})

	if _, err := reg.Apply(class.New("Job", map[string]*class.Method{"run": run}), outer); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// Rejections are not audited.
	_, _ = reg.Apply(class.New("Job", nil), role.MustNew(role.Spec{Requires: []string{"x"}}))

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.ID != "app_1" || rec.Base != "Job" || rec.Result != "Job+Outer" {
		t.Errorf("record = %+v", rec)
	}
	if !reflect.DeepEqual(rec.Applied, []string{"Outer", "Inner"}) {
		t.Errorf("Applied = %v, want [Outer Inner]", rec.Applied)
	}
	if !reflect.DeepEqual(rec.Modified, []string{"run"}) {
		t.Errorf("Modified = %v, want [run]", rec.Modified)
	}
	if !rec.At.Equal(now) {
		t.Errorf("At = %v, want %v", rec.At, now)
	}
}

func TestAuditRecorder_IgnoresOtherEvents(t *testing.T) {
	store := memory.NewApplicationStore()
	recorder := app.NewAuditRecorder(store, idgen.NewSequential(""), clock.Real{}, zerolog.Nop())

	if err := recorder.Handle(context.Background(), events.Event{Name: events.RoleRejected}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if records, _ := store.List(context.Background(), 0); len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}
