package sqlite_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/artpar/traits/adapters/sqlite"
	"github.com/artpar/traits/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "traits.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 3 {
		t.Errorf("schema_migrations has %d rows, want 3", count)
	}
}

func TestApplicationStore_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewApplicationStore(setupTestDB(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := ports.ApplicationRecord{
		ID:       "app_1",
		Base:     "List",
		Result:   "List+Sortable",
		Roles:    []string{"Sortable"},
		Applied:  []string{"Sortable", "Comparable"},
		Modified: []string{"insert"},
		At:       at,
	}
	second := ports.ApplicationRecord{
		ID:       "app_2",
		Base:     "Set",
		Result:   "Set+Comparable",
		Roles:    []string{"Comparable"},
		Applied:  []string{"Comparable"},
		Modified: []string{},
		At:       at.Add(time.Minute),
	}
	for _, rec := range []ports.ApplicationRecord{first, second} {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%s) error = %v", rec.ID, err)
		}
	}

	recent, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "app_2" {
		t.Fatalf("List(1) = %+v, want app_2", recent)
	}

	byRole, err := store.ByRole(ctx, "Comparable")
	if err != nil {
		t.Fatalf("ByRole() error = %v", err)
	}
	if len(byRole) != 2 {
		t.Fatalf("ByRole(Comparable) returned %d records, want 2", len(byRole))
	}

	got := byRole[0]
	if !reflect.DeepEqual(got.Applied, first.Applied) || !reflect.DeepEqual(got.Modified, first.Modified) {
		t.Errorf("round-tripped record = %+v, want %+v", got, first)
	}
	if !got.At.Equal(at) {
		t.Errorf("At = %v, want %v", got.At, at)
	}

	if none, _ := store.ByRole(ctx, "Unknown"); len(none) != 0 {
		t.Errorf("ByRole(Unknown) = %+v, want none", none)
	}
}

func TestApplicationStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewApplicationStore(setupTestDB(t))
	rec := ports.ApplicationRecord{ID: "dup", Base: "A", Result: "A+R", Roles: []string{"R"}, Applied: []string{"R"}, At: time.Now()}

	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, rec); err == nil {
		t.Error("Record() with duplicate ID should fail")
	}
}
