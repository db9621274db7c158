package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/artpar/traits/adapters/metrics"
	"github.com/artpar/traits/config"
	"github.com/artpar/traits/core/events"
	"github.com/artpar/traits/core/manifest"
)

const goodManifest = `
classes:
  - name: Counter
    methods: {increment: counter.increment}
roles:
  - name: Audited
    before: {increment: [audit]}
applications:
  - name: AuditedCounter
    class: Counter
    roles: [Audited]
`

const brokenManifest = `
classes:
  - name: Counter
    methods: {increment: counter.increment}
roles:
  - name: NeedsReset
    requires: [reset]
applications:
  - name: Broken
    class: Counter
    roles: [NeedsReset]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRuntime_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roles.yaml", goodManifest)

	bus := events.NewBus(zerolog.Nop())
	var applied []events.Event
	bus.Subscribe(events.RoleApplied, func(ctx context.Context, e events.Event) error {
		applied = append(applied, e)
		return nil
	})
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	rt := NewRuntime(context.Background(), bus, m, zerolog.Nop())
	if rt.World() != nil {
		t.Fatal("World() before Load should be nil")
	}

	world, err := rt.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rt.World() != world {
		t.Error("World() does not return the loaded world")
	}
	if rt.Path() != path {
		t.Errorf("Path() = %s, want %s", rt.Path(), path)
	}
	if rt.LoadedAt().IsZero() {
		t.Error("LoadedAt() is zero")
	}

	if len(applied) != 1 || applied[0].Class != "Counter" {
		t.Errorf("applied events = %+v, want one for Counter", applied)
	}
	if got := testutil.ToFloat64(m.ManifestBuilds.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ApplicationsTotal.WithLabelValues("Audited")); got != 1 {
		t.Errorf("Audited applications = %v, want 1", got)
	}
}

func TestRuntime_LoadFreshRegistry(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roles.yaml", goodManifest)
	rt := NewRuntime(context.Background(), nil, nil, zerolog.Nop())

	first, err := rt.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := rt.Load(path)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	if first.Registry == second.Registry {
		t.Error("reload reused the registry")
	}
	r1, _ := first.Role("Audited")
	r2, _ := second.Role("Audited")
	if r1 == r2 {
		t.Error("reload reused role values")
	}
}

func TestRuntime_LoadBuildProblemsReplaceWorld(t *testing.T) {
	dir := t.TempDir()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rt := NewRuntime(context.Background(), nil, m, zerolog.Nop())

	if _, err := rt.Load(writeFile(t, dir, "good.yaml", goodManifest)); err != nil {
		t.Fatalf("Load(good) error = %v", err)
	}

	world, err := rt.Load(writeFile(t, dir, "broken.yaml", brokenManifest))
	var be *manifest.BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Load(broken) error = %v, want *manifest.BuildError", err)
	}
	if rt.World() != world {
		t.Error("world with build problems was not made current")
	}
	if got := testutil.ToFloat64(m.ManifestBuilds.WithLabelValues("error")); got != 1 {
		t.Errorf("error builds = %v, want 1", got)
	}
}

func TestRuntime_ReloadResetsRecordedRoles(t *testing.T) {
	dir := t.TempDir()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rt := NewRuntime(context.Background(), nil, m, zerolog.Nop())

	if _, err := rt.Load(writeFile(t, dir, "good.yaml", goodManifest)); err != nil {
		t.Fatalf("Load(good) error = %v", err)
	}
	if got := testutil.ToFloat64(m.RolesRecorded); got != 1 {
		t.Fatalf("roles_recorded = %v, want 1", got)
	}

	noApplications := "classes:\n  - name: Counter\nroles:\n  - name: Idle\n"
	if _, err := rt.Load(writeFile(t, dir, "idle.yaml", noApplications)); err != nil {
		t.Fatalf("Load(idle) error = %v", err)
	}
	if got := testutil.ToFloat64(m.RolesRecorded); got != 0 {
		t.Errorf("roles_recorded after reload = %v, want 0", got)
	}
}

func TestRuntime_ConcurrentLoads(t *testing.T) {
	dir := t.TempDir()
	rt := NewRuntime(context.Background(), nil, nil, zerolog.Nop())

	paths := make(map[string]string)
	for _, name := range []string{"Alpha", "Beta", "Gamma", "Delta"} {
		paths[name] = writeFile(t, dir, name+".yaml", "roles:\n  - name: "+name+"\n")
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		for _, path := range paths {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				if _, err := rt.Load(path); err != nil {
					t.Errorf("Load(%s) error = %v", path, err)
				}
			}(path)
		}
	}
	wg.Wait()

	// The current world must be the one built from the current path.
	world := rt.World()
	names := world.RoleNames()
	if len(names) != 1 || paths[names[0]] != rt.Path() {
		t.Errorf("world roles %v do not match path %s", names, rt.Path())
	}
}

func TestRuntime_LoadParseErrorKeepsWorld(t *testing.T) {
	dir := t.TempDir()
	rt := NewRuntime(context.Background(), nil, nil, zerolog.Nop())

	good, err := rt.Load(writeFile(t, dir, "good.yaml", goodManifest))
	if err != nil {
		t.Fatalf("Load(good) error = %v", err)
	}

	if _, err := rt.Load(writeFile(t, dir, "bad.yaml", "classes: [")); err == nil {
		t.Fatal("Load(bad) error = nil, want parse error")
	}
	if rt.World() != good {
		t.Error("parse failure replaced the current world")
	}
}

func TestNewLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestSetLogLevel_Unknown(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	SetLogLevel("loud")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("GlobalLevel() = %v, want info", zerolog.GlobalLevel())
	}
}

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Default(writeFile(t, dir, "roles.yaml", goodManifest))
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.Audit.Driver = driver
	cfg.Audit.DSN = filepath.Join(dir, "traits.db")
	cfg.Metrics.Enabled = true
	return cfg
}

func TestNew_RecordsApplications(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			a, err := New(testConfig(t, driver), zerolog.Nop())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer a.Shutdown()

			records, err := a.Store.List(context.Background(), 0)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(records) != 1 || records[0].Result != "Counter+Audited" {
				t.Errorf("records = %+v, want one Counter+Audited", records)
			}
		})
	}
}

func TestNew_AuditDisabled(t *testing.T) {
	a, err := New(testConfig(t, "none"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	if a.Store != nil {
		t.Error("Store should be nil with audit disabled")
	}
}

func TestNew_MissingManifest(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Manifest.Path = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("New() error = nil, want manifest error")
	}
}

func TestApp_ServesRoutes(t *testing.T) {
	a, err := New(testConfig(t, "memory"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/applications")
	if err != nil {
		t.Fatalf("GET /applications error = %v", err)
	}
	var apps []map[string]any
	json.NewDecoder(resp.Body).Decode(&apps)
	resp.Body.Close()
	if len(apps) != 1 {
		t.Errorf("applications = %v, want 1", apps)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), "traits_manifest_builds_total") {
		t.Errorf("metrics output missing manifest builds:\n%s", body.String())
	}
}

func TestApp_Reload(t *testing.T) {
	cfg := testConfig(t, "memory")
	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	before := a.Runtime.World()
	next := *cfg
	next.Logging.Level = "debug"
	if err := a.Reload(&next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if a.Runtime.World() == before {
		t.Error("Reload() did not rebuild the world")
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("GlobalLevel() = %v, want debug", zerolog.GlobalLevel())
	}

	records, _ := a.Store.List(context.Background(), 0)
	if len(records) != 2 {
		t.Errorf("records after reload = %d, want 2", len(records))
	}
}
