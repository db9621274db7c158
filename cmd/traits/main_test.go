package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/artpar/traits/bootstrap"
	"github.com/artpar/traits/config"
)

const sampleManifest = `
classes:
  - name: Counter
    methods: {increment: counter.increment}
roles:
  - name: Traced
    around: {increment: [span]}
  - name: Audited
    with: [Traced]
    before: {increment: [audit]}
    after: {increment: [flush]}
applications:
  - name: AuditedCounter
    class: Counter
    roles: [Audited]
`

const conflictManifest = `
classes:
  - name: Counter
roles:
  - name: A
    methods: {name: a.name}
  - name: B
    methods: {name: b.name}
applications:
  - name: Both
    class: Counter
    roles: [A, B]
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	checkFormat, checkNoHeader, verbose = "table", false, false

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheck_Table(t *testing.T) {
	out, err := run(t, "check", writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("check error = %v\n%s", err, out)
	}

	for _, want := range []string{"KIND", "AuditedCounter", "Counter+Audited"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "error") {
		t.Errorf("unexpected error row:\n%s", out)
	}
}

func TestCheck_JSONReportsConflict(t *testing.T) {
	out, err := run(t, "check", writeManifest(t, conflictManifest), "--format", "json")
	if err == nil {
		t.Fatal("check error = nil, want problem count")
	}
	if !strings.Contains(err.Error(), "1 problem(s)") {
		t.Errorf("error = %v, want 1 problem(s)", err)
	}

	var doc struct {
		Count int              `json:"count"`
		Data  []map[string]any `json:"data"`
	}
	if jerr := json.Unmarshal([]byte(out), &doc); jerr != nil {
		t.Fatalf("output is not JSON: %v\n%s", jerr, out)
	}
	if doc.Count != len(doc.Data) {
		t.Errorf("count = %d, rows = %d", doc.Count, len(doc.Data))
	}

	var found bool
	for _, row := range doc.Data {
		if row["name"] == "Both" {
			found = true
			if row["status"] != "error" {
				t.Errorf("Both status = %v, want error", row["status"])
			}
			if detail, _ := row["detail"].(string); !strings.Contains(detail, "conflicting methods: name") {
				t.Errorf("Both detail = %q, want conflict on name", detail)
			}
		}
	}
	if !found {
		t.Errorf("no row for Both:\n%s", out)
	}
}

func TestCheck_UnknownFormat(t *testing.T) {
	_, err := run(t, "check", writeManifest(t, sampleManifest), "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("check error = %v, want unknown format", err)
	}
}

func TestCheck_MissingFile(t *testing.T) {
	if _, err := run(t, "check", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("check error = nil, want load error")
	}
}

func TestTrace(t *testing.T) {
	out, err := run(t, "trace", writeManifest(t, sampleManifest), "AuditedCounter", "increment")
	if err != nil {
		t.Fatalf("trace error = %v\n%s", err, out)
	}

	want := []string{"audit", "span:enter", "counter.increment", "span:exit", "flush"}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(want)+1 {
		t.Fatalf("trace output = %q, want %d steps and a result", out, len(want))
	}
	for i, step := range want {
		if !strings.HasSuffix(lines[i], " "+step) {
			t.Errorf("step %d = %q, want %q", i+1, lines[i], step)
		}
	}
	if lines[len(lines)-1] != "=> counter.increment" {
		t.Errorf("result line = %q", lines[len(lines)-1])
	}
}

func TestTrace_NoMethod(t *testing.T) {
	_, err := run(t, "trace", writeManifest(t, sampleManifest), "Counter", "audit")
	if err == nil || !strings.Contains(err.Error(), "no such method") {
		t.Errorf("trace error = %v, want no such method", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "traits dev") {
		t.Errorf("version output = %q", out)
	}
}

const extendedManifest = `
classes:
  - name: Counter
    methods: {increment: counter.increment}
roles:
  - name: Audited
    before: {increment: [audit]}
  - name: Extra
    methods: {extra: extra.run}
`

func waitForRole(t *testing.T, a *bootstrap.App, name string) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.Runtime.World().Role(name); ok {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func prepareWithoutConfig(t *testing.T, watch bool, args ...string) (*bootstrap.App, *config.Holder) {
	t.Helper()
	oldCfg, oldWatch := cfgFile, serveWatch
	t.Cleanup(func() { cfgFile, serveWatch = oldCfg, oldWatch })

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	serveWatch = watch

	a, holder, err := prepareServe(args)
	if err != nil {
		t.Fatalf("prepareServe() error = %v", err)
	}
	t.Cleanup(func() {
		holder.Stop()
		a.Shutdown()
	})
	return a, holder
}

func TestPrepareServe_NoConfigWatchesManifest(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	a, _ := prepareWithoutConfig(t, true, path)

	if _, ok := a.Runtime.World().Role("Audited"); !ok {
		t.Fatal("manifest argument was not loaded")
	}

	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(extendedManifest), 0644); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}
	if !waitForRole(t, a, "Extra") {
		t.Error("manifest change was not picked up with --watch")
	}
}

func TestPrepareServe_NoConfigReloadsOnSIGHUP(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	a, _ := prepareWithoutConfig(t, false, path)

	if err := os.WriteFile(path, []byte(extendedManifest), 0644); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}
	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("send SIGHUP: %v", err)
	}
	if !waitForRole(t, a, "Extra") {
		t.Error("SIGHUP did not rebuild the manifest")
	}
}

func TestPrepareServe_NoConfigNoManifest(t *testing.T) {
	oldCfg := cfgFile
	defer func() { cfgFile = oldCfg }()
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, _, err := prepareServe(nil)
	if err == nil || !strings.Contains(err.Error(), "manifest.path is required") {
		t.Errorf("prepareServe() error = %v, want manifest.path is required", err)
	}
}

func TestPrepareServe_ConfigWithManifestArgument(t *testing.T) {
	dir := t.TempDir()
	configured := filepath.Join(dir, "configured.yaml")
	if err := os.WriteFile(configured, []byte(sampleManifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	cfgPath := filepath.Join(dir, "traits.yaml")
	if err := os.WriteFile(cfgPath, []byte("manifest:\n  path: configured.yaml\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	oldCfg, oldWatch := cfgFile, serveWatch
	defer func() { cfgFile, serveWatch = oldCfg, oldWatch }()
	cfgFile, serveWatch = cfgPath, true

	override := writeManifest(t, sampleManifest)
	a, holder, err := prepareServe([]string{override})
	if err != nil {
		t.Fatalf("prepareServe() error = %v", err)
	}
	defer a.Shutdown()
	defer holder.Stop()

	if a.Runtime.Path() != override {
		t.Fatalf("serving %s, want %s", a.Runtime.Path(), override)
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(override, []byte(extendedManifest), 0644); err != nil {
		t.Fatalf("rewrite manifest: %v", err)
	}
	if !waitForRole(t, a, "Extra") {
		t.Error("change to the manifest argument was not picked up")
	}
}
