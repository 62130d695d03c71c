package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/danshapiro/flowmon/internal/rmonitor/procutil"
	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/category"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

// isolatedLocator never consults PATH, the environment, or the test binary.
func isolatedLocator() procutil.Locator {
	return procutil.Locator{
		LookPath:   func(string) (string, error) { return "", errors.New("not on path") },
		Getenv:     func(string) string { return "" },
		Executable: func() (string, error) { return "", errors.New("unknown") },
	}
}

func writeProbe(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "resource_monitor")
	if err := os.WriteFile(p, []byte("#!/bin/sh\nexec \"$@\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

type fixture struct {
	m     *Monitor
	cfg   *Config
	work  string
	probe string
	diag  *bytes.Buffer
	wf    *dag.Workflow

	mu     sync.Mutex
	events []map[string]any
}

// newFixture creates a monitor whose log dir is "logs" under a temp work
// dir, and a workflow whose remote queue advertises features.
func newFixture(t *testing.T, features batch.Features, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{work: t.TempDir(), probe: writeProbe(t), diag: &bytes.Buffer{}}
	opts := &Options{LogDir: "logs", ProbePath: f.probe, WorkDir: f.work}
	if mutate != nil {
		mutate(opts)
	}
	f.m = New(WithLocator(isolatedLocator()), WithDiagnostics(f.diag))
	if err := f.m.CreateFromOptions(opts); err != nil {
		t.Fatalf("CreateFromOptions: %v", err)
	}
	f.cfg = f.m.Config()

	log, err := dag.OpenEventLog("")
	if err != nil {
		t.Fatal(err)
	}
	log.SetSink(func(ev map[string]any) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	})
	if features == nil {
		features = batch.NewFeatures()
	}
	f.wf = dag.New(features, nil, log)
	return f
}

func (f *fixture) node(id int, cat *category.Category) *dag.Node {
	return f.wf.AddNode(&dag.Node{ID: id, Category: cat})
}

func (f *fixture) eventsNamed(name string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, ev := range f.events {
		if ev["event"] == name {
			out = append(out, ev)
		}
	}
	return out
}

// writeWork writes a file relative to the work dir, creating parents.
func (f *fixture) writeWork(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.work, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(f.work, rel))
	return err == nil
}

func summaryJSON(memMB float64) string {
	return `{"category":"align","exit_type":"normal","exit_status":0,"wall_time":[3,"s"],"memory":[` +
		strconv.FormatFloat(memMB, 'f', -1, 64) + `,"MB"],"cores":[1,"cores"]}`
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled just
// before the test's cleanup functions run.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
