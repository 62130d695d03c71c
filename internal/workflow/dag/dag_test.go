package dag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/category"
)

func TestEventLog_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.ndjson")
	log, err := OpenEventLog(path)
	if err != nil {
		t.Fatalf("OpenEventLog: %v", err)
	}
	var seen []map[string]any
	log.SetSink(func(ev map[string]any) { seen = append(seen, ev) })

	log.Append(map[string]any{"event": "a"})
	log.Append(map[string]any{"event": "b", "ts": "fixed"})
	log.Append(nil)

	evs, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(evs) != 2 || len(seen) != 2 {
		t.Fatalf("events on disk=%d sink=%d", len(evs), len(seen))
	}
	if evs[0]["event"] != "a" || evs[0]["ts"] == "" {
		t.Fatalf("first event: %+v", evs[0])
	}
	if evs[1]["ts"] != "fixed" {
		t.Fatalf("explicit ts overwritten: %+v", evs[1])
	}
}

func TestEventLog_NilAndMissing(t *testing.T) {
	var l *EventLog
	l.Append(map[string]any{"event": "dropped"})
	if l.Path() != "" {
		t.Fatalf("nil log has a path")
	}
	evs, err := ReadEvents(filepath.Join(t.TempDir(), "absent.ndjson"))
	if err != nil || evs != nil {
		t.Fatalf("missing log: evs=%v err=%v", evs, err)
	}
}

func TestReadEvents_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.ndjson")
	if err := os.WriteFile(path, []byte("{\"event\":\"ok\"}\nnot json\n\n{\"event\":\"ok2\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	evs, err := ReadEvents(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events", len(evs))
	}
}

func TestWorkflow_FilesAreTrackedOnce(t *testing.T) {
	w := New(batch.NewFeatures(), nil, nil)
	a := w.LookupOrCreateFile("logs", FileTemp)
	b := w.LookupOrCreateFile(" logs ", FileGlobal)
	if a != b {
		t.Fatalf("same name produced two files")
	}
	if b.Type != FileTemp {
		t.Fatalf("type changed on second lookup: %v", b.Type)
	}
	if got := w.Files(); len(got) != 1 || got[0] != "logs" {
		t.Fatalf("Files: %v", got)
	}
}

func TestWorkflow_AddInputAndOutputFiles(t *testing.T) {
	w := New(batch.NewFeatures(), nil, nil)
	task := batch.NewTask(4, "true")

	in := w.AddInputFile(task, "/opt/bin/resource_monitor", "cctools-monitor", FileGlobal)
	out := w.AddOutputFile(task, "logs/r-4.summary", "", FileIntermediate)

	if in.Type != FileGlobal || len(task.Inputs) != 1 || task.Inputs[0].Inner != "cctools-monitor" {
		t.Fatalf("input mapping: %+v %+v", in, task.Inputs)
	}
	if out.State != FileExpect {
		t.Fatalf("output state: %v", out.State)
	}
	if task.Outputs[0].Inner != "logs/r-4.summary" {
		t.Fatalf("output mapping: %+v", task.Outputs)
	}
	if _, ok := w.File("logs/r-4.summary"); !ok {
		t.Fatalf("output not tracked")
	}
}

func TestWorkflow_StateTransitionsAreLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.ndjson")
	log, err := OpenEventLog(path)
	if err != nil {
		t.Fatal(err)
	}
	w := New(batch.NewFeatures(), nil, log)
	n := w.AddNode(&Node{ID: 9, Category: category.New("align", category.ModeFixed)})
	f := w.LookupOrCreateFile("logs", FileTemp)

	w.LogFileState(f, FileExists)
	w.LogNodeState(n, NodeFailed)
	w.LogNodeState(n, NodeWaiting)

	if f.State != FileExists || n.State != NodeWaiting {
		t.Fatalf("states not applied: file=%v node=%v", f.State, n.State)
	}
	evs, err := ReadEvents(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d events", len(evs))
	}
	if evs[0]["event"] != "file_state" || evs[0]["state"] != "exists" || evs[0]["type"] != "temp" {
		t.Fatalf("file event: %+v", evs[0])
	}
	if evs[2]["event"] != "node_state" || evs[2]["from"] != "failed" || evs[2]["state"] != "waiting" || evs[2]["category"] != "align" {
		t.Fatalf("node event: %+v", evs[2])
	}
}

func TestWorkflow_QueueFor(t *testing.T) {
	remote := batch.NewFeatures(batch.FeatureRemoteRename)
	w := New(remote, nil, nil)
	if !batch.Supports(w.QueueFor(&Node{}), batch.FeatureRemoteRename) {
		t.Fatalf("remote node should use remote queue")
	}
	if !batch.Supports(w.QueueFor(&Node{Local: true}), batch.FeatureOutputDirectories) {
		t.Fatalf("local node should use local queue")
	}
}

func TestNode_DynamicLimitsWithoutCategory(t *testing.T) {
	n := &Node{}
	if n.CategoryName() != category.DefaultName {
		t.Fatalf("category name: %q", n.CategoryName())
	}
	if n.DynamicLimits() != nil {
		t.Fatalf("no request, no category: want nil limits")
	}
}
