// Package dag is the workflow model seen by lifecycle listeners: tracked
// files, nodes, queues, and the state log.
package dag

import (
	"sort"
	"strings"
	"sync"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
)

type Workflow struct {
	// RemoteQueue runs ordinary nodes; LocalQueue runs nodes marked Local.
	RemoteQueue batch.Queue
	LocalQueue  batch.Queue

	Log *EventLog

	mu    sync.Mutex
	files map[string]*File
	nodes map[int]*Node
}

func New(remote, local batch.Queue, log *EventLog) *Workflow {
	if local == nil {
		local = batch.NewFeatures(batch.FeatureOutputDirectories)
	}
	return &Workflow{
		RemoteQueue: remote,
		LocalQueue:  local,
		Log:         log,
		files:       map[string]*File{},
		nodes:       map[int]*Node{},
	}
}

// AddNode attaches n to w, replacing any node with the same id.
func (w *Workflow) AddNode(n *Node) *Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.nodes == nil {
		w.nodes = map[int]*Node{}
	}
	n.Workflow = w
	w.nodes[n.ID] = n
	return n
}

func (w *Workflow) Node(id int) (*Node, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.nodes[id]
	return n, ok
}

// QueueFor returns the queue n runs on.
func (w *Workflow) QueueFor(n *Node) batch.Queue {
	if w == nil {
		return nil
	}
	if n != nil && n.Local {
		return w.LocalQueue
	}
	return w.RemoteQueue
}

// LookupOrCreateFile returns the tracked file for name, creating it with typ
// when it is not tracked yet.
func (w *Workflow) LookupOrCreateFile(name string, typ FileType) *File {
	name = strings.TrimSpace(name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files == nil {
		w.files = map[string]*File{}
	}
	if f, ok := w.files[name]; ok {
		return f
	}
	f := &File{Filename: name, Type: typ}
	w.files[name] = f
	return f
}

func (w *Workflow) File(name string) (*File, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.files[strings.TrimSpace(name)]
	return f, ok
}

// Files returns the tracked filenames, sorted.
func (w *Workflow) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for name := range w.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddInputFile tracks local and maps it into t as remote (or local when
// remote is empty).
func (w *Workflow) AddInputFile(t *batch.Task, local, remote string, typ FileType) *File {
	f := w.LookupOrCreateFile(local, typ)
	if t != nil {
		t.AddInput(f.Filename, remote)
	}
	return f
}

func (w *Workflow) AddOutputFile(t *batch.Task, local, remote string, typ FileType) *File {
	f := w.LookupOrCreateFile(local, typ)
	if t != nil {
		t.AddOutput(f.Filename, remote)
	}
	w.mu.Lock()
	if f.State == FileUnknown {
		f.State = FileExpect
	}
	w.mu.Unlock()
	return f
}

// LogFileState records a file transition in the state log.
func (w *Workflow) LogFileState(f *File, st FileState) {
	if w == nil || f == nil {
		return
	}
	w.mu.Lock()
	f.State = st
	w.mu.Unlock()
	w.Log.Append(map[string]any{
		"event": "file_state",
		"file":  f.Filename,
		"type":  f.Type.String(),
		"state": st.String(),
	})
}

// LogNodeState records a node transition in the state log.
func (w *Workflow) LogNodeState(n *Node, st NodeState) {
	if n == nil {
		return
	}
	prev := n.State
	n.State = st
	if w == nil {
		return
	}
	w.Log.Append(map[string]any{
		"event":      "node_state",
		"node_id":    n.ID,
		"category":   n.CategoryName(),
		"from":       prev.String(),
		"state":      st.String(),
		"allocation": n.ResourceRequest.String(),
	})
}

// AppendEvent writes an arbitrary event to the state log.
func (w *Workflow) AppendEvent(ev map[string]any) {
	if w == nil {
		return
	}
	w.Log.Append(ev)
}
