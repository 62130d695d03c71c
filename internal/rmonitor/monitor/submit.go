package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

// NodeSubmit wraps the task's command with the probe and declares the files
// the probe will produce.
func (m *Monitor) NodeSubmit(ctx context.Context, n *dag.Node, t *batch.Task) error {
	cfg, err := m.config()
	if err != nil {
		return err
	}
	if n == nil || t == nil || n.Workflow == nil {
		return fmt.Errorf("resource monitor: node_submit needs a task and a node attached to a workflow")
	}
	w := n.Workflow
	q := w.QueueFor(n)

	executable := cfg.ProbeExecutable
	if batch.Supports(q, batch.FeatureRemoteRename) {
		w.AddInputFile(t, cfg.ProbeExecutable, cfg.ProbeExecutableRemoteName, dag.FileGlobal)
		executable = "./" + cfg.ProbeExecutableRemoteName
	} else {
		w.AddInputFile(t, cfg.ProbeExecutable, "", dag.FileGlobal)
	}

	prefix := m.prefixes.Resolve(n)
	for _, suffix := range cfg.artifactSuffixes() {
		w.AddOutputFile(t, prefix+suffix, "", dag.FileIntermediate)
	}

	out := outputPrefix(prefix, q)
	t.WrapCommand(cfg.probeCommand(executable, out, n))

	wrapper := batch.NewWrapper(wrapperPrefix).In(cfg.wrapperDir())
	wrapper.Cmd(t.Command)
	written, err := wrapper.Write(t)
	if err != nil {
		m.debug(ctx, "wrapper write failed", "node_id", n.ID, "error", err)
		return &WrapError{TaskID: t.ID, Err: err}
	}
	t.SetCommand(written.Path)
	remote := written.Path
	if batch.Supports(q, batch.FeatureRemoteRename) {
		remote = filepath.Base(written.Path)
	}
	f := w.AddInputFile(t, written.Path, remote, dag.FileTemp)
	w.LogFileState(f, dag.FileExists)
	w.AppendEvent(map[string]any{
		"event":      "monitor_wrapper_written",
		"node_id":    n.ID,
		"task_id":    t.ID,
		"path":       written.Path,
		"blake3":     written.Digest,
		"size_bytes": written.Size,
		"prefix":     prefix,
	})
	m.debug(ctx, "wrapper written", "node_id", n.ID, "path", written.Path)
	return nil
}

// probeCommand renders the probe invocation up to "sh -c"; the quoted original
// command is appended by batch.WrapCommand.
func (c *Config) probeCommand(executable, out string, n *dag.Node) string {
	args := []string{
		batch.ShellQuote(executable),
		"--no-pprint",
		fmt.Sprintf("--interval=%d", c.Interval),
		"--with-output-files=" + batch.ShellQuote(out),
	}
	if c.EnableDebug {
		args = append(args, "-dall", "-o", batch.ShellQuote(out+suffixDebug))
	}
	if c.EnableTimeSeries {
		args = append(args, "--with-time-series")
	}
	if c.EnableListFiles {
		args = append(args, "--with-inotify")
	}
	if limits := n.DynamicLimits(); !limits.Empty() {
		args = append(args, "-L", batch.ShellQuote(limits.LimitsString()))
	}
	args = append(args, "-V", batch.ShellQuote("category:"+n.CategoryName()))
	args = append(args, "--", "/bin/sh", "-c")
	return strings.Join(args, " ")
}
