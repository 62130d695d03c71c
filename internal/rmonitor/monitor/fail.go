package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/category"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

// FailureKind classifies a failed attempt.
type FailureKind int

const (
	// FailureOther is not a resource failure.
	FailureOther FailureKind = iota
	FailureDiskExhausted
	FailureResourceOverflow
)

func (k FailureKind) String() string {
	switch k {
	case FailureDiskExhausted:
		return "disk_exhausted"
	case FailureResourceOverflow:
		return "resource_overflow"
	default:
		return "other"
	}
}

// Classify looks at the attempt's post-execution info. Disk exhaustion takes
// precedence over the overflow exit status.
func (c *Config) Classify(info *batch.Info) FailureKind {
	switch {
	case info == nil:
		return FailureOther
	case info.DiskAllocationExhausted:
		return FailureDiskExhausted
	case info.ExitCode == c.OverflowExitCode:
		return FailureResourceOverflow
	default:
		return FailureOther
	}
}

// NodeFail handles resource failures. Disk exhaustion is reported and left
// terminal. A limit overflow moves the node to a larger allocation and back
// to waiting, returning an error wrapping ErrResubmitted; when no larger
// allocation exists it returns ErrAllocationExhausted and leaves the node
// untouched. Any other failure is left to the engine and returns nil.
func (m *Monitor) NodeFail(ctx context.Context, n *dag.Node, t *batch.Task) error {
	cfg, err := m.config()
	if err != nil {
		return err
	}
	if n == nil || t == nil {
		return fmt.Errorf("resource monitor: node_fail needs a node and a task")
	}
	w := n.Workflow

	switch cfg.Classify(t.Info) {
	case FailureDiskExhausted:
		fmt.Fprintf(m.diag, "\nrule %d failed because it exceeded its disk allocation capacity.\n", n.ID)
		ev := map[string]any{
			"event":   "monitor_disk_exhausted",
			"node_id": n.ID,
			"task_id": t.ID,
		}
		if n.ResourcesMeasured != nil {
			if b, err := json.Marshal(n.ResourcesMeasured); err == nil {
				fmt.Fprintf(m.diag, "%s\n", b)
				ev["measured"] = json.RawMessage(b)
			}
		}
		w.AppendEvent(ev)
		return fmt.Errorf("rule %d: %w", n.ID, ErrDiskExhausted)

	case FailureResourceOverflow:
		ev := map[string]any{
			"event":     "monitor_resource_overflow",
			"node_id":   n.ID,
			"task_id":   t.ID,
			"exit_code": t.Info.ExitCode,
		}
		if n.ResourcesMeasured != nil && n.ResourcesMeasured.LimitsExceeded != nil {
			exceeded := n.ResourcesMeasured.LimitsExceeded.LimitsString()
			ev["limits_exceeded"] = exceeded
			m.debug(ctx, "rule exceeded its resource limits", "node_id", n.ID, "limits_exceeded", exceeded)
		} else {
			m.debug(ctx, "rule exceeded its resource limits", "node_id", n.ID)
		}
		w.AppendEvent(ev)

	default:
		return nil
	}

	current := n.ResourceRequest
	next := n.Category.NextLabel(current, true, n.ResourcesRequested, n.ResourcesMeasured)
	if next == category.LabelError {
		w.AppendEvent(map[string]any{
			"event":      "monitor_allocation_exhausted",
			"node_id":    n.ID,
			"category":   n.CategoryName(),
			"allocation": current.String(),
		})
		return fmt.Errorf("rule %d (%s): %w", n.ID, n.CategoryName(), ErrAllocationExhausted)
	}

	n.ResourceRequest = next
	w.LogNodeState(n, dag.NodeWaiting)
	w.AppendEvent(map[string]any{
		"event":    "monitor_resubmit",
		"node_id":  n.ID,
		"category": n.CategoryName(),
		"from":     current.String(),
		"to":       next.String(),
	})
	m.debug(ctx, "rule resubmitted using new resource allocation", "node_id", n.ID, "allocation", next.String())
	return fmt.Errorf("rule %d: %w (%s -> %s)", n.ID, ErrResubmitted, current, next)
}
