package monitor

import (
	"context"
	"os"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

// relocate moves the probe outputs from their flat names in the working
// directory to the log prefix. Queues that write into directories already
// put them there.
func (m *Monitor) relocate(ctx context.Context, cfg *Config, n *dag.Node, prefix string, q batch.Queue) error {
	if batch.Supports(q, batch.FeatureOutputDirectories) {
		return nil
	}
	flat := outputPrefix(prefix, q)
	if flat == prefix {
		return nil
	}
	for _, suffix := range cfg.artifactSuffixes() {
		from := cfg.path(flat + suffix)
		to := cfg.path(prefix + suffix)
		if err := os.Rename(from, to); err != nil {
			n.Workflow.AppendEvent(map[string]any{
				"event":   "monitor_relocate_failed",
				"node_id": n.ID,
				"from":    from,
				"to":      to,
				"error":   err.Error(),
			})
			m.debug(ctx, "error moving resource monitor output", "from", from, "to", to, "error", err)
			return &EnvironmentError{Op: "rename", Path: from, Err: err}
		}
		n.Workflow.AppendEvent(map[string]any{
			"event":   "monitor_output_relocated",
			"node_id": n.ID,
			"from":    from,
			"to":      to,
		})
	}
	return nil
}
