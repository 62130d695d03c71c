package monitor

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

// NodeEnd reads the probe summary, records it on the node and its category,
// and moves flat outputs under the log directory. A missing or unreadable
// summary clears the node's measurement and is otherwise only logged.
func (m *Monitor) NodeEnd(ctx context.Context, n *dag.Node, t *batch.Task) error {
	cfg, err := m.config()
	if err != nil {
		return err
	}
	if n == nil || n.Workflow == nil {
		return fmt.Errorf("resource monitor: node_end without node or workflow")
	}
	w := n.Workflow
	q := w.QueueFor(n)
	prefix := m.prefixes.Resolve(n)
	summaryPath := cfg.path(outputPrefix(prefix, q) + suffixSummary)

	s, digest, err := readSummary(summaryPath)
	if err != nil {
		n.ResourcesMeasured = nil
		w.AppendEvent(map[string]any{
			"event":   "monitor_measurement_absent",
			"node_id": n.ID,
			"path":    summaryPath,
			"error":   fmt.Errorf("%w: %v", ErrMeasurementAbsent, err).Error(),
		})
		m.debug(ctx, "resource monitor failed to measure resources", "node_id", n.ID, "error", err)
		return nil
	}

	n.ResourcesMeasured = s
	if n.Category != nil {
		n.Category.Accumulate(s)
	}
	w.AppendEvent(map[string]any{
		"event":    "monitor_measurement_ingested",
		"node_id":  n.ID,
		"category": n.CategoryName(),
		"path":     summaryPath,
		"blake3":   digest,
		"limits":   s.LimitsString(),
	})
	m.publish(ctx, n, s)

	return m.relocate(ctx, cfg, n, prefix, q)
}

func readSummary(p string) (*summary.Summary, string, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, "", err
	}
	s, err := summary.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, "", err
	}
	sum := blake3.Sum256(b)
	return s, hex.EncodeToString(sum[:]), nil
}

// publish sends the measurement to the cross-run store, if one is set.
// Failures only produce a debug message.
func (m *Monitor) publish(ctx context.Context, n *dag.Node, s *summary.Summary) {
	if m.store == nil {
		return
	}
	if err := m.store.Merge(ctx, n.CategoryName(), s); err != nil {
		m.debug(ctx, "stats publish failed", "node_id", n.ID, "category", n.CategoryName(), "error", err)
	}
}
