package monitor

import (
	"path"
	"strconv"
	"strings"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

const (
	suffixSummary = ".summary"
	suffixSeries  = ".series"
	suffixFiles   = ".files"
	suffixDebug   = ".debug"
)

// PrefixResolver maps a node to the path prefix of its measurement files.
type PrefixResolver struct {
	Template string
}

// Resolve replaces every node id placeholder in the template with the node
// id. It depends only on the template and the id.
func (r PrefixResolver) Resolve(n *dag.Node) string {
	id := 0
	if n != nil {
		id = n.ID
	}
	return r.ResolveID(id)
}

func (r PrefixResolver) ResolveID(id int) string {
	return strings.ReplaceAll(r.Template, NodeIDPlaceholder, strconv.Itoa(id))
}

// outputPrefix is where the probe writes: the full prefix when the queue can
// create output directories, otherwise only its last path component.
func outputPrefix(prefix string, q batch.Queue) string {
	if batch.Supports(q, batch.FeatureOutputDirectories) {
		return prefix
	}
	return path.Base(prefix)
}

// artifactSuffixes lists the files the probe produces under the enabled
// options, summary first.
func (c *Config) artifactSuffixes() []string {
	out := []string{suffixSummary}
	if c.EnableTimeSeries {
		out = append(out, suffixSeries)
	}
	if c.EnableListFiles {
		out = append(out, suffixFiles)
	}
	if c.EnableDebug {
		out = append(out, suffixDebug)
	}
	return out
}
