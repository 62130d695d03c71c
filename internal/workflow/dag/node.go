package dag

import (
	"fmt"

	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
	"github.com/danshapiro/flowmon/internal/workflow/category"
)

type NodeState int

const (
	NodeWaiting NodeState = iota
	NodeRunning
	NodeComplete
	NodeFailed
	NodeAborted
)

func (s NodeState) String() string {
	switch s {
	case NodeWaiting:
		return "waiting"
	case NodeRunning:
		return "running"
	case NodeComplete:
		return "complete"
	case NodeFailed:
		return "failed"
	case NodeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("node_state(%d)", int(s))
	}
}

// Node is one schedulable unit of work.
type Node struct {
	ID       int
	Command  string
	Category *category.Category
	// Local nodes run on the workflow host instead of the remote queue.
	Local bool

	ResourceRequest    category.Label
	ResourcesRequested *summary.Summary
	ResourcesMeasured  *summary.Summary

	State NodeState

	Workflow *Workflow
}

func (n *Node) CategoryName() string {
	if n == nil || n.Category == nil {
		return category.DefaultName
	}
	return n.Category.Name
}

// DynamicLimits is the allocation the node should run under for its current
// request label.
func (n *Node) DynamicLimits() *summary.Summary {
	if n == nil {
		return nil
	}
	if n.Category == nil {
		return n.ResourcesRequested.Clone()
	}
	return n.Category.DynamicLimits(n.ResourceRequest, n.ResourcesRequested)
}
