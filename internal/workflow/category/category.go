// Package category groups nodes that share a resource allocation policy and
// accumulates their measured usage.
package category

import (
	"fmt"
	"strings"
	"sync"

	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
)

// DefaultName is used for nodes that were never assigned a category.
const DefaultName = "default"

// Label identifies which allocation a node is currently requesting.
type Label int

const (
	LabelFirst Label = iota
	LabelMax
	// LabelError means no further escalation is possible.
	LabelError
)

func (l Label) String() string {
	switch l {
	case LabelFirst:
		return "first"
	case LabelMax:
		return "max"
	case LabelError:
		return "error"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

type Mode string

const (
	ModeFixed         Mode = "fixed"
	ModeMax           Mode = "max"
	ModeMinWaste      Mode = "min_waste"
	ModeMaxThroughput Mode = "max_throughput"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return ModeFixed, nil
	case "max":
		return ModeMax, nil
	case "min_waste", "min-waste":
		return ModeMinWaste, nil
	case "max_throughput", "max-throughput":
		return ModeMaxThroughput, nil
	default:
		return "", fmt.Errorf("invalid allocation mode %q (want fixed|max|min_waste|max_throughput)", s)
	}
}

// Category is shared by every node of the same class. Its statistics may be
// merged from concurrent callbacks.
type Category struct {
	Name string
	Mode Mode

	// MaxAllocation is the declared ceiling; nil or missing resources are
	// unbounded.
	MaxAllocation *summary.Summary
	// FirstAllocation is the declared initial request, if any.
	FirstAllocation *summary.Summary

	mu    sync.Mutex
	stats Stats
}

func New(name string, mode Mode) *Category {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if mode == "" {
		mode = ModeFixed
	}
	return &Category{Name: name, Mode: mode, stats: NewStats()}
}

// Accumulate merges one measurement into the running statistics.
func (c *Category) Accumulate(s *summary.Summary) {
	if c == nil || s == nil {
		return
	}
	c.mu.Lock()
	c.stats.Add(s)
	c.mu.Unlock()
}

// Snapshot returns a copy of the statistics gathered so far.
func (c *Category) Snapshot() Stats {
	if c == nil {
		return NewStats()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Clone()
}

// Allocation returns the resources a node labeled l should request. A nil
// result means unbounded.
func (c *Category) Allocation(l Label) *summary.Summary {
	if c == nil {
		return nil
	}
	switch l {
	case LabelMax:
		return c.MaxAllocation.Clone()
	case LabelFirst:
		if c.Mode == ModeFixed {
			if c.FirstAllocation != nil {
				return c.FirstAllocation.Clone()
			}
			return c.MaxAllocation.Clone()
		}
		snap := c.Snapshot()
		if snap.Count == 0 {
			if c.FirstAllocation != nil {
				return c.FirstAllocation.Clone()
			}
			return c.MaxAllocation.Clone()
		}
		first := snap.Peak()
		if c.MaxAllocation != nil {
			for r, ceiling := range c.MaxAllocation.Values {
				if v, ok := first.Get(r); !ok || v > ceiling {
					first.Set(r, ceiling)
				}
			}
		}
		return first
	default:
		return nil
	}
}

// DynamicLimits combines the allocation for l with the node's own explicit
// requests, which always win.
func (c *Category) DynamicLimits(l Label, requested *summary.Summary) *summary.Summary {
	out := c.Allocation(l)
	if requested.Empty() {
		return out
	}
	if out == nil {
		out = summary.New()
	}
	out.Override(requested)
	return out
}

// NextLabel decides the allocation to retry with after a failure. It returns
// LabelError when escalation is exhausted.
func (c *Category) NextLabel(current Label, overflow bool, requested, measured *summary.Summary) Label {
	if !overflow {
		return current
	}
	if c == nil || c.Mode == ModeFixed {
		return LabelError
	}
	if current == LabelMax || current == LabelError {
		return LabelError
	}
	ceiling := c.MaxAllocation.Clone()
	if !requested.Empty() {
		if ceiling == nil {
			ceiling = summary.New()
		}
		ceiling.MergeMax(requested)
	}
	if ceiling != nil && len(measured.Exceeding(ceiling)) > 0 {
		return LabelError
	}
	return LabelMax
}
