// Package hook defines the lifecycle listener interface the workflow engine
// drives, and a chain that dispatches each callback to every registered
// listener in registration order.
package hook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danshapiro/flowmon/internal/workflow/batch"
	"github.com/danshapiro/flowmon/internal/workflow/dag"
)

// Listener receives workflow lifecycle callbacks. A callback returns nil on
// success; StatusOf classifies any other error.
type Listener interface {
	Name() string
	Create(args Args) error
	Destroy() error
	DagStart(ctx context.Context, w *dag.Workflow) error
	NodeSubmit(ctx context.Context, n *dag.Node, t *batch.Task) error
	NodeEnd(ctx context.Context, n *dag.Node, t *batch.Task) error
	NodeFail(ctx context.Context, n *dag.Node, t *batch.Task) error
}

// Chain holds the listeners registered for a run.
type Chain struct {
	listeners []Listener
}

func (c *Chain) Register(l Listener) {
	if l == nil {
		return
	}
	c.listeners = append(c.listeners, l)
}

// Names returns the registered listener names in dispatch order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l.Name())
	}
	return out
}

func (c *Chain) Create(args Args) error {
	return c.each(func(l Listener) error { return l.Create(args) })
}

// Destroy calls every listener, even after a failure.
func (c *Chain) Destroy() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, l := range c.listeners {
		if err := l.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) DagStart(ctx context.Context, w *dag.Workflow) error {
	return c.each(func(l Listener) error { return l.DagStart(ctx, w) })
}

func (c *Chain) NodeSubmit(ctx context.Context, n *dag.Node, t *batch.Task) error {
	return c.each(func(l Listener) error { return l.NodeSubmit(ctx, n, t) })
}

func (c *Chain) NodeEnd(ctx context.Context, n *dag.Node, t *batch.Task) error {
	return c.each(func(l Listener) error { return l.NodeEnd(ctx, n, t) })
}

func (c *Chain) NodeFail(ctx context.Context, n *dag.Node, t *batch.Task) error {
	return c.each(func(l Listener) error { return l.NodeFail(ctx, n, t) })
}

// each runs fn for every listener. Node-local failures are collected and the
// remaining listeners still run; a fatal error stops dispatch immediately.
func (c *Chain) each(fn func(Listener) error) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, l := range c.listeners {
		err := fn(l)
		if err == nil {
			continue
		}
		name := strings.TrimSpace(l.Name())
		if name == "" {
			name = fmt.Sprintf("%T", l)
		}
		err = fmt.Errorf("%s: %w", name, err)
		if StatusOf(err) == Fatal {
			return errors.Join(append(errs, err)...)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
