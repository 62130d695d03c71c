// Package batch describes single execution attempts handed to an execution
// backend and the capabilities a backend advertises.
package batch

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// FileMapping pairs a workflow-side path with the name the task sees.
type FileMapping struct {
	Outer string
	Inner string
}

// Info is filled in by the backend after the attempt finishes.
type Info struct {
	ExitCode                int
	ExitSignal              int
	DiskAllocationExhausted bool
}

// Task is one execution attempt of a node.
type Task struct {
	ID      string
	NodeID  int
	Command string
	Inputs  []FileMapping
	Outputs []FileMapping
	Info    *Info
}

func NewTask(nodeID int, command string) *Task {
	return &Task{
		ID:      strings.ToLower(ulid.Make().String()),
		NodeID:  nodeID,
		Command: command,
	}
}

func (t *Task) SetCommand(cmd string) {
	t.Command = cmd
}

// WrapCommand replaces the command with wrapper followed by the old command
// quoted as one shell word. The wrapper is used as given; nothing in it is
// substituted.
func (t *Task) WrapCommand(wrapper string) {
	t.Command = WrapCommand(t.Command, wrapper)
}

func WrapCommand(command, wrapper string) string {
	wrapper = strings.TrimSpace(wrapper)
	if wrapper == "" {
		return command
	}
	return wrapper + " " + ShellQuote(command)
}

// AddInput records an input mapping, ignoring exact duplicates.
func (t *Task) AddInput(outer, inner string) {
	t.Inputs = addMapping(t.Inputs, outer, inner)
}

func (t *Task) AddOutput(outer, inner string) {
	t.Outputs = addMapping(t.Outputs, outer, inner)
}

func addMapping(list []FileMapping, outer, inner string) []FileMapping {
	if strings.TrimSpace(inner) == "" {
		inner = outer
	}
	for _, m := range list {
		if m.Outer == outer && m.Inner == inner {
			return list
		}
	}
	return append(list, FileMapping{Outer: outer, Inner: inner})
}

// ShellQuote renders s as one POSIX shell word.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	switch r {
	case '-', '_', '.', '/', ':', '=', ',', '+', '@', '%':
		return false
	}
	return true
}
