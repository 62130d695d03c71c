package batch

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Wrapper accumulates shell lines into a small launcher script that becomes
// the task's command.
type Wrapper struct {
	prefix string
	dir    string
	lines  []string
}

func NewWrapper(prefix string) *Wrapper {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "wrapper"
	}
	return &Wrapper{prefix: prefix}
}

// In sets the directory the script is written to. The default is the
// current directory.
func (w *Wrapper) In(dir string) *Wrapper {
	w.dir = strings.TrimSpace(dir)
	return w
}

func (w *Wrapper) Cmd(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	w.lines = append(w.lines, line)
}

// WrittenWrapper describes a script on disk.
type WrittenWrapper struct {
	// Path is what the task should execute; relative scripts start with "./".
	Path string
	// Digest is the hex blake3 hash of the script contents.
	Digest string
	Size   int
}

// Render returns the script text.
func (w *Wrapper) Render() string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n")
	for _, l := range w.lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

// Write stores the script under a name unique to t.
func (w *Wrapper) Write(t *Task) (WrittenWrapper, error) {
	if t == nil {
		return WrittenWrapper{}, fmt.Errorf("batch wrapper: task is nil")
	}
	if len(w.lines) == 0 {
		return WrittenWrapper{}, fmt.Errorf("batch wrapper: no commands")
	}
	name := fmt.Sprintf("%s.%s.sh", w.prefix, t.ID)
	content := []byte(w.Render())

	onDisk := name
	if w.dir != "" {
		onDisk = filepath.Join(w.dir, name)
	}
	if err := os.WriteFile(onDisk, content, 0o755); err != nil {
		return WrittenWrapper{}, fmt.Errorf("batch wrapper: %w", err)
	}
	sum := blake3.Sum256(content)

	path := "./" + name
	if w.dir != "" && w.dir != "." {
		path = onDisk
	}
	return WrittenWrapper{
		Path:   path,
		Digest: hex.EncodeToString(sum[:]),
		Size:   len(content),
	}, nil
}
