package dag

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventLog appends one JSON object per line. A nil *EventLog drops events.
type EventLog struct {
	mu   sync.Mutex
	path string
	sink func(map[string]any)
}

// OpenEventLog prepares path for appending. An empty path keeps events in
// memory only (delivered to the sink).
func OpenEventLog(path string) (*EventLog, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
	}
	return &EventLog{path: path}, nil
}

func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// SetSink registers fn to receive every appended event.
func (l *EventLog) SetSink(fn func(map[string]any)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.sink = fn
	l.mu.Unlock()
}

// Append stamps ev with "ts" and writes it. Write failures are swallowed;
// the log is best-effort and must never fail a callback.
func (l *EventLog) Append(ev map[string]any) {
	if l == nil || len(ev) == 0 {
		return
	}
	out := make(map[string]any, len(ev)+1)
	for k, v := range ev {
		out[k] = v
	}
	if _, ok := out["ts"]; !ok {
		out["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path != "" {
		if b, err := json.Marshal(out); err == nil {
			if f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				_, _ = f.Write(append(b, '\n'))
				_ = f.Close()
			}
		}
	}
	if l.sink != nil {
		l.sink(out)
	}
}

// ReadEvents loads every event in an ndjson log, skipping malformed lines.
func ReadEvents(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
