// Package statstore publishes per-category measurement statistics beyond a
// single workflow run.
package statstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
	"github.com/danshapiro/flowmon/internal/workflow/category"
)

// Store merges measurements into shared per-category statistics. Merge must
// be atomic with respect to concurrent writers of the same category.
type Store interface {
	Merge(ctx context.Context, categoryName string, m *summary.Summary) error
	Load(ctx context.Context, categoryName string) (category.Stats, error)
	Close() error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	stats map[string]category.Stats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: map[string]category.Stats{}}
}

func (s *MemoryStore) Merge(_ context.Context, name string, m *summary.Summary) error {
	if m == nil {
		return nil
	}
	name = normalizeName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[name]
	if !ok {
		st = category.NewStats()
	}
	st.Add(m)
	s.stats[name] = st
	return nil
}

func (s *MemoryStore) Load(_ context.Context, name string) (category.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[normalizeName(name)]
	if !ok {
		return category.NewStats(), nil
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Close() error { return nil }

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return category.DefaultName
	}
	return name
}

func encodeStats(st category.Stats) ([]byte, error) {
	return json.Marshal(st)
}

func decodeStats(b []byte) (category.Stats, error) {
	st := category.NewStats()
	if len(strings.TrimSpace(string(b))) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return category.Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	// Merge into a fresh value so absent maps decode as empty.
	out := category.NewStats()
	out.Merge(st)
	return out, nil
}
