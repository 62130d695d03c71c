package category

import (
	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
)

// Stats is the running aggregate of measurements for one category.
type Stats struct {
	Count int `json:"count"`

	// N counts the measurements that reported each resource.
	N   map[summary.Resource]int     `json:"n"`
	Sum map[summary.Resource]float64 `json:"sum"`
	Max map[summary.Resource]float64 `json:"max"`
	Min map[summary.Resource]float64 `json:"min"`
}

func NewStats() Stats {
	return Stats{
		N:   map[summary.Resource]int{},
		Sum: map[summary.Resource]float64{},
		Max: map[summary.Resource]float64{},
		Min: map[summary.Resource]float64{},
	}
}

func (s *Stats) init() {
	if s.N == nil {
		s.N = map[summary.Resource]int{}
	}
	if s.Sum == nil {
		s.Sum = map[summary.Resource]float64{}
	}
	if s.Max == nil {
		s.Max = map[summary.Resource]float64{}
	}
	if s.Min == nil {
		s.Min = map[summary.Resource]float64{}
	}
}

// Add folds one measurement into s.
func (s *Stats) Add(m *summary.Summary) {
	if m == nil {
		return
	}
	s.init()
	s.Count++
	for r, v := range m.Values {
		s.N[r]++
		s.Sum[r] += v
		if cur, ok := s.Max[r]; !ok || v > cur {
			s.Max[r] = v
		}
		if cur, ok := s.Min[r]; !ok || v < cur {
			s.Min[r] = v
		}
	}
}

// Merge folds another aggregate into s.
func (s *Stats) Merge(o Stats) {
	s.init()
	s.Count += o.Count
	for r, n := range o.N {
		s.N[r] += n
	}
	for r, v := range o.Sum {
		s.Sum[r] += v
	}
	for r, v := range o.Max {
		if cur, ok := s.Max[r]; !ok || v > cur {
			s.Max[r] = v
		}
	}
	for r, v := range o.Min {
		if cur, ok := s.Min[r]; !ok || v < cur {
			s.Min[r] = v
		}
	}
}

func (s Stats) Clone() Stats {
	out := NewStats()
	out.Count = s.Count
	for r, n := range s.N {
		out.N[r] = n
	}
	for r, v := range s.Sum {
		out.Sum[r] = v
	}
	for r, v := range s.Max {
		out.Max[r] = v
	}
	for r, v := range s.Min {
		out.Min[r] = v
	}
	return out
}

// Mean returns the average of r over the measurements that reported it.
func (s Stats) Mean(r summary.Resource) float64 {
	n := s.N[r]
	if n == 0 {
		return 0
	}
	return s.Sum[r] / float64(n)
}

// Peak returns the largest value seen for every resource.
func (s Stats) Peak() *summary.Summary {
	out := summary.New()
	for r, v := range s.Max {
		out.Set(r, v)
	}
	return out
}
