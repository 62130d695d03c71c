// Package summary models the resource usage report produced by the resource
// monitor probe for a single command execution.
package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Resource names a measured quantity in a probe summary.
type Resource string

const (
	WallTime               Resource = "wall_time"
	CPUTime                Resource = "cpu_time"
	Cores                  Resource = "cores"
	CoresAvg               Resource = "cores_avg"
	GPUs                   Resource = "gpus"
	Memory                 Resource = "memory"
	VirtualMemory          Resource = "virtual_memory"
	SwapMemory             Resource = "swap_memory"
	Disk                   Resource = "disk"
	BytesRead              Resource = "bytes_read"
	BytesWritten           Resource = "bytes_written"
	BytesReceived          Resource = "bytes_received"
	BytesSent              Resource = "bytes_sent"
	Bandwidth              Resource = "bandwidth"
	TotalFiles             Resource = "total_files"
	MaxConcurrentProcesses Resource = "max_concurrent_processes"
	TotalProcesses         Resource = "total_processes"
	MachineCPUs            Resource = "machine_cpus"
	MachineLoad            Resource = "machine_load"
)

// Resources lists every known resource in report order.
var Resources = []Resource{
	WallTime,
	CPUTime,
	Cores,
	CoresAvg,
	GPUs,
	Memory,
	VirtualMemory,
	SwapMemory,
	Disk,
	BytesRead,
	BytesWritten,
	BytesReceived,
	BytesSent,
	Bandwidth,
	TotalFiles,
	MaxConcurrentProcesses,
	TotalProcesses,
	MachineCPUs,
	MachineLoad,
}

// Unit returns the canonical unit values of r are stored in.
func (r Resource) Unit() string {
	switch unitClassOf(r) {
	case classSize:
		return "MB"
	case classTime:
		return "s"
	case classRate:
		return "Mbps"
	}
	switch r {
	case Cores, CoresAvg, MachineCPUs:
		return "cores"
	case GPUs:
		return "gpus"
	case TotalFiles:
		return "files"
	case MaxConcurrentProcesses, TotalProcesses, MachineLoad:
		return "procs"
	}
	return ""
}

func (r Resource) Known() bool {
	for _, k := range Resources {
		if k == r {
			return true
		}
	}
	return false
}

// Summary is a parsed measurement. Values are in canonical units. A nil
// LimitsExceeded means the probe reported no overflow.
type Summary struct {
	Category   string
	Command    string
	ExitType   string
	ExitStatus int
	Host       string

	Values map[Resource]float64

	LimitsExceeded *Summary
}

func New() *Summary {
	return &Summary{Values: map[Resource]float64{}}
}

func (s *Summary) Get(r Resource) (float64, bool) {
	if s == nil || s.Values == nil {
		return 0, false
	}
	v, ok := s.Values[r]
	return v, ok
}

func (s *Summary) Set(r Resource, v float64) {
	if s.Values == nil {
		s.Values = map[Resource]float64{}
	}
	s.Values[r] = v
}

func (s *Summary) Empty() bool {
	return s == nil || len(s.Values) == 0
}

func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	out := *s
	out.Values = make(map[Resource]float64, len(s.Values))
	for k, v := range s.Values {
		out.Values[k] = v
	}
	out.LimitsExceeded = s.LimitsExceeded.Clone()
	return &out
}

// MergeMax raises every value in s to at least the matching value in o.
func (s *Summary) MergeMax(o *Summary) {
	if s == nil || o == nil {
		return
	}
	for r, v := range o.Values {
		if cur, ok := s.Get(r); !ok || v > cur {
			s.Set(r, v)
		}
	}
}

// Override replaces values of s with those present in o.
func (s *Summary) Override(o *Summary) {
	if s == nil || o == nil {
		return
	}
	for r, v := range o.Values {
		s.Set(r, v)
	}
}

// Exceeding returns the resources whose value in s is above the value set in
// limits. Resources absent from limits are unbounded.
func (s *Summary) Exceeding(limits *Summary) []Resource {
	if s == nil || limits == nil {
		return nil
	}
	var out []Resource
	for _, r := range Resources {
		v, ok := s.Get(r)
		if !ok {
			continue
		}
		lim, ok := limits.Get(r)
		if !ok || lim <= 0 {
			continue
		}
		if v > lim {
			out = append(out, r)
		}
	}
	return out
}

// LimitsString renders values as "cores: 1, memory: 512" in report order,
// the syntax the probe accepts for -L.
func (s *Summary) LimitsString() string {
	if s.Empty() {
		return ""
	}
	parts := make([]string, 0, len(s.Values))
	for _, r := range s.orderedKeys() {
		parts = append(parts, fmt.Sprintf("%s: %s", r, formatValue(s.Values[r])))
	}
	return strings.Join(parts, ", ")
}

func (s *Summary) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return s.LimitsString()
	}
	return string(b)
}

// MarshalJSON writes s in the probe's own format: every measured value is a
// [value, "unit"] pair.
func (s *Summary) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	doc := map[string]any{}
	if s.Category != "" {
		doc["category"] = s.Category
	}
	if s.Command != "" {
		doc["command"] = s.Command
	}
	if s.ExitType != "" {
		doc["exit_type"] = s.ExitType
		doc["exit_status"] = s.ExitStatus
	}
	if s.Host != "" {
		doc["host"] = s.Host
	}
	for r, v := range s.Values {
		doc[string(r)] = []any{v, r.Unit()}
	}
	if s.LimitsExceeded != nil {
		doc["limits_exceeded"] = s.LimitsExceeded
	}
	return json.Marshal(doc)
}

func (s *Summary) orderedKeys() []Resource {
	keys := make([]Resource, 0, len(s.Values))
	for _, r := range Resources {
		if _, ok := s.Values[r]; ok {
			keys = append(keys, r)
		}
	}
	var extra []Resource
	for r := range s.Values {
		if !r.Known() {
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(keys, extra...)
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
