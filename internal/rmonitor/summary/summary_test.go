package summary

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSummary = `{
  "executable_type": "dynamic",
  "category": "align",
  "command": "bwa mem ref.fa reads.fq",
  "exit_type": "limits",
  "exit_status": 0,
  "host": "worker-3",
  "wall_time": [2500, "ms"],
  "cpu_time": [1.75, "s"],
  "cores": [2, "cores"],
  "memory": [2, "GB"],
  "virtual_memory": [4096, "MB"],
  "disk": [512, "KB"],
  "bandwidth": [8, "Mbps"],
  "total_files": 12,
  "peak_times": {"memory": [1.2, "s"]},
  "limits_exceeded": {"memory": [1024, "MB"]}
}
{"category": "second-document-ignored"}
`

func TestParse_ConvertsUnitsAndLimits(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleSummary))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Category != "align" || s.Host != "worker-3" || s.ExitType != "limits" {
		t.Fatalf("metadata: %+v", s)
	}
	checks := map[Resource]float64{
		WallTime:      2.5,
		CPUTime:       1.75,
		Cores:         2,
		Memory:        2048,
		VirtualMemory: 4096,
		Disk:          0.5,
		Bandwidth:     8,
		TotalFiles:    12,
	}
	for r, want := range checks {
		got, ok := s.Get(r)
		if !ok || got != want {
			t.Errorf("%s: got %v (present=%v), want %v", r, got, ok, want)
		}
	}
	if s.LimitsExceeded == nil {
		t.Fatalf("expected limits_exceeded")
	}
	if v, _ := s.LimitsExceeded.Get(Memory); v != 1024 {
		t.Fatalf("limits_exceeded memory: %v", v)
	}
}

func TestParse_NullLimitsExceeded(t *testing.T) {
	s, err := Parse(strings.NewReader(`{"memory": [10, "MB"], "limits_exceeded": null}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.LimitsExceeded != nil {
		t.Fatalf("expected nil limits_exceeded, got %+v", s.LimitsExceeded)
	}
}

func TestParse_RejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not an object":       `[1, 2]`,
		"string measurement":  `{"memory": "lots"}`,
		"unit not a string":   `{"memory": [1, 2]}`,
		"exit not integer":    `{"exit_status": "zero"}`,
		"limits not object":   `{"limits_exceeded": 5}`,
		"too many components": `{"cores": [1, "cores", "extra"]}`,
	}
	for name, doc := range cases {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error for %s", name, doc)
		}
	}
}

func TestParse_UnknownUnitIsError(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"memory": [1, "furlongs"]}`))
	if err == nil || !strings.Contains(err.Error(), "furlongs") {
		t.Fatalf("expected unknown unit error, got %v", err)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse(strings.NewReader("  \n"))
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "absent.summary"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want not-exist", err)
	}
}

func TestMergeMaxAndExceeding(t *testing.T) {
	a := New()
	a.Set(Memory, 100)
	a.Set(Cores, 4)
	b := New()
	b.Set(Memory, 300)
	b.Set(Disk, 10)
	a.MergeMax(b)
	if v, _ := a.Get(Memory); v != 300 {
		t.Fatalf("memory: %v", v)
	}
	if v, _ := a.Get(Cores); v != 4 {
		t.Fatalf("cores: %v", v)
	}
	if v, _ := a.Get(Disk); v != 10 {
		t.Fatalf("disk: %v", v)
	}

	limits := New()
	limits.Set(Memory, 200)
	limits.Set(Cores, 8)
	got := a.Exceeding(limits)
	if len(got) != 1 || got[0] != Memory {
		t.Fatalf("exceeding: %v", got)
	}
}

func TestLimitsString_ReportOrder(t *testing.T) {
	s := New()
	s.Set(Memory, 512)
	s.Set(Cores, 1)
	s.Set(WallTime, 1.5)
	if got, want := s.LimitsString(), "wall_time: 1.5, cores: 1, memory: 512"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if New().LimitsString() != "" {
		t.Fatalf("empty summary should render empty limits")
	}
}

func TestMarshalJSON_RoundTripsThroughParse(t *testing.T) {
	s := New()
	s.Category = "sort"
	s.Set(Memory, 64)
	s.LimitsExceeded = New()
	s.LimitsExceeded.Set(Memory, 32)
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(strings.NewReader(string(b)))
	if err != nil {
		t.Fatalf("Parse(%s): %v", b, err)
	}
	if back.Category != "sort" {
		t.Fatalf("category: %q", back.Category)
	}
	if v, _ := back.LimitsExceeded.Get(Memory); v != 32 {
		t.Fatalf("limits: %v", v)
	}
}

func TestClone_IsDeep(t *testing.T) {
	s := New()
	s.Set(Memory, 1)
	s.LimitsExceeded = New()
	c := s.Clone()
	c.Set(Memory, 2)
	c.LimitsExceeded.Set(Disk, 3)
	if v, _ := s.Get(Memory); v != 1 {
		t.Fatalf("clone shares values")
	}
	if _, ok := s.LimitsExceeded.Get(Disk); ok {
		t.Fatalf("clone shares limits_exceeded")
	}
}

func TestCollect_FindsNestedSummaries(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"resource-rule-1.summary",
		"run-a/resource-rule-2.summary",
		"run-a/resource-rule-2.series",
		"run-b/deep/resource-rule-3.summary",
	} {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := Collect(root, "")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d matches: %v", len(got), got)
	}
	for _, p := range got {
		if !strings.HasSuffix(p, ".summary") || !strings.HasPrefix(p, root) {
			t.Fatalf("unexpected match %q", p)
		}
	}

	got, err = Collect(root, "run-a/*.summary")
	if err != nil || len(got) != 1 {
		t.Fatalf("narrow pattern: %v %v", got, err)
	}
	if _, err := Collect(root, "[unclosed"); err == nil {
		t.Fatalf("expected invalid pattern error")
	}
}
