package batch

import "strings"

// Feature is a named capability an execution backend may support.
type Feature string

const (
	// FeatureRemoteRename means inputs can be placed under a different name
	// in the task's sandbox.
	FeatureRemoteRename Feature = "remote_rename"
	// FeatureOutputDirectories means outputs can be written into nested
	// directories directly.
	FeatureOutputDirectories Feature = "output_directories"
)

type Queue interface {
	SupportsFeature(f Feature) bool
}

// Features is a static capability set.
type Features map[Feature]bool

func NewFeatures(fs ...Feature) Features {
	out := Features{}
	for _, f := range fs {
		out[f] = true
	}
	return out
}

// ParseFeatures reads a comma-separated feature list.
func ParseFeatures(raw string) Features {
	out := Features{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out[Feature(p)] = true
		}
	}
	return out
}

func (f Features) SupportsFeature(feat Feature) bool {
	return f[feat]
}

// Supports is nil-safe: a missing queue supports nothing.
func Supports(q Queue, f Feature) bool {
	if q == nil {
		return false
	}
	return q.SupportsFeature(f)
}
