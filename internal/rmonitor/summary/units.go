package summary

import (
	"fmt"
	"strings"
)

type unitClass int

const (
	classPlain unitClass = iota
	classSize
	classTime
	classRate
)

func unitClassOf(r Resource) unitClass {
	switch r {
	case Memory, VirtualMemory, SwapMemory, Disk, BytesRead, BytesWritten, BytesReceived, BytesSent:
		return classSize
	case WallTime, CPUTime:
		return classTime
	case Bandwidth:
		return classRate
	default:
		return classPlain
	}
}

var sizeFactors = map[string]float64{
	"b":     1.0 / (1 << 20),
	"bytes": 1.0 / (1 << 20),
	"kb":    1.0 / (1 << 10),
	"kib":   1.0 / (1 << 10),
	"mb":    1,
	"mib":   1,
	"gb":    1 << 10,
	"gib":   1 << 10,
	"tb":    1 << 20,
	"tib":   1 << 20,
}

var timeFactors = map[string]float64{
	"us":      1e-6,
	"ms":      1e-3,
	"s":       1,
	"seconds": 1,
	"m":       60,
	"min":     60,
	"h":       3600,
}

var rateFactors = map[string]float64{
	"bps":  1e-6,
	"kbps": 1e-3,
	"mbps": 1,
	"gbps": 1e3,
}

// toCanonical converts v expressed in unit to r's canonical unit. An empty
// unit means v is already canonical.
func toCanonical(r Resource, v float64, unit string) (float64, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return v, nil
	}
	var table map[string]float64
	switch unitClassOf(r) {
	case classSize:
		table = sizeFactors
	case classTime:
		table = timeFactors
	case classRate:
		table = rateFactors
	default:
		return v, nil
	}
	f, ok := table[u]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	return v * f, nil
}
