// Package procutil finds the resource probe executable on the host.
package procutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultProbeName is the probe executable looked up on PATH.
const DefaultProbeName = "resource_monitor"

// EnvOverrides are checked in order before the search path.
var EnvOverrides = []string{"FLOWMON_RESOURCE_MONITOR", "RESOURCE_MONITOR"}

var ErrNotFound = errors.New("resource probe not found")

// Locator resolves the probe path. Zero-valued fields fall back to the os
// and os/exec implementations.
type Locator struct {
	LookPath   func(string) (string, error)
	Getenv     func(string) string
	Executable func() (string, error)
}

func DefaultLocator() Locator {
	return Locator{
		LookPath:   exec.LookPath,
		Getenv:     os.Getenv,
		Executable: os.Executable,
	}
}

// Locate returns an absolute path to the probe. An explicit path must point
// at an executable file; otherwise the environment overrides, the search
// path, and the directory of the running binary are tried in turn.
func (l Locator) Locate(explicit string) (string, error) {
	l = l.withDefaults()
	if p := strings.TrimSpace(explicit); p != "" {
		if strings.ContainsRune(p, filepath.Separator) {
			return checked(p)
		}
		found, err := l.LookPath(p)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return checked(found)
	}
	for _, key := range EnvOverrides {
		if p := strings.TrimSpace(l.Getenv(key)); p != "" {
			abs, err := checked(p)
			if err != nil {
				return "", fmt.Errorf("%s: %w", key, err)
			}
			return abs, nil
		}
	}
	if found, err := l.LookPath(DefaultProbeName); err == nil {
		if abs, err := checked(found); err == nil {
			return abs, nil
		}
	}
	if self, err := l.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), DefaultProbeName)
		if abs, err := checked(sibling); err == nil {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s (set %s or put it on PATH)", ErrNotFound, DefaultProbeName, EnvOverrides[0])
}

func (l Locator) withDefaults() Locator {
	d := DefaultLocator()
	if l.LookPath == nil {
		l.LookPath = d.LookPath
	}
	if l.Getenv == nil {
		l.Getenv = d.Getenv
	}
	if l.Executable == nil {
		l.Executable = d.Executable
	}
	return l
}

func checked(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if !IsExecutable(abs) {
		return "", fmt.Errorf("%w: %s is not an executable file", ErrNotFound, abs)
	}
	return abs, nil
}

// IsExecutable reports whether p is a regular file with an execute bit set.
func IsExecutable(p string) bool {
	fi, err := os.Stat(p)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0
}
