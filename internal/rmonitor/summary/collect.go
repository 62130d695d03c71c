package summary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultCollectPattern matches every summary artifact below a log directory.
const DefaultCollectPattern = "**/*.summary"

// Collect returns the paths under root matching pattern, sorted.
func Collect(root, pattern string) ([]string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("summary: collect root is required")
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = DefaultCollectPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("summary: invalid pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}
