package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoLaunchArtifact means no usable server jar could be resolved.
var ErrNoLaunchArtifact = errors.New("no launch artifact found")

// ResolveArtifact picks the jar to launch. An explicit preference wins when
// it exists (relative paths are resolved against dir); otherwise the target
// directory is scanned for *.jar, preferring names that look like a server
// jar, then falling back to the lexicographically first match.
func ResolveArtifact(dir, preferred string) (string, error) {
	if preferred != "" {
		p := preferred
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
		// Preference is stale; fall through to the scan.
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	var jars []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".jar") {
			jars = append(jars, e.Name())
		}
	}
	if len(jars) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLaunchArtifact, dir)
	}
	sort.Strings(jars)
	for _, name := range jars {
		if strings.Contains(strings.ToLower(name), "server") {
			return filepath.Join(dir, name), nil
		}
	}
	return filepath.Join(dir, jars[0]), nil
}
