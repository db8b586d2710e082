package platform

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// KnownTools are the executables the engine may need to locate when
// building a minimal environment for a bottle.
var KnownTools = []string{"python3", "python", "pip", "uv", "node", "npm"}

// ToolLocator resolves absolute executable paths on the host and caches
// the answers. Missing tools are cached too, so repeated probes stay cheap.
type ToolLocator struct {
	mu    sync.Mutex
	found map[string]string
	miss  map[string]struct{}
}

func NewToolLocator() *ToolLocator {
	return &ToolLocator{
		found: make(map[string]string),
		miss:  make(map[string]struct{}),
	}
}

// Locate returns the absolute path of the named executable.
func (l *ToolLocator) Locate(tool string) (string, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return "", fmt.Errorf("tool name is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.found[tool]; ok {
		return p, nil
	}
	if _, ok := l.miss[tool]; ok {
		return "", fmt.Errorf("tool not found: %s", tool)
	}
	p, err := exec.LookPath(tool)
	if err != nil {
		l.miss[tool] = struct{}{}
		return "", fmt.Errorf("tool not found: %s", tool)
	}
	if abs, aerr := filepath.Abs(p); aerr == nil {
		p = abs
	}
	l.found[tool] = p
	return p, nil
}

// LocateShell probes the spec's shell candidates in order and returns the
// first hit.
func (l *ToolLocator) LocateShell(spec Spec) (string, error) {
	for _, cand := range spec.ShellCandidates {
		if p, err := l.Locate(cand); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no shell found (tried %s)", strings.Join(spec.ShellCandidates, ", "))
}

// Dirs returns the deduplicated parent directories of every tool that
// resolves, sorted for stable PATH construction. Tools that are missing
// on the host are skipped.
func (l *ToolLocator) Dirs(tools ...string) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, t := range tools {
		p, err := l.Locate(t)
		if err != nil {
			continue
		}
		d := filepath.Dir(p)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
