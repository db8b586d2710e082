package platform

import (
	"os"
	"sort"
	"strings"
)

// essentialVars survive into a clean environment regardless of platform.
var essentialVars = []string{
	"HOME", "USER", "LOGNAME", "LANG", "LC_ALL", "TERM", "TMPDIR", "TZ",
	// Windows equivalents; absent keys are simply skipped.
	"USERPROFILE", "USERNAME", "TEMP", "TMP", "SYSTEMROOT", "SystemRoot", "COMSPEC",
}

// EnvironmentBuilder constructs the environment handed to the shell at
// spawn time: either the full inherited process environment or a minimal
// "clean" one holding only essentials plus a PATH assembled from located
// tool directories.
type EnvironmentBuilder struct {
	spec    Spec
	locator *ToolLocator
}

func NewEnvironmentBuilder(spec Spec, locator *ToolLocator) *EnvironmentBuilder {
	if locator == nil {
		locator = NewToolLocator()
	}
	return &EnvironmentBuilder{spec: spec, locator: locator}
}

// Inherit returns the full process environment with overrides applied.
func (b *EnvironmentBuilder) Inherit(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	merged := envToMap(env)
	for k, v := range overrides {
		merged[k] = v
	}
	return mapToEnv(merged)
}

// Clean returns a minimal environment: essential variables that are set
// in the process, a PATH built from the directories of the known tools
// plus a few standard system directories, and any overrides.
func (b *EnvironmentBuilder) Clean(overrides map[string]string) []string {
	merged := make(map[string]string)
	for _, k := range essentialVars {
		if v, ok := os.LookupEnv(k); ok {
			merged[k] = v
		}
	}
	merged["PATH"] = b.cleanPath()
	for k, v := range overrides {
		merged[k] = v
	}
	return mapToEnv(merged)
}

// cleanPath assembles a PATH from detected tool directories instead of
// hardcoding OS layouts; system fallbacks keep core utilities reachable.
func (b *EnvironmentBuilder) cleanPath() string {
	dirs := b.locator.Dirs(append(KnownTools, b.spec.ShellCandidates...)...)
	if b.spec.Platform != Windows {
		for _, sys := range []string{"/usr/local/bin", "/usr/bin", "/bin", "/usr/sbin", "/sbin"} {
			if !containsString(dirs, sys) {
				dirs = append(dirs, sys)
			}
		}
	} else if v, ok := os.LookupEnv("SystemRoot"); ok {
		for _, sys := range []string{v + `\System32`, v} {
			if !containsString(dirs, sys) {
				dirs = append(dirs, sys)
			}
		}
	}
	return strings.Join(dirs, b.spec.PathListSeparator)
}

func envToMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func mapToEnv(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
