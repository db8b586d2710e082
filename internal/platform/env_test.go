package platform

import (
	"strings"
	"testing"
)

func envLookup(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

func TestInheritAppliesOverrides(t *testing.T) {
	t.Setenv("SHELLRPC_ENV_PROBE", "original")
	spec, _ := ResolveFor("linux")
	b := NewEnvironmentBuilder(spec, nil)

	env := b.Inherit(map[string]string{"SHELLRPC_ENV_PROBE": "overridden", "EXTRA_VAR": "1"})
	if v, _ := envLookup(env, "SHELLRPC_ENV_PROBE"); v != "overridden" {
		t.Fatalf("probe=%q, want overridden", v)
	}
	if v, _ := envLookup(env, "EXTRA_VAR"); v != "1" {
		t.Fatalf("extra=%q, want 1", v)
	}
}

func TestInheritWithoutOverridesIsProcessEnv(t *testing.T) {
	t.Setenv("SHELLRPC_ENV_PROBE", "present")
	spec, _ := ResolveFor("linux")
	env := NewEnvironmentBuilder(spec, nil).Inherit(nil)
	if _, ok := envLookup(env, "SHELLRPC_ENV_PROBE"); !ok {
		t.Fatal("process variable missing from inherited environment")
	}
}

func TestCleanDropsNonEssentials(t *testing.T) {
	t.Setenv("SHELLRPC_SECRET_TOKEN", "hunter2")
	t.Setenv("HOME", "/home/probe")
	spec, _ := ResolveFor("linux")
	env := NewEnvironmentBuilder(spec, nil).Clean(nil)

	if _, ok := envLookup(env, "SHELLRPC_SECRET_TOKEN"); ok {
		t.Fatal("non-essential variable leaked into clean environment")
	}
	if v, _ := envLookup(env, "HOME"); v != "/home/probe" {
		t.Fatalf("HOME=%q, want /home/probe", v)
	}
	path, ok := envLookup(env, "PATH")
	if !ok || path == "" {
		t.Fatal("clean environment must carry a PATH")
	}
	if !strings.Contains(path, "/usr/bin") {
		t.Fatalf("PATH=%q, want system fallback dirs", path)
	}
}

func TestCleanAppliesOverrides(t *testing.T) {
	spec, _ := ResolveFor("linux")
	env := NewEnvironmentBuilder(spec, nil).Clean(map[string]string{"BOTTLE_ID": "b1"})
	if v, _ := envLookup(env, "BOTTLE_ID"); v != "b1" {
		t.Fatalf("BOTTLE_ID=%q, want b1", v)
	}
}

func TestCleanPathUsesPlatformSeparator(t *testing.T) {
	spec, _ := ResolveFor("linux")
	env := NewEnvironmentBuilder(spec, nil).Clean(nil)
	path, _ := envLookup(env, "PATH")
	if strings.Contains(path, ";") {
		t.Fatalf("PATH=%q, want colon-separated on unix", path)
	}
}
