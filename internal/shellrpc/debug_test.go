package shellrpc

import (
	"testing"
	"time"
)

func TestEnvBoolParsing(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"0", false},
		{"false", false},
		// Non-boolean but set still means enabled.
		{"yes", true},
	}
	for _, tc := range cases {
		t.Setenv(envDebugIO, tc.value)
		if got := debugIO(); got != tc.want {
			t.Errorf("envBool(%q)=%t, want %t", tc.value, got, tc.want)
		}
	}
}

func TestCIWidensBudgets(t *testing.T) {
	t.Setenv(envCI, "")
	if got := defaultInitTimeout(); got != 10*time.Second {
		t.Fatalf("init timeout=%s, want 10s", got)
	}
	if got := completionPollInterval(); got != 25*time.Millisecond {
		t.Fatalf("poll=%s, want 25ms", got)
	}

	t.Setenv(envCI, "true")
	if got := defaultInitTimeout(); got != 30*time.Second {
		t.Fatalf("ci init timeout=%s, want 30s", got)
	}
	if got := completionPollInterval(); got != 100*time.Millisecond {
		t.Fatalf("ci poll=%s, want 100ms", got)
	}
}
