package shellrpc

import (
	"os"
	"strconv"
	"time"
)

// Debug and CI knobs. CI schedulers are slow enough that the completion
// poll and initialization budget need widening to avoid flaky races.
const (
	envDebugTimeouts = "SHELLRPC_DEBUG_TIMEOUTS"
	envDebugIO       = "SHELLRPC_DEBUG_IO"
	envCI            = "CI"
)

func envBool(key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v != ""
	}
	return b
}

func debugTimeouts() bool { return envBool(envDebugTimeouts) }
func debugIO() bool       { return envBool(envDebugIO) }
func isCI() bool          { return envBool(envCI) }

func defaultInitTimeout() time.Duration {
	if isCI() {
		return 30 * time.Second
	}
	return 10 * time.Second
}

func completionPollInterval() time.Duration {
	if isCI() {
		return 100 * time.Millisecond
	}
	return 25 * time.Millisecond
}
