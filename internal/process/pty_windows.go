//go:build windows

package process

import "os"

var osSigTerm os.Signal = os.Kill

// No PTY backend on Windows; Spawn falls back to the pipe variant.
func newPTYProcess(Options) (ShellProcess, error) {
	return nil, ErrPTYUnavailable
}
