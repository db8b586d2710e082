// Package platform resolves host-specific shell conventions once, at
// construction time, so the rest of the engine never branches on GOOS.
package platform

import (
	"fmt"
	"runtime"
)

// Platform identifies the host operating system family.
type Platform int

const (
	Unknown Platform = iota
	Linux
	Darwin
	Windows
)

func (p Platform) String() string {
	switch p {
	case Linux:
		return "linux"
	case Darwin:
		return "darwin"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

// Spec carries everything the engine needs to talk to a shell on one
// platform: which executables to try, how to chain commands so the end
// marker only echoes when the command succeeded, and how lines end on
// the wire.
type Spec struct {
	Platform Platform

	// ShellCandidates are probed in order; the first one found on PATH wins.
	ShellCandidates []string
	// ShellArgs are passed to the chosen shell at spawn.
	ShellArgs []string

	// AndSeparator joins the wrapped command with the marker echoes: "&&"
	// on Unix shells, where the end echo is skipped when the command
	// fails, and "&" on Windows, where cmd-style chaining runs the echo
	// unconditionally (Windows PowerShell 5.1 rejects "&&" outright).
	AndSeparator string
	// LineEnding terminates every line written to the shell's stdin.
	LineEnding string
	// PathListSeparator joins directories when building a minimal PATH.
	PathListSeparator string

	// PromptSuppression is written to the shell right after spawn when
	// running without a PTY, so prompts never pollute framed output.
	PromptSuppression []string
}

var specs = map[Platform]Spec{
	Linux: {
		Platform:          Linux,
		ShellCandidates:   []string{"bash", "sh"},
		ShellArgs:         nil,
		AndSeparator:      "&&",
		LineEnding:        "\n",
		PathListSeparator: ":",
		PromptSuppression: []string{"unset PS1 PS2", "stty -echo 2>/dev/null || true"},
	},
	Darwin: {
		Platform:          Darwin,
		ShellCandidates:   []string{"bash", "zsh", "sh"},
		ShellArgs:         nil,
		AndSeparator:      "&&",
		LineEnding:        "\n",
		PathListSeparator: ":",
		PromptSuppression: []string{"unset PS1 PS2", "stty -echo 2>/dev/null || true"},
	},
	Windows: {
		Platform:          Windows,
		ShellCandidates:   []string{"pwsh", "powershell", "cmd"},
		ShellArgs:         []string{"-NoLogo", "-NoProfile"},
		AndSeparator:      "&",
		LineEnding:        "\r\n",
		PathListSeparator: ";",
		PromptSuppression: []string{
			"$ProgressPreference = 'SilentlyContinue'",
			"function prompt { '' }",
		},
	},
}

// Resolve returns the Spec for the running host.
func Resolve() (Spec, error) {
	return ResolveFor(runtime.GOOS)
}

// ResolveFor maps a GOOS string to its Spec. Unrecognized Unix-like
// systems reuse the Linux conventions.
func ResolveFor(goos string) (Spec, error) {
	switch goos {
	case "linux":
		return specs[Linux], nil
	case "darwin":
		return specs[Darwin], nil
	case "windows":
		return specs[Windows], nil
	case "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "illumos", "aix":
		s := specs[Linux]
		return s, nil
	default:
		return Spec{}, fmt.Errorf("unsupported platform: %s", goos)
	}
}
