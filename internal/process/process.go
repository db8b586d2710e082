// Package process spawns the underlying OS shell and wraps the PTY and
// raw-pipe variants behind one capability interface. PTY is preferred;
// any construction failure falls back to pipes transparently.
package process

import (
	"errors"
	"log/slog"
	"os"
	"sync"
)

// ErrPTYUnavailable reports that no PTY backend exists on this host.
var ErrPTYUnavailable = errors.New("pty backend unavailable")

// Signal is the subset of process signals the engine sends.
type Signal int

const (
	SigTerm Signal = iota
	SigKill
)

// ShellProcess is the capability surface shared by the PTY and pipe
// backends. Handlers may be registered after spawn; output received
// before registration is buffered and replayed on registration.
type ShellProcess interface {
	Write(data []byte) error
	OnData(fn func(data []byte))
	OnError(fn func(err error))
	OnExit(fn func(code int))
	Kill(sig Signal) error
	// Resize adjusts the terminal size; the pipe backend ignores it.
	Resize(cols, rows uint16) error
	IsAlive() bool
	Close() error
}

// Options configure a spawn.
type Options struct {
	Shell     string
	Args      []string
	Dir       string
	Env       []string
	PreferPTY bool
	Cols      uint16
	Rows      uint16

	// PromptSuppression is written to the shell immediately after a pipe
	// spawn; PTYs keep their prompt since framing relies on markers anyway.
	PromptSuppression []string
	LineEnding        string
}

// Manager selects and constructs the process backend.
type Manager struct {
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Spawn starts the shell. When opts.PreferPTY is set it tries the PTY
// backend first and recovers locally from any construction failure by
// logging and falling back to the pipe backend.
func (m *Manager) Spawn(opts Options) (ShellProcess, error) {
	if opts.Shell == "" {
		return nil, errors.New("shell executable is required")
	}
	if opts.Cols == 0 {
		opts.Cols = 120
	}
	if opts.Rows == 0 {
		opts.Rows = 30
	}
	if opts.LineEnding == "" {
		opts.LineEnding = "\n"
	}
	var ptyErr error
	if opts.PreferPTY {
		p, err := newPTYProcess(opts)
		if err == nil {
			m.logger.Debug("spawned pty shell", "shell", opts.Shell)
			return p, nil
		}
		ptyErr = err
		m.logger.Warn("pty unavailable, falling back to pipes", "shell", opts.Shell, "err", err)
	}
	p, err := newPipeProcess(opts)
	if err != nil {
		// Keep the PTY failure visible when the fallback dies too.
		if ptyErr != nil {
			return nil, errors.Join(ptyErr, err)
		}
		return nil, err
	}
	m.logger.Debug("spawned pipe shell", "shell", opts.Shell)
	return p, nil
}

// handlerSet is the shared registration/buffering machinery of both
// backends. Data that arrives before OnData is registered is held in
// pending and replayed once, preserving order.
type handlerSet struct {
	mu      sync.Mutex
	onData  func([]byte)
	onError func(error)
	onExit  func(int)

	pending    [][]byte
	exited     bool
	exitCode   int
	exitNotify bool
}

func (h *handlerSet) setData(fn func([]byte)) {
	h.mu.Lock()
	h.onData = fn
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	if fn != nil {
		for _, chunk := range pending {
			fn(chunk)
		}
	}
}

func (h *handlerSet) setError(fn func(error)) {
	h.mu.Lock()
	h.onError = fn
	h.mu.Unlock()
}

func (h *handlerSet) setExit(fn func(int)) {
	h.mu.Lock()
	h.onExit = fn
	// Replay an exit that happened before registration.
	replay := h.exited && !h.exitNotify && fn != nil
	code := h.exitCode
	if replay {
		h.exitNotify = true
	}
	h.mu.Unlock()
	if replay {
		fn(code)
	}
}

func (h *handlerSet) emitData(data []byte) {
	h.mu.Lock()
	fn := h.onData
	if fn == nil {
		h.pending = append(h.pending, append([]byte(nil), data...))
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn(data)
}

func (h *handlerSet) emitError(err error) {
	h.mu.Lock()
	fn := h.onError
	h.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (h *handlerSet) emitExit(code int) {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	h.exitCode = code
	fn := h.onExit
	if fn != nil {
		h.exitNotify = true
	}
	h.mu.Unlock()
	if fn != nil {
		fn(code)
	}
}

func (h *handlerSet) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func signalFor(sig Signal) os.Signal {
	if sig == SigKill {
		return os.Kill
	}
	return osSigTerm
}
