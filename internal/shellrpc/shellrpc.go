// Package shellrpc executes sequences of shell commands against one
// long-lived shell, framing each command's output with markers and
// supervising it with an adaptive three-timer timeout instead of a fixed
// deadline.
package shellrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonkrylov/shellrpc/internal/pattern"
	"github.com/antonkrylov/shellrpc/internal/platform"
	"github.com/antonkrylov/shellrpc/internal/process"
	"github.com/antonkrylov/shellrpc/internal/timeout"
)

// StartMarker is the fixed sentinel echoed before every command's output.
// The end marker is generated per command so it can never collide with
// output produced by a previous command.
const StartMarker = "__SHELLRPC_START__"

func endMarkerFor(id string) string {
	return fmt.Sprintf("__SHELLRPC_END_%s__", id)
}

func readyMarkerFor(id string) string {
	return fmt.Sprintf("__SHELLRPC_READY_%s__", id)
}

// Options configure one engine instance.
type Options struct {
	// ID names the session; generated when empty.
	ID string
	// Dir is the shell's working directory.
	Dir string
	// Shell overrides shell auto-detection with an explicit executable.
	Shell string
	// PreferPTY requests a pseudo-terminal; construction failures fall
	// back to pipes. Defaults to true.
	PreferPTY *bool
	// CleanEnv spawns the shell with a minimal environment built from
	// detected tool directories instead of the full inherited one.
	CleanEnv bool
	// Env holds extra variables merged into whichever environment is used.
	Env map[string]string
	// TranscriptPath, when set, records all session output (zstd).
	TranscriptPath string
	// Cols and Rows size the PTY; zero picks 120x30.
	Cols uint16
	Rows uint16
	// InitTimeout bounds Initialize; defaults to 10s (30s under CI).
	InitTimeout time.Duration

	Logger *slog.Logger
}

// Status is the externally visible session state.
type Status struct {
	ID          string
	Alive       bool
	Initialized bool
	Platform    string
	Shell       string
	Queue       QueueStats
}

// SignalResult reports the outcome of a signal delivery.
type SignalResult struct {
	Success bool
	Signal  string
	Err     error
}

// command tracks one in-flight command's supervisor and cancel hook.
type command struct {
	sup    *timeout.ResilientTimeout
	cancel chan struct{}
	once   sync.Once
}

func (c *command) abort() {
	c.once.Do(func() { close(c.cancel) })
}

// ShellRPC owns one shell process, one command queue, and one live
// supervisor per in-flight command.
type ShellRPC struct {
	id         string
	logger     *slog.Logger
	spec       platform.Spec
	opts       Options
	manager    *process.Manager
	locator    *platform.ToolLocator
	classifier *pattern.Classifier
	matcher    *pattern.Matcher
	queue      *Queue
	transcript *Transcript

	notify chan struct{}

	mu          sync.Mutex
	proc        process.ShellProcess
	shellPath   string
	buf         bytes.Buffer
	alive       bool
	initialized bool
	readySeen   bool
	readyCh     chan struct{}
	dead        chan struct{}
	deadOnce    sync.Once
	commands    map[string]*command
	currentID   string
}

// New builds an engine; Initialize must be called before Execute.
func New(opts Options) (*ShellRPC, error) {
	spec, err := platform.Resolve()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := opts.ID
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	logger = logger.With("session", id)
	return &ShellRPC{
		id:         id,
		logger:     logger,
		spec:       spec,
		opts:       opts,
		manager:    process.NewManager(logger),
		locator:    platform.NewToolLocator(),
		classifier: pattern.NewClassifier(debugTimeouts()),
		matcher:    pattern.NewMatcher(logger),
		queue:      NewQueue(),
		notify:     make(chan struct{}, 1),
		readyCh:    make(chan struct{}),
		dead:       make(chan struct{}),
		commands:   make(map[string]*command),
	}, nil
}

// Initialize spawns the shell and blocks until the readiness marker is
// observed in the output stream, or the initialization budget elapses.
func (s *ShellRPC) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	shellPath := s.opts.Shell
	if shellPath == "" {
		p, err := s.locator.LocateShell(s.spec)
		if err != nil {
			return wrapError(CodeInitFailure, "no usable shell", err)
		}
		shellPath = p
	}

	envb := platform.NewEnvironmentBuilder(s.spec, s.locator)
	var env []string
	if s.opts.CleanEnv {
		env = envb.Clean(s.opts.Env)
	} else {
		env = envb.Inherit(s.opts.Env)
	}

	if s.opts.TranscriptPath != "" {
		tr, err := NewTranscript(s.opts.TranscriptPath)
		if err != nil {
			return wrapError(CodeInitFailure, "transcript", err)
		}
		s.transcript = tr
	}

	preferPTY := true
	if s.opts.PreferPTY != nil {
		preferPTY = *s.opts.PreferPTY
	}
	proc, err := s.manager.Spawn(process.Options{
		Shell:             shellPath,
		Args:              s.spec.ShellArgs,
		Dir:               s.opts.Dir,
		Env:               env,
		PreferPTY:         preferPTY,
		Cols:              s.opts.Cols,
		Rows:              s.opts.Rows,
		PromptSuppression: s.spec.PromptSuppression,
		LineEnding:        s.spec.LineEnding,
	})
	if err != nil {
		code := CodeStreamCreation
		if errors.Is(err, process.ErrPTYUnavailable) {
			code = CodePTYUnavailable
		}
		return wrapError(code, "spawn shell", err)
	}

	s.mu.Lock()
	s.proc = proc
	s.shellPath = shellPath
	s.alive = true
	s.mu.Unlock()

	proc.OnData(s.handleData)
	proc.OnError(func(err error) {
		s.logger.Warn("shell stream error", "err", err)
	})
	proc.OnExit(s.handleExit)

	ready := readyMarkerFor(s.id)
	if err := proc.Write([]byte("echo " + ready + s.spec.LineEnding)); err != nil {
		return wrapError(CodeInitFailure, "write readiness probe", err)
	}

	initTimeout := s.opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = defaultInitTimeout()
	}
	select {
	case <-s.readyCh:
	case <-s.dead:
		return newError(CodeInitDeath, "shell exited before becoming ready")
	case <-time.After(initTimeout):
		_ = proc.Kill(process.SigKill)
		return newError(CodeInitTimeout, "no readiness marker within budget")
	case <-ctx.Done():
		_ = proc.Kill(process.SigKill)
		return ctx.Err()
	}

	s.mu.Lock()
	s.initialized = true
	s.buf.Reset()
	s.mu.Unlock()
	s.logger.Debug("session initialized", "shell", shellPath)
	return nil
}

// Execute enqueues the command and blocks until it settles. A zero
// timeout means the command classifier picks the configuration; an
// explicit timeout overrides it. Errors are never returned before the
// command had its chance to run (queue semantics), except when the
// session was never initialized or has died.
func (s *ShellRPC) Execute(ctx context.Context, cmd string, timeoutBudget time.Duration) (*CommandResult, error) {
	s.mu.Lock()
	switch {
	case s.proc == nil:
		s.mu.Unlock()
		return nil, newError(CodeNoProcess, "execute before initialize")
	case !s.alive:
		s.mu.Unlock()
		return nil, newError(CodeNotAlive, "shell is no longer alive")
	}
	s.mu.Unlock()

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	p := s.queue.Enqueue(id, cmd, timeoutBudget)
	s.pump()

	select {
	case out := <-p.ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pump starts the next queued command when the shell is idle.
func (s *ShellRPC) pump() {
	p := s.queue.ProcessNext()
	if p == nil {
		return
	}
	go s.run(p)
}

func (s *ShellRPC) run(p *Pending) {
	s.mu.Lock()
	proc := s.proc
	if proc == nil || !s.alive {
		s.mu.Unlock()
		s.queue.Fail(newError(CodeNotAlive, "shell is no longer alive"))
		s.pump()
		return
	}
	// Fresh window per command: no cross-command contamination.
	s.buf.Reset()
	s.currentID = p.ID

	var cfg timeout.Config
	var cls pattern.Classification
	if p.Timeout > 0 {
		cls, cfg = s.classifier.Override(p.Command, p.Timeout)
	} else {
		cls, cfg = s.classifier.ConfigFor(p.Command)
	}
	cfg.Debug = cfg.Debug || debugTimeouts()
	sup := timeout.New(cfg, s.matcher, s.logger, s.eventObserver(p.ID))
	cmd := &command{sup: sup, cancel: make(chan struct{})}
	s.commands[p.ID] = cmd
	s.mu.Unlock()

	endMarker := endMarkerFor(p.ID)
	sep := " " + s.spec.AndSeparator + " "
	wrapped := "echo " + StartMarker + sep + p.Command + sep + "echo " + endMarker + s.spec.LineEnding
	if debugIO() {
		s.logger.Debug("writing command", "id", p.ID, "category", string(cls.Category), "command", p.Command)
	}
	if err := proc.Write([]byte(wrapped)); err != nil {
		s.clearCommand(p.ID)
		s.queue.Fail(wrapError(CodeShellDied, "write command", err))
		s.pump()
		return
	}

	sup.Start()
	defer s.clearCommand(p.ID)

	// Completion detection: scan on every data chunk, with a periodic
	// poll as a safety net for partial writes split across chunks.
	ticker := time.NewTicker(completionPollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-s.notify:
		case <-ticker.C:
		case reason := <-sup.Done():
			// The marker may have landed in the same scheduler tick the
			// supervisor expired in; completion wins that race.
			if out, ok := s.tryExtract(endMarker); ok {
				sup.Stop()
				s.queue.Complete(&CommandResult{
					Command:  p.Command,
					Stdout:   out,
					ExitCode: 0,
					Duration: time.Since(p.StartedAt),
				})
				s.pump()
				return
			}
			// Best-effort interrupt so the stuck child does not outlive
			// the command's budget.
			_ = s.writeInterruptByte()
			partial := s.partialResult(p, true)
			sup.Stop()
			s.queue.Fail(&Error{
				Code:    CodeCommandTimeout,
				Message: fmt.Sprintf("command timed out (%s)", reason),
				Partial: partial,
			})
			s.pump()
			return
		case <-cmd.cancel:
			// Interrupted by the caller; the settle happened there.
			sup.Stop()
			s.pump()
			return
		case <-s.dead:
			// handleExit flushes the queue with the fatal error.
			sup.Stop()
			return
		}

		if out, ok := s.tryExtract(endMarker); ok {
			sup.Stop()
			s.queue.Complete(&CommandResult{
				Command:  p.Command,
				Stdout:   out,
				ExitCode: 0,
				Duration: time.Since(p.StartedAt),
			})
			s.pump()
			return
		}
	}
}

// handleData is the single ingest point: transcript, accumulation
// buffer, readiness detection, and the active command's supervisor.
func (s *ShellRPC) handleData(data []byte) {
	if s.transcript != nil {
		s.transcript.Write(data)
	}
	if debugIO() {
		s.logger.Debug("shell output", "bytes", len(data))
	}

	s.mu.Lock()
	s.buf.Write(data)
	if !s.readySeen && bytes.Contains(s.buf.Bytes(), []byte(readyMarkerFor(s.id))) {
		s.readySeen = true
		close(s.readyCh)
	}
	var sup *timeout.ResilientTimeout
	if c, ok := s.commands[s.currentID]; ok {
		sup = c.sup
	}
	s.mu.Unlock()

	if sup != nil {
		sup.ProcessOutput(string(data))
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *ShellRPC) handleExit(code int) {
	s.mu.Lock()
	wasInitialized := s.initialized
	s.alive = false
	s.mu.Unlock()
	s.deadOnce.Do(func() { close(s.dead) })

	if wasInitialized {
		s.logger.Warn("shell exited unexpectedly", "code", code)
		s.queue.ClearAll(newError(CodeShellDied, fmt.Sprintf("shell exited with code %d", code)))
	}
}

// tryExtract scans the accumulated buffer for the start marker followed,
// after its first newline (skipping the echoed command line), by the
// unique end marker. Returns the trimmed text between them.
func (s *ShellRPC) tryExtract(endMarker string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := extractOutput(s.buf.Bytes(), endMarker)
	return out, ok
}

func extractOutput(buf []byte, endMarker string) (string, bool) {
	i := bytes.Index(buf, []byte(StartMarker))
	if i < 0 {
		return "", false
	}
	nl := bytes.IndexByte(buf[i:], '\n')
	if nl < 0 {
		return "", false
	}
	rest := buf[i+nl+1:]
	j := bytes.Index(rest, []byte(endMarker))
	if j < 0 {
		return "", false
	}
	out := rest[:j]
	// Under a PTY the written line is echoed back, so the segment starts
	// with the real start-marker echo; drop that line when present.
	if k := bytes.Index(out, []byte(StartMarker)); k >= 0 {
		if nl2 := bytes.IndexByte(out[k:], '\n'); nl2 >= 0 {
			out = out[k+nl2+1:]
		}
	}
	// The end-marker echo line may carry a leading "echo" remnant on some
	// shells; trimming handles stray \r and blank edges.
	txt := strings.ReplaceAll(string(out), "\r\n", "\n")
	return strings.TrimSpace(txt), true
}

func (s *ShellRPC) partialResult(p *Pending, timedOut bool) *CommandResult {
	s.mu.Lock()
	partial := s.buf.String()
	s.mu.Unlock()
	return &CommandResult{
		Command:  p.Command,
		Stdout:   partial,
		ExitCode: -1,
		Duration: time.Since(p.StartedAt),
		TimedOut: timedOut,
	}
}

func (s *ShellRPC) clearCommand(id string) {
	s.mu.Lock()
	delete(s.commands, id)
	if s.currentID == id {
		s.currentID = ""
	}
	s.mu.Unlock()
}

func (s *ShellRPC) eventObserver(id string) func(timeout.Event) {
	return func(ev timeout.Event) {
		if debugTimeouts() {
			s.logger.Debug("timeout event",
				"command", id,
				"event", ev.Kind.String(),
				"from", ev.From.String(),
				"to", ev.To.String(),
				"reason", string(ev.Reason),
				"pattern", ev.Pattern)
		}
	}
}

func (s *ShellRPC) writeInterruptByte() error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return newError(CodeNoProcess, "no shell process")
	}
	seq := []byte{0x03}
	if s.spec.Platform == platform.Windows {
		seq = append(seq, []byte(s.spec.LineEnding)...)
	}
	return proc.Write(seq)
}

// Interrupt delivers Ctrl-C to the shell's foreground child without
// killing the shell, and settles the in-flight command as interrupted so
// the queue never hangs on it.
func (s *ShellRPC) Interrupt() SignalResult {
	if err := s.writeInterruptByte(); err != nil {
		return SignalResult{Signal: "SIGINT", Err: err}
	}
	cur := s.queue.Current()
	if cur != nil {
		s.mu.Lock()
		cmd := s.commands[cur.ID]
		s.mu.Unlock()
		partial := s.partialResult(cur, false)
		s.queue.Fail(&Error{Code: CodeInterrupted, Message: "command interrupted", Partial: partial})
		if cmd != nil {
			cmd.abort()
		}
	}
	return SignalResult{Success: true, Signal: "SIGINT"}
}

// Terminate sends SIGTERM to the shell itself, marks the session dead,
// and flushes all pending work with a fatal error.
func (s *ShellRPC) Terminate() SignalResult {
	return s.killShell(process.SigTerm, "SIGTERM")
}

// ForceKill is Terminate with SIGKILL.
func (s *ShellRPC) ForceKill() SignalResult {
	return s.killShell(process.SigKill, "SIGKILL")
}

func (s *ShellRPC) killShell(sig process.Signal, name string) SignalResult {
	s.mu.Lock()
	proc := s.proc
	s.alive = false
	s.mu.Unlock()
	if proc == nil {
		return SignalResult{Signal: name, Err: newError(CodeNoProcess, "no shell process")}
	}
	err := proc.Kill(sig)
	s.deadOnce.Do(func() { close(s.dead) })
	s.queue.ClearAll(newError(CodeShellExited, "shell terminated by "+name))
	if err != nil {
		return SignalResult{Signal: name, Err: err}
	}
	return SignalResult{Success: true, Signal: name}
}

// Status reports the session's externally visible state.
func (s *ShellRPC) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:          s.id,
		Alive:       s.alive,
		Initialized: s.initialized,
		Platform:    s.spec.Platform.String(),
		Shell:       s.shellPath,
		Queue:       s.queue.Stats(),
	}
}

// Cleanup tears the session down: kills the shell if needed, flushes the
// queue, and closes the transcript.
func (s *ShellRPC) Cleanup() error {
	var firstErr error

	s.mu.Lock()
	proc := s.proc
	wasAlive := s.alive
	s.alive = false
	s.initialized = false
	s.proc = nil
	s.mu.Unlock()

	s.deadOnce.Do(func() { close(s.dead) })
	s.queue.ClearAll(newError(CodeShellExited, "session cleaned up"))

	if proc != nil && wasAlive {
		if err := proc.Kill(process.SigTerm); err != nil {
			firstErr = wrapError(CodeCleanup, "kill shell", err)
		}
	}
	if proc != nil {
		if err := proc.Close(); err != nil && firstErr == nil {
			firstErr = wrapError(CodeCleanup, "close shell", err)
		}
	}
	if s.transcript != nil {
		if err := s.transcript.Close(); err != nil && firstErr == nil {
			firstErr = wrapError(CodeCleanup, "close transcript", err)
		}
	}
	return firstErr
}

// ID returns the session identifier.
func (s *ShellRPC) ID() string { return s.id }
