// Package timeout implements the resilient three-timer supervisor that
// decides, from a stream of output chunks and elapsed time alone, whether
// a command is progressing, stalled, failed, or hung.
package timeout

import (
	"log/slog"
	"sync"
	"time"
)

// ResilientTimeout supervises one command. Stages move ACTIVE→GRACE→EXPIRED,
// with GRACE→ACTIVE recovery on a progress match; an error match
// short-circuits any stage straight to EXPIRED. Once EXPIRED nothing rearms.
type ResilientTimeout struct {
	cfg     Config
	matcher Matcher
	logger  *slog.Logger
	onEvent func(Event)

	mu         sync.Mutex
	stage      Stage
	started    bool
	stopped    bool
	gen        int // invalidates stale timer callbacks
	primary    *time.Timer
	grace      *time.Timer
	absolute   *time.Timer
	lastActive time.Time
	stats      Stats

	done   chan Reason
	reason Reason
}

// New builds a supervisor. The event callback may be nil; it is invoked
// synchronously and must not call back into the supervisor.
func New(cfg Config, matcher Matcher, logger *slog.Logger, onEvent func(Event)) *ResilientTimeout {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientTimeout{
		cfg:     cfg.Normalized(),
		matcher: matcher,
		logger:  logger,
		onEvent: onEvent,
		done:    make(chan Reason, 1),
	}
}

// Done delivers the termination reason exactly once, when the supervisor
// expires. A supervisor stopped before expiry never delivers.
func (t *ResilientTimeout) Done() <-chan Reason { return t.done }

// Stage reports the current lifecycle stage.
func (t *ResilientTimeout) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Start arms the primary and absolute timers. Idempotent.
func (t *ResilientTimeout) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	t.stage = StageActive
	t.lastActive = time.Now()
	t.armPrimaryLocked(t.cfg.Base)
	// The absolute ceiling is armed exactly once and never rearmed.
	t.absolute = time.AfterFunc(t.cfg.AbsoluteMax, t.onAbsolute)
	t.emitLocked(Event{Kind: EventStarted, To: StageActive, At: time.Now()})
	if t.cfg.Debug {
		t.logger.Debug("timeout started",
			"base", t.cfg.Base, "grace", t.cfg.Grace, "absolute", t.cfg.AbsoluteMax)
	}
}

// ProcessOutput feeds one chunk through the matcher and applies the
// resulting action. No-op once EXPIRED or stopped.
func (t *ResilientTimeout) ProcessOutput(chunk string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.stopped || t.stage == StageExpired {
		return
	}
	t.lastActive = time.Now()

	action := Action{Kind: ActionExtend}
	if t.matcher != nil {
		action = t.matcher.Process(chunk, t.cfg)
	}

	switch action.Kind {
	case ActionTerminate:
		// Error patterns win from any stage.
		t.expireLocked(ReasonErrorDetected, action.Pattern)
	case ActionReset:
		t.clearCommandTimersLocked()
		recovered := t.stage == StageGrace
		if recovered {
			t.stage = StageActive
			t.stats.GraceRecoveries++
			t.emitLocked(Event{Kind: EventStateChanged, From: StageGrace, To: StageActive, Reason: ReasonTimeoutReset, Pattern: action.Pattern, At: time.Now()})
			t.emitLocked(Event{Kind: EventGraceRecovered, From: StageGrace, To: StageActive, Pattern: action.Pattern, At: time.Now()})
		}
		t.armPrimaryLocked(t.cfg.Base)
		t.emitLocked(Event{Kind: EventActivity, To: t.stage, Reason: ReasonTimeoutReset, Pattern: action.Pattern, At: time.Now()})
		if t.cfg.Debug {
			t.logger.Debug("progress pattern reset", "pattern", action.Pattern, "recovered", recovered)
		}
	case ActionExtend:
		if t.stage == StageActive {
			t.armPrimaryLocked(t.cfg.ActivityExtension)
			t.emitLocked(Event{Kind: EventActivity, To: StageActive, At: time.Now()})
		} else {
			// Plain activity during GRACE is observed, never recovery.
			t.stats.GraceActivityObserved++
			t.emitLocked(Event{Kind: EventActivity, To: StageGrace, At: time.Now()})
		}
	}
}

// Stop clears every live timer and returns the accumulated statistics.
// Idempotent; stopping before expiry records a completion.
func (t *ResilientTimeout) Stop() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return t.stats
	}
	t.stopped = true
	t.clearAllTimersLocked()
	if t.started && t.stage != StageExpired {
		t.stats.Completions++
		t.reason = ReasonCompleted
	}
	t.emitLocked(Event{Kind: EventStopped, From: t.stage, To: t.stage, Reason: t.reason, At: time.Now()})
	return t.stats
}

// TerminationReason is valid once the supervisor expired or stopped.
func (t *ResilientTimeout) TerminationReason() Reason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

func (t *ResilientTimeout) onPrimary(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.stopped || t.stage != StageActive {
		return
	}
	t.stage = StageGrace
	t.primary = nil
	graceGen := t.gen
	t.grace = time.AfterFunc(t.cfg.Grace, func() { t.onGrace(graceGen) })
	t.emitLocked(Event{Kind: EventStateChanged, From: StageActive, To: StageGrace, Reason: ReasonPrimaryTimeout, At: time.Now()})
	t.emitLocked(Event{Kind: EventGraceEntered, From: StageActive, To: StageGrace, Reason: ReasonPrimaryTimeout, At: time.Now()})
	if t.cfg.Debug {
		t.logger.Debug("entered grace period", "grace", t.cfg.Grace)
	}
}

func (t *ResilientTimeout) onGrace(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.stopped || t.stage != StageGrace {
		return
	}
	t.expireLocked(ReasonGraceExpired, "")
}

func (t *ResilientTimeout) onAbsolute() {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Fires regardless of stage or activity.
	if t.stopped || t.stage == StageExpired {
		return
	}
	t.expireLocked(ReasonAbsoluteMaximum, "")
}

func (t *ResilientTimeout) expireLocked(reason Reason, pattern string) {
	from := t.stage
	t.stage = StageExpired
	t.reason = reason
	t.stats.Terminations++
	t.clearAllTimersLocked()
	t.emitLocked(Event{Kind: EventStateChanged, From: from, To: StageExpired, Reason: reason, Pattern: pattern, At: time.Now()})
	t.emitLocked(Event{Kind: EventExpired, From: from, To: StageExpired, Reason: reason, Pattern: pattern, At: time.Now()})
	if t.cfg.Debug {
		t.logger.Debug("timeout expired", "reason", string(reason), "pattern", pattern)
	}
	select {
	case t.done <- reason:
	default:
	}
}

func (t *ResilientTimeout) armPrimaryLocked(d time.Duration) {
	if t.primary != nil {
		t.primary.Stop()
	}
	t.gen++
	gen := t.gen
	t.primary = time.AfterFunc(d, func() { t.onPrimary(gen) })
}

func (t *ResilientTimeout) clearCommandTimersLocked() {
	if t.primary != nil {
		t.primary.Stop()
		t.primary = nil
	}
	if t.grace != nil {
		t.grace.Stop()
		t.grace = nil
	}
}

func (t *ResilientTimeout) clearAllTimersLocked() {
	t.clearCommandTimersLocked()
	if t.absolute != nil {
		t.absolute.Stop()
		t.absolute = nil
	}
}

func (t *ResilientTimeout) emitLocked(ev Event) {
	if t.onEvent != nil {
		t.onEvent(ev)
	}
}
