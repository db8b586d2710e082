package timeout

import (
	"sync"
	"testing"
	"time"
)

// actionMatcher returns a fixed action for every chunk.
type actionMatcher struct {
	action Action
}

func (m actionMatcher) Process(string, Config) Action { return m.action }

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func waitDone(t *testing.T, sup *ResilientTimeout, within time.Duration) Reason {
	t.Helper()
	select {
	case r := <-sup.Done():
		return r
	case <-time.After(within):
		t.Fatalf("supervisor did not expire within %s", within)
		return ""
	}
}

func TestSilentCommandWalksActiveGraceExpired(t *testing.T) {
	log := &eventLog{}
	sup := New(Config{
		Base:        40 * time.Millisecond,
		Grace:       40 * time.Millisecond,
		AbsoluteMax: 5 * time.Second,
	}, nil, nil, log.record)
	sup.Start()

	reason := waitDone(t, sup, 2*time.Second)
	if reason != ReasonGraceExpired {
		t.Fatalf("reason=%q, want %q", reason, ReasonGraceExpired)
	}
	if got := sup.Stage(); got != StageExpired {
		t.Fatalf("stage=%s, want %s", got, StageExpired)
	}

	kinds := log.kinds()
	want := []EventKind{EventStarted, EventStateChanged, EventGraceEntered, EventStateChanged, EventExpired}
	if len(kinds) != len(want) {
		t.Fatalf("events=%v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event[%d]=%s, want %s (full: %v)", i, kinds[i], want[i], kinds)
		}
	}
}

func TestActivityKeepsCommandAlive(t *testing.T) {
	sup := New(Config{
		Base:              60 * time.Millisecond,
		ActivityExtension: 60 * time.Millisecond,
		Grace:             60 * time.Millisecond,
		AbsoluteMax:       5 * time.Second,
	}, actionMatcher{Action{Kind: ActionExtend}}, nil, nil)
	sup.Start()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		sup.ProcessOutput("chunk")
		time.Sleep(10 * time.Millisecond)
	}
	if got := sup.Stage(); got != StageActive {
		t.Fatalf("stage=%s, want %s", got, StageActive)
	}
	stats := sup.Stop()
	if stats.Completions != 1 {
		t.Fatalf("completions=%d, want 1", stats.Completions)
	}
	if got := sup.TerminationReason(); got != ReasonCompleted {
		t.Fatalf("reason=%q, want %q", got, ReasonCompleted)
	}
	select {
	case r := <-sup.Done():
		t.Fatalf("unexpected expiry after stop: %q", r)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestProgressPatternRecoversFromGrace(t *testing.T) {
	log := &eventLog{}
	sup := New(Config{
		Base:        30 * time.Millisecond,
		Grace:       2 * time.Second,
		AbsoluteMax: 10 * time.Second,
	}, actionMatcher{Action{Kind: ActionReset, Pattern: "Collecting .+"}}, nil, log.record)
	sup.Start()

	waitForStage(t, sup, StageGrace, time.Second)
	sup.ProcessOutput("Collecting requests")
	if got := sup.Stage(); got != StageActive {
		t.Fatalf("stage=%s after progress, want %s", got, StageActive)
	}
	stats := sup.Stop()
	if stats.GraceRecoveries != 1 {
		t.Fatalf("graceRecoveries=%d, want 1", stats.GraceRecoveries)
	}

	recovered := false
	for _, k := range log.kinds() {
		if k == EventGraceRecovered {
			recovered = true
		}
	}
	if !recovered {
		t.Fatalf("no grace_recovered event in %v", log.kinds())
	}
}

func TestPlainActivityInGraceNeverRecovers(t *testing.T) {
	sup := New(Config{
		Base:        30 * time.Millisecond,
		Grace:       2 * time.Second,
		AbsoluteMax: 10 * time.Second,
	}, actionMatcher{Action{Kind: ActionExtend}}, nil, nil)
	sup.Start()

	waitForStage(t, sup, StageGrace, time.Second)
	sup.ProcessOutput("some unrecognized noise")
	sup.ProcessOutput("more noise")
	if got := sup.Stage(); got != StageGrace {
		t.Fatalf("stage=%s after plain activity, want %s", got, StageGrace)
	}
	stats := sup.Stop()
	if stats.GraceActivityObserved != 2 {
		t.Fatalf("graceActivityObserved=%d, want 2", stats.GraceActivityObserved)
	}
	if stats.GraceRecoveries != 0 {
		t.Fatalf("graceRecoveries=%d, want 0", stats.GraceRecoveries)
	}
}

func TestErrorPatternTerminatesFromActive(t *testing.T) {
	sup := New(Config{
		Base:        5 * time.Second,
		Grace:       5 * time.Second,
		AbsoluteMax: 30 * time.Second,
	}, actionMatcher{Action{Kind: ActionTerminate, Pattern: "ERROR: .+"}}, nil, nil)
	sup.Start()

	sup.ProcessOutput("ERROR: No matching distribution found")
	reason := waitDone(t, sup, time.Second)
	if reason != ReasonErrorDetected {
		t.Fatalf("reason=%q, want %q", reason, ReasonErrorDetected)
	}
	stats := sup.Stop()
	if stats.Terminations != 1 {
		t.Fatalf("terminations=%d, want 1", stats.Terminations)
	}
}

func TestAbsoluteCeilingIgnoresProgress(t *testing.T) {
	sup := New(Config{
		Base:              50 * time.Millisecond,
		ActivityExtension: 50 * time.Millisecond,
		Grace:             50 * time.Millisecond,
		AbsoluteMax:       200 * time.Millisecond,
	}, actionMatcher{Action{Kind: ActionReset, Pattern: "busy"}}, nil, nil)
	sup.Start()

	// Constant progress must not outlive the absolute maximum.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case reason := <-sup.Done():
			if reason != ReasonAbsoluteMaximum {
				t.Fatalf("reason=%q, want %q", reason, ReasonAbsoluteMaximum)
			}
			return
		case <-time.After(10 * time.Millisecond):
			sup.ProcessOutput("busy")
		}
	}
	t.Fatal("absolute ceiling never fired")
}

func TestOutputAfterExpiryIsIgnored(t *testing.T) {
	sup := New(Config{
		Base:        20 * time.Millisecond,
		Grace:       20 * time.Millisecond,
		AbsoluteMax: 5 * time.Second,
	}, actionMatcher{Action{Kind: ActionReset, Pattern: "late"}}, nil, nil)
	sup.Start()

	waitDone(t, sup, 2*time.Second)
	sup.ProcessOutput("late progress")
	if got := sup.Stage(); got != StageExpired {
		t.Fatalf("stage=%s after post-expiry output, want %s", got, StageExpired)
	}
	if got := sup.TerminationReason(); got != ReasonGraceExpired {
		t.Fatalf("reason=%q, want %q", got, ReasonGraceExpired)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	sup := New(Config{Base: time.Second, Grace: time.Second, AbsoluteMax: 10 * time.Second}, nil, nil, nil)
	sup.Start()
	sup.Start()
	stats := sup.Stop()
	if stats.Completions != 1 {
		t.Fatalf("completions=%d, want 1", stats.Completions)
	}
	// Stop after stop keeps the stats stable.
	if again := sup.Stop(); again != stats {
		t.Fatalf("second stop changed stats: %+v vs %+v", again, stats)
	}
}

func TestNormalizedDefaults(t *testing.T) {
	cfg := Config{}.Normalized()
	if cfg.Base != 30*time.Second {
		t.Fatalf("base=%s, want 30s", cfg.Base)
	}
	if cfg.ActivityExtension != cfg.Base/2 {
		t.Fatalf("extension=%s, want %s", cfg.ActivityExtension, cfg.Base/2)
	}
	if cfg.Grace != 10*time.Second {
		t.Fatalf("grace=%s, want 10s", cfg.Grace)
	}
	if cfg.AbsoluteMax != 3*cfg.Base {
		t.Fatalf("absolute=%s, want %s", cfg.AbsoluteMax, 3*cfg.Base)
	}
}

func waitForStage(t *testing.T, sup *ResilientTimeout, want Stage, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if sup.Stage() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stage never reached %s (now %s)", want, sup.Stage())
}
