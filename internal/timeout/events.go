package timeout

import "time"

// Stage is the supervisor's lifecycle state.
type Stage int

const (
	StageActive Stage = iota
	StageGrace
	StageExpired
)

func (s Stage) String() string {
	switch s {
	case StageActive:
		return "active"
	case StageGrace:
		return "grace"
	case StageExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Reason explains a transition or termination.
type Reason string

const (
	ReasonPrimaryTimeout  Reason = "primary_timeout"
	ReasonGraceExpired    Reason = "grace_period_expired"
	ReasonErrorDetected   Reason = "error_detected"
	ReasonAbsoluteMaximum Reason = "absolute_maximum_reached"
	ReasonTimeoutReset    Reason = "timeout_reset"
	ReasonCompleted       Reason = "completed"
)

// EventKind enumerates the observable lifecycle of one supervisor.
type EventKind int

const (
	EventStarted EventKind = iota
	EventActivity
	EventStateChanged
	EventGraceEntered
	EventGraceRecovered
	EventExpired
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventActivity:
		return "activity"
	case EventStateChanged:
		return "state_changed"
	case EventGraceEntered:
		return "grace_entered"
	case EventGraceRecovered:
		return "grace_recovered"
	case EventExpired:
		return "expired"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is delivered to the registered callback. A state_changed event is
// always delivered before the expired event it causes.
type Event struct {
	Kind    EventKind
	From    Stage
	To      Stage
	Reason  Reason
	Pattern string
	At      time.Time
}

// Stats accumulates per-command supervision outcomes.
type Stats struct {
	Completions int
	// GraceRecoveries counts GRACE→ACTIVE transitions (progress match).
	GraceRecoveries int
	// GraceActivityObserved counts plain activity seen during GRACE; it is
	// tracked for diagnostics but never triggers recovery on its own.
	GraceActivityObserved int
	Terminations          int
}
