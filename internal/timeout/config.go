package timeout

import "time"

// Config tunes one command's supervision. Built once per command, from
// classification or a caller override, and never mutated afterwards.
type Config struct {
	// Base is the inactivity window while ACTIVE; a progress match rearms
	// the primary timer for this full duration.
	Base time.Duration
	// ActivityExtension is the shorter rearm applied on plain activity
	// ("something happened but it is not confirmed progress").
	ActivityExtension time.Duration
	// Grace is the second-chance window entered after Base expires.
	Grace time.Duration
	// AbsoluteMax bounds the whole command, including pathological cycles
	// of repeated grace recovery.
	AbsoluteMax time.Duration

	// ProgressPatterns reset the primary timer; ErrorPatterns terminate
	// immediately. Order matters: first match wins within each list, and
	// error patterns always win over progress patterns.
	ProgressPatterns []string
	ErrorPatterns    []string

	Debug bool
}

// Normalized returns a copy with zero fields replaced by safe defaults.
func (c Config) Normalized() Config {
	if c.Base <= 0 {
		c.Base = 30 * time.Second
	}
	if c.ActivityExtension <= 0 {
		c.ActivityExtension = c.Base / 2
	}
	if c.Grace <= 0 {
		c.Grace = 10 * time.Second
	}
	if c.AbsoluteMax <= 0 {
		c.AbsoluteMax = 3 * c.Base
	}
	return c
}

// ActionKind tags the result of classifying one output chunk.
type ActionKind int

const (
	// ActionExtend: ordinary activity, no pattern matched.
	ActionExtend ActionKind = iota
	// ActionReset: a progress pattern matched.
	ActionReset
	// ActionTerminate: an error pattern matched.
	ActionTerminate
)

// Action is the tagged classification result; Pattern is set for reset
// and terminate actions.
type Action struct {
	Kind    ActionKind
	Pattern string
}

// Matcher classifies output chunks against a Config's pattern lists.
// internal/pattern provides the cached-regexp implementation.
type Matcher interface {
	Process(chunk string, cfg Config) Action
}
