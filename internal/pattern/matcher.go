// Package pattern classifies shell output and command text: the Matcher
// maps output chunks to timeout actions, the Classifier maps a literal
// command to a behavioral category and its tuned timeout configuration.
package pattern

import (
	"log/slog"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/antonkrylov/shellrpc/internal/timeout"
)

// cacheSize bounds the compiled-regexp cache.
const cacheSize = 100

// Matcher classifies output chunks against a config's pattern lists,
// compiling expressions lazily into an instance-owned LRU cache.
type Matcher struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, *regexp.Regexp]
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, *regexp.Regexp](cacheSize)
	return &Matcher{cache: cache, logger: logger}
}

// Process tests every error pattern first (first match wins, terminate),
// then every progress pattern (first match wins, reset), and otherwise
// reports plain activity.
func (m *Matcher) Process(chunk string, cfg timeout.Config) timeout.Action {
	for _, p := range cfg.ErrorPatterns {
		if m.matches(p, chunk) {
			return timeout.Action{Kind: timeout.ActionTerminate, Pattern: p}
		}
	}
	for _, p := range cfg.ProgressPatterns {
		if m.matches(p, chunk) {
			return timeout.Action{Kind: timeout.ActionReset, Pattern: p}
		}
	}
	return timeout.Action{Kind: timeout.ActionExtend}
}

func (m *Matcher) matches(pattern, chunk string) bool {
	re := m.compile(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(chunk)
}

func (m *Matcher) compile(pattern string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.cache.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		m.logger.Warn("invalid pattern ignored", "pattern", pattern, "err", err)
		return nil
	}
	m.cache.Add(pattern, re)
	return re
}
