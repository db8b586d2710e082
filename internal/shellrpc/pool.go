package shellrpc

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultPoolCapacity bounds how many sessions the pool retains.
const DefaultPoolCapacity = 5

type poolEntry struct {
	rpc  *ShellRPC
	busy bool
}

// Pool is a bounded cache of initialized engines keyed by caller-chosen
// strings, amortizing shell spawn cost across commands. It is explicitly
// constructed and torn down; there is no package-level instance.
type Pool struct {
	logger   *slog.Logger
	capacity int

	mu      sync.Mutex
	entries map[string]*poolEntry
}

func NewPool(capacity int, logger *slog.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		logger:   logger,
		capacity: capacity,
		entries:  make(map[string]*poolEntry),
	}
}

// Acquire returns the idle session cached under key, or creates and
// initializes a new one. At capacity, the returned session is ephemeral:
// it is not cached and the caller owns its Cleanup.
func (p *Pool) Acquire(ctx context.Context, key string, opts Options) (*ShellRPC, error) {
	p.mu.Lock()
	if e, ok := p.entries[key]; ok && !e.busy && e.rpc.Status().Alive {
		e.busy = true
		p.mu.Unlock()
		return e.rpc, nil
	}
	atCapacity := len(p.entries) >= p.capacity
	p.mu.Unlock()

	if opts.ID == "" {
		opts.ID = key
	}
	rpc, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := rpc.Initialize(ctx); err != nil {
		_ = rpc.Cleanup()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok && (e.busy || !e.rpc.Status().Alive) {
		// Key raced busy or dead while we were spawning; hand the fresh
		// session out as an ephemeral extra.
		p.logger.Debug("pool key busy, returning ephemeral session", "key", key)
		return rpc, nil
	}
	if atCapacity {
		p.logger.Debug("pool at capacity, returning ephemeral session", "key", key)
		return rpc, nil
	}
	p.entries[key] = &poolEntry{rpc: rpc, busy: true}
	return rpc, nil
}

// Release marks the pooled session idle without destroying it. Unknown
// keys are ignored.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		e.busy = false
	}
}

// Clear cleans up every pooled session and empties the pool.
func (p *Pool) Clear() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	var firstErr error
	for key, e := range entries {
		if err := e.rpc.Cleanup(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.logger.Debug("pool session cleaned up", "key", key)
	}
	return firstErr
}

// Size reports how many sessions the pool currently retains.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
