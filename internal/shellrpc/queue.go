package shellrpc

import (
	"sync"
	"time"
)

// CommandResult is the immutable value returned to the caller.
type CommandResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

type outcome struct {
	result *CommandResult
	err    error
}

// Pending is one queued command and the channel its caller awaits.
type Pending struct {
	ID         string
	Command    string
	Timeout    time.Duration
	EnqueuedAt time.Time
	StartedAt  time.Time

	ch   chan outcome
	once sync.Once
}

func (p *Pending) settle(res *CommandResult, err error) {
	p.once.Do(func() {
		p.ch <- outcome{result: res, err: err}
		close(p.ch)
	})
}

// Wait blocks until the command settles.
func (p *Pending) Wait() (*CommandResult, error) {
	out := <-p.ch
	return out.result, out.err
}

// QueueStats is a point-in-time snapshot.
type QueueStats struct {
	Depth    int
	Running  bool
	Executed int
	Failed   int
	Flushed  int
}

// Queue serializes commands against one shell: at most one command is
// current at any instant, and pending commands settle in FIFO order.
type Queue struct {
	mu      sync.Mutex
	items   []*Pending
	current *Pending
	stats   QueueStats
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends without auto-starting; the caller drives ProcessNext.
func (q *Queue) Enqueue(id, command string, timeout time.Duration) *Pending {
	p := &Pending{
		ID:         id,
		Command:    command,
		Timeout:    timeout,
		EnqueuedAt: time.Now(),
		ch:         make(chan outcome, 1),
	}
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	return p
}

// ProcessNext pops the head only when nothing is running; it returns nil
// when busy or empty, and stamps the start time otherwise.
func (q *Queue) ProcessNext() *Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil || len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	p.StartedAt = time.Now()
	q.current = p
	return p
}

// Current returns the in-flight command, if any.
func (q *Queue) Current() *Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Complete settles the current command successfully and clears it.
func (q *Queue) Complete(res *CommandResult) {
	q.mu.Lock()
	p := q.current
	q.current = nil
	if p != nil {
		q.stats.Executed++
	}
	q.mu.Unlock()
	if p != nil {
		p.settle(res, nil)
	}
}

// Fail settles the current command with an error and clears it.
func (q *Queue) Fail(err error) {
	q.mu.Lock()
	p := q.current
	q.current = nil
	if p != nil {
		q.stats.Failed++
	}
	q.mu.Unlock()
	if p != nil {
		p.settle(nil, err)
	}
}

// ClearAll rejects the current command and every queued command with the
// same error. Used on fatal shell death.
func (q *Queue) ClearAll(err error) {
	q.mu.Lock()
	p := q.current
	items := q.items
	q.current = nil
	q.items = nil
	q.stats.Flushed += len(items)
	if p != nil {
		q.stats.Failed++
	}
	q.mu.Unlock()
	if p != nil {
		p.settle(nil, err)
	}
	for _, it := range items {
		it.settle(nil, err)
	}
}

// Stats snapshots the queue counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Depth = len(q.items)
	s.Running = q.current != nil
	return s
}
