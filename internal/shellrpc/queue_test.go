package shellrpc

import (
	"testing"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a", "echo a", 0)
	q.Enqueue("b", "echo b", 0)
	q.Enqueue("c", "echo c", 0)

	var order []string
	for i := 0; i < 3; i++ {
		p := q.ProcessNext()
		if p == nil {
			t.Fatalf("ProcessNext returned nil at %d", i)
		}
		order = append(order, p.ID)
		q.Complete(&CommandResult{Command: p.Command})
	}
	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order=%v, want [a b c]", order)
	}
}

func TestQueueOneCommandAtATime(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a", "sleep 1", 0)
	q.Enqueue("b", "echo b", 0)

	first := q.ProcessNext()
	if first == nil {
		t.Fatal("expected first command")
	}
	if p := q.ProcessNext(); p != nil {
		t.Fatalf("ProcessNext while busy returned %q", p.ID)
	}
	q.Complete(&CommandResult{})
	second := q.ProcessNext()
	if second == nil || second.ID != "b" {
		t.Fatalf("second=%v, want b", second)
	}
}

func TestQueueProcessNextStampsStart(t *testing.T) {
	q := NewQueue()
	p := q.Enqueue("a", "echo", 0)
	if !p.StartedAt.IsZero() {
		t.Fatal("StartedAt stamped before start")
	}
	got := q.ProcessNext()
	if got.StartedAt.IsZero() {
		t.Fatal("StartedAt not stamped by ProcessNext")
	}
	if got.EnqueuedAt.After(got.StartedAt) {
		t.Fatal("enqueue time after start time")
	}
}

func TestQueueCompleteSettlesWaiter(t *testing.T) {
	q := NewQueue()
	p := q.Enqueue("a", "echo hi", 0)
	q.ProcessNext()

	go q.Complete(&CommandResult{Command: "echo hi", Stdout: "hi"})
	res, err := p.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "hi" {
		t.Fatalf("stdout=%q, want hi", res.Stdout)
	}
}

func TestQueueFailSettlesWithError(t *testing.T) {
	q := NewQueue()
	p := q.Enqueue("a", "bad", 0)
	q.ProcessNext()
	q.Fail(newError(CodeCommandTimeout, "budget exhausted"))

	res, err := p.Wait()
	if res != nil {
		t.Fatalf("result=%v, want nil", res)
	}
	if CodeOf(err) != CodeCommandTimeout {
		t.Fatalf("code=%q, want command_timeout", CodeOf(err))
	}
}

func TestQueueClearAllFlushesEverything(t *testing.T) {
	q := NewQueue()
	running := q.Enqueue("a", "sleep", 0)
	queued1 := q.Enqueue("b", "echo", 0)
	queued2 := q.Enqueue("c", "echo", 0)
	q.ProcessNext()

	q.ClearAll(newError(CodeShellDied, "shell exited with code 137"))

	for _, p := range []*Pending{running, queued1, queued2} {
		_, err := p.Wait()
		if CodeOf(err) != CodeShellDied {
			t.Fatalf("command %s: code=%q, want shell_died", p.ID, CodeOf(err))
		}
	}
	stats := q.Stats()
	if stats.Failed != 1 || stats.Flushed != 2 {
		t.Fatalf("stats=%+v, want Failed=1 Flushed=2", stats)
	}
	if stats.Depth != 0 || stats.Running {
		t.Fatalf("queue not empty after ClearAll: %+v", stats)
	}
}

func TestQueueStatsSnapshot(t *testing.T) {
	q := NewQueue()
	q.Enqueue("a", "echo", 0)
	q.Enqueue("b", "echo", 0)

	s := q.Stats()
	if s.Depth != 2 || s.Running {
		t.Fatalf("stats=%+v, want Depth=2 Running=false", s)
	}
	q.ProcessNext()
	s = q.Stats()
	if s.Depth != 1 || !s.Running {
		t.Fatalf("stats=%+v, want Depth=1 Running=true", s)
	}
}

func TestPendingSettleIsIdempotent(t *testing.T) {
	q := NewQueue()
	p := q.Enqueue("a", "echo", 0)
	q.ProcessNext()

	q.Complete(&CommandResult{Stdout: "first"})
	// A second settle on the same Pending must be swallowed.
	p.settle(&CommandResult{Stdout: "second"}, nil)

	res, err := p.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "first" {
		t.Fatalf("stdout=%q, want first", res.Stdout)
	}
}
