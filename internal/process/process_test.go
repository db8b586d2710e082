package process

import (
	"bytes"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSpawnRequiresShell(t *testing.T) {
	if _, err := NewManager(nil).Spawn(Options{}); err == nil {
		t.Fatal("expected error for empty shell")
	}
}

func TestHandlerSetBuffersEarlyData(t *testing.T) {
	h := &handlerSet{}
	h.emitData([]byte("first"))
	h.emitData([]byte("second"))

	var got bytes.Buffer
	h.setData(func(b []byte) { got.Write(b) })
	if got.String() != "firstsecond" {
		t.Fatalf("replay=%q, want firstsecond", got.String())
	}

	h.emitData([]byte("third"))
	if got.String() != "firstsecondthird" {
		t.Fatalf("after live emit=%q", got.String())
	}
}

func TestHandlerSetReplaysEarlyExit(t *testing.T) {
	h := &handlerSet{}
	h.emitExit(7)

	var mu sync.Mutex
	code := -1
	h.setExit(func(c int) {
		mu.Lock()
		code = c
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	if code != 7 {
		t.Fatalf("code=%d, want 7", code)
	}
}

func TestHandlerSetExitFiresOnce(t *testing.T) {
	h := &handlerSet{}
	count := 0
	h.setExit(func(int) { count++ })
	h.emitExit(0)
	h.emitExit(1)
	if count != 1 {
		t.Fatalf("exit fired %d times, want 1", count)
	}
}

func TestPipeBackendEchoRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell test")
	}
	proc, err := NewManager(nil).Spawn(Options{Shell: "/bin/sh", PreferPTY: false})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()
	defer proc.Kill(SigKill)

	var mu sync.Mutex
	var out bytes.Buffer
	proc.OnData(func(b []byte) {
		mu.Lock()
		out.Write(b)
		mu.Unlock()
	})

	if err := proc.Write([]byte("echo pipe_round_trip_ok\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		s := out.String()
		mu.Unlock()
		if strings.Contains(s, "pipe_round_trip_ok") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("echo output never arrived")
}

func TestPipeBackendExitReported(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell test")
	}
	proc, err := NewManager(nil).Spawn(Options{Shell: "/bin/sh", PreferPTY: false})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	exitCh := make(chan int, 1)
	proc.OnExit(func(code int) { exitCh <- code })

	if err := proc.Write([]byte("exit 3\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case code := <-exitCh:
		if code != 3 {
			t.Fatalf("exit code=%d, want 3", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exit never reported")
	}
	if proc.IsAlive() {
		t.Fatal("IsAlive=true after exit")
	}
}

func TestPipeBackendKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell test")
	}
	proc, err := NewManager(nil).Spawn(Options{Shell: "/bin/sh", PreferPTY: false})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()

	exitCh := make(chan int, 1)
	proc.OnExit(func(code int) { exitCh <- code })
	if err := proc.Kill(SigKill); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-exitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("killed shell never exited")
	}
}

func TestPipeResizeIsNoop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell test")
	}
	proc, err := NewManager(nil).Spawn(Options{Shell: "/bin/sh", PreferPTY: false})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer proc.Close()
	defer proc.Kill(SigKill)
	if err := proc.Resize(80, 24); err != nil {
		t.Fatalf("resize: %v", err)
	}
}
