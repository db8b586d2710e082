//go:build !windows

package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

var osSigTerm os.Signal = syscall.SIGTERM

// ptyProcess runs the shell behind a pseudo-terminal.
type ptyProcess struct {
	handlerSet

	cmd       *exec.Cmd
	f         *os.File
	closeOnce sync.Once
	done      chan struct{}
}

func newPTYProcess(opts Options) (ShellProcess, error) {
	cmd := buildCmd(opts)
	ws := &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows}

	f, err := startPTY(cmd, ws, true)
	if err != nil && strings.Contains(err.Error(), "Setctty set but Ctty not valid") {
		// Some platforms/Go versions reject Setctty; retry without a
		// controlling terminal, which is sufficient for shell I/O.
		cmd = buildCmd(opts)
		f, err = startPTY(cmd, ws, false)
	}
	if err != nil {
		return nil, err
	}

	p := &ptyProcess{cmd: cmd, f: f, done: make(chan struct{})}
	go p.readLoop()
	go p.waitLoop()
	return p, nil
}

func startPTY(cmd *exec.Cmd, ws *pty.Winsize, setCTTY bool) (*os.File, error) {
	ptyFile, ttyFile, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ttyFile.Close() }()

	if ws != nil {
		_ = pty.Setsize(ptyFile, ws)
	}

	cmd.Stdin = ttyFile
	cmd.Stdout = ttyFile
	cmd.Stderr = ttyFile

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = setCTTY
	// Ctty is interpreted in the child's fd space after dup, where the
	// tty is stdin. A parent-space fd here makes Start fail with "Setctty
	// set but Ctty not valid in child".
	cmd.SysProcAttr.Ctty = 0

	if err := cmd.Start(); err != nil {
		_ = ptyFile.Close()
		return nil, err
	}
	return ptyFile, nil
}

func (p *ptyProcess) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := p.f.Read(buf)
		if n > 0 {
			p.emitData(buf[:n])
		}
		if err != nil {
			// EIO is the normal PTY read error once the child exits.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) {
				p.emitError(err)
			}
			return
		}
	}
}

func (p *ptyProcess) waitLoop() {
	err := p.cmd.Wait()
	close(p.done)
	code := 0
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	} else if err != nil {
		code = -1
	}
	p.emitExit(code)
}

func (p *ptyProcess) Write(data []byte) error {
	_, err := p.f.Write(data)
	return err
}

func (p *ptyProcess) OnData(fn func([]byte)) { p.setData(fn) }
func (p *ptyProcess) OnError(fn func(error)) { p.setError(fn) }
func (p *ptyProcess) OnExit(fn func(int))    { p.setExit(fn) }

func (p *ptyProcess) Kill(sig Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(signalFor(sig))
}

func (p *ptyProcess) Resize(cols, rows uint16) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: cols, Rows: rows})
}

func (p *ptyProcess) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return !p.hasExited()
	}
}

func (p *ptyProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.f.Close()
	})
	return err
}
