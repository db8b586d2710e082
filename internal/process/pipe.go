package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// pipeProcess is the raw child-process fallback: three piped streams and
// prompt suppression written immediately after spawn.
type pipeProcess struct {
	handlerSet

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	closeOnce sync.Once
	done      chan struct{}

	writeMu sync.Mutex
}

func buildCmd(opts Options) *exec.Cmd {
	cmd := exec.Command(opts.Shell, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}
	return cmd
}

func newPipeProcess(opts Options) (ShellProcess, error) {
	cmd := buildCmd(opts)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &pipeProcess{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	go p.readLoop(stdout)
	go p.readLoop(stderr)
	go p.waitLoop()

	// Suppress interactive prompts so framed output stays clean.
	for _, line := range opts.PromptSuppression {
		if werr := p.Write([]byte(line + opts.LineEnding)); werr != nil {
			break
		}
	}
	return p, nil
}

func (p *pipeProcess) readLoop(r io.Reader) {
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.emitData(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.emitError(err)
			}
			return
		}
	}
}

func (p *pipeProcess) waitLoop() {
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

func (p *pipeProcess) Write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.stdin.Write(data)
	return err
}

func (p *pipeProcess) OnData(fn func([]byte)) { p.setData(fn) }
func (p *pipeProcess) OnError(fn func(error)) { p.setError(fn) }
func (p *pipeProcess) OnExit(fn func(int))    { p.setExit(fn) }

func (p *pipeProcess) Kill(sig Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(signalFor(sig))
}

// Resize is a no-op: there is no terminal to size.
func (p *pipeProcess) Resize(cols, rows uint16) error { return nil }

func (p *pipeProcess) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return !p.hasExited()
	}
}

func (p *pipeProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.stdin.Close()
	})
	return err
}
