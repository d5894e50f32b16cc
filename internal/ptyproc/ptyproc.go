// Package ptyproc owns a single child shell attached to a PTY master.
package ptyproc

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
)

// Size is a PTY window size in columns and rows.
type Size struct {
	Cols uint16
	Rows uint16
}

// ShellConfig describes how to spawn a shell.
type ShellConfig struct {
	Argv []string
	Cwd  string
	Env  []string
}

// Process owns one child shell and its PTY master. Read and write use
// independent locks so a blocked reader never stalls a writer or vice versa.
type Process struct {
	cmd  *exec.Cmd
	ptmx *os.File

	readMu  sync.Mutex
	writeMu sync.Mutex

	exited    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open spawns shellCfg.Argv inside a new PTY of the given size.
// cwd is resolved once, at spawn time: the literal token "${USERPROFILE}" is
// substituted with the USERPROFILE environment variable (falling back to "."
// if unset); an empty cwd becomes "."; any other value is used verbatim.
func Open(shellCfg ShellConfig, size Size) (*Process, error) {
	if len(shellCfg.Argv) == 0 {
		return nil, errors.New("ptyproc: argv must not be empty")
	}

	cmd := exec.Command(shellCfg.Argv[0], shellCfg.Argv[1:]...)
	cmd.Dir = resolveCwd(shellCfg.Cwd)
	if len(shellCfg.Env) > 0 {
		cmd.Env = shellCfg.Env
	}

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{
		Cols: size.Cols,
		Rows: size.Rows,
	})
	if err != nil {
		return nil, err
	}

	p := &Process{cmd: cmd, ptmx: ptmx, done: make(chan struct{})}
	go p.waitExit()
	return p, nil
}

// waitExit reaps the child exactly once and flips the exited flag so IsAlive
// is a cheap non-blocking probe instead of a second, invalid Wait call. Close
// synchronizes on done rather than calling cmd.Wait() itself.
func (p *Process) waitExit() {
	_ = p.cmd.Wait()
	p.exited.Store(true)
	close(p.done)
}

func resolveCwd(cwd string) string {
	switch {
	case cwd == "${USERPROFILE}":
		if v := os.Getenv("USERPROFILE"); v != "" {
			return v
		}
		return "."
	case cwd == "":
		return "."
	default:
		return cwd
	}
}

// Write writes to the PTY master. Safe to call concurrently with Read.
func (p *Process) Write(data []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.exited.Load() {
		return 0, ErrClosed
	}
	return p.ptmx.Write(data)
}

// Read reads from the PTY master into buf. Safe to call concurrently with Write.
func (p *Process) Read(buf []byte) (int, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	return p.ptmx.Read(buf)
}

// ReadTimeout reads from the PTY master, returning os.ErrDeadlineExceeded
// (wrapped) if no data arrives within timeout. A timeout is not treated as a
// fatal read error by callers; they simply loop back and try again. If the
// PTY master does not accept a read deadline, it falls back to a plain
// blocking Read with no timeout.
func (p *Process) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	if err := p.ptmx.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return p.ptmx.Read(buf)
	}
	return p.ptmx.Read(buf)
}

// Resize changes the PTY window size.
func (p *Process) Resize(size Size) error {
	if p.exited.Load() {
		return ErrClosed
	}
	return creackpty.Setsize(p.ptmx, &creackpty.Winsize{
		Cols: size.Cols,
		Rows: size.Rows,
	})
}

// IsAlive performs a non-blocking probe for whether the child has exited.
func (p *Process) IsAlive() bool {
	return !p.exited.Load()
}

// Close kills the child, waits for its exit via waitExit, and releases the
// PTY handles. Idempotent: subsequent calls return the first call's result
// without re-running the teardown.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGKILL)
		}
		<-p.done
		p.closeErr = p.ptmx.Close()
	})
	return p.closeErr
}

// Pid returns the child process id, or 0 if the process never started.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
