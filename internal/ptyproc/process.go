// Package ptyproc forks a child process attached to a pseudo-terminal and
// bridges its I/O to a caller-supplied pair of callbacks.
package ptyproc

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	goerrors "github.com/go-errors/errors"
	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"
)

const (
	maxReadChunk  = 65536
	defaultCols   = 80
	defaultRows   = 24
	envMarker     = "WEBTERM_SESSION=1"
	envTermColor  = "COLORTERM=truecolor"
	envTermTypeFn = "TERM=%s"
)

// Config controls the defaults and command-resolution inputs a Process uses
// when no per-spawn override is given.
type Config struct {
	// Term is the TERM value set in the child's environment.
	Term string
	// Shell is the login shell used when neither a per-session nor a
	// global Cmd is configured. Launched with "-il" (interactive login).
	Shell string
	// Cmd is the global command override, used when a spawn call's own
	// cmd argument is empty. Tokenized the same way.
	Cmd string
}

// Process owns one PTY-attached child. All exported methods are safe to
// call concurrently; internal state is guarded by mu.
type Process struct {
	cfg Config

	onOutput func([]byte)
	onExit   func()

	mu     sync.Mutex
	cmd    *exec.Cmd
	ptmx   *os.File
	pid    int
	closed bool
	once   sync.Once
}

// New constructs a Process. onOutput is invoked with each chunk read from
// the PTY master; onExit is invoked exactly once, after cleanup, when the
// child has exited (detected via EOF/EIO on the master fd, never via
// SIGCHLD — see package docs in session design notes).
func New(cfg Config, onOutput func([]byte), onExit func()) *Process {
	if cfg.Term == "" {
		cfg.Term = "xterm-256color"
	}
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	return &Process{cfg: cfg, onOutput: onOutput, onExit: onExit}
}

// Spawn forks the child and begins delivering output asynchronously. cols
// and rows of zero fall back to 80x24. cmd, if non-empty, is the
// per-session command and overrides Config.Cmd; resolution priority is
// cmd > Config.Cmd > login shell.
func (p *Process) Spawn(cols, rows int, cmd string) error {
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	argv, err := resolveArgv(cmd, p.cfg.Cmd, p.cfg.Shell)
	if err != nil {
		return fmt.Errorf("ptyproc: resolving command: %w", goerrors.Wrap(err, 0))
	}

	execCmd := exec.Command(argv[0], argv[1:]...)
	execCmd.Env = append(os.Environ(),
		fmt.Sprintf(envTermTypeFn, p.cfg.Term),
		envTermColor,
		envMarker,
		"SHELL="+argv[0],
	)

	ptmx, err := pty.StartWithSize(execCmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return fmt.Errorf("ptyproc: starting pty: %w", goerrors.Wrap(err, 0))
	}

	p.mu.Lock()
	p.cmd = execCmd
	p.ptmx = ptmx
	p.pid = execCmd.Process.Pid
	p.mu.Unlock()

	go p.readLoop()

	slog.Info("pty spawned", "pid", p.pid, "cols", cols, "rows", rows, "argv", strings.Join(argv, " "))
	return nil
}

// resolveArgv applies the spec's command-resolution priority: a per-spawn
// cmd overrides the process-wide cmd, which overrides the login shell.
func resolveArgv(spawnCmd, globalCmd, shell string) ([]string, error) {
	effective := spawnCmd
	if effective == "" {
		effective = globalCmd
	}
	if effective == "" {
		return []string{shell, "-il"}, nil
	}
	argv, err := shellquote.Split(effective)
	if err != nil || len(argv) == 0 {
		// Fall back to a plain whitespace split so a malformed quote
		// never prevents a session from starting.
		argv = strings.Fields(effective)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}

func (p *Process) readLoop() {
	buf := make([]byte, maxReadChunk)
	for {
		p.mu.Lock()
		ptmx := p.ptmx
		p.mu.Unlock()
		if ptmx == nil {
			return
		}

		n, err := ptmx.Read(buf)
		if n > 0 && p.onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.onOutput(chunk)
		}
		if err != nil {
			p.cleanup()
			return
		}
	}
}

// Write sends bytes to the PTY master. Silently ignored once closed; a
// write failure is treated as child exit, per the spec's error table.
func (p *Process) Write(data []byte) {
	p.mu.Lock()
	if p.closed || p.ptmx == nil {
		p.mu.Unlock()
		return
	}
	ptmx := p.ptmx
	p.mu.Unlock()

	if _, err := ptmx.Write(data); err != nil {
		slog.Warn("pty write failed, treating as exit", "pid", p.pid, "error", err)
		p.cleanup()
	}
}

// Resize updates the PTY window size. Silently ignored once closed.
func (p *Process) Resize(cols, rows int) {
	p.mu.Lock()
	if p.closed || p.ptmx == nil {
		p.mu.Unlock()
		return
	}
	ptmx := p.ptmx
	p.mu.Unlock()

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		slog.Warn("pty resize failed", "pid", p.pid, "error", err)
	}
}

// Close forces cleanup. Idempotent.
func (p *Process) Close() {
	p.cleanup()
}

// Alive reports whether the child has not yet signalled exit.
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// cleanup runs the spec's cleanup sequence at most once: close the fd,
// SIGHUP then SIGCONT the child (waking a stopped child so it can die),
// reap it non-blockingly, then fire on_exit.
func (p *Process) cleanup() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		ptmx := p.ptmx
		pid := p.pid
		p.ptmx = nil
		p.mu.Unlock()

		if ptmx != nil {
			_ = ptmx.Close()
		}

		if pid > 0 {
			_ = syscall.Kill(pid, syscall.SIGHUP)
			_ = syscall.Kill(pid, syscall.SIGCONT)

			var ws unix.WaitStatus
			_, _ = unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		}

		slog.Info("pty exited", "pid", pid)
		if p.onExit != nil {
			p.onExit()
		}
	})
}
