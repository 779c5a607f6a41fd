// Package pty runs shell commands under pseudo-terminals.
//
// [Manager] implements host.Processes. Each process runs as `sh -c
// <command>` on its own pty; output is forwarded to the OnStdout callback
// from a reader goroutine and OnExit fires once the process has been reaped.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/host"
)

const (
	defaultCols = 80
	defaultRows = 24

	// terminateGrace is how long Terminate waits after SIGHUP before SIGKILL.
	terminateGrace = 2 * time.Second

	// drainTimeout bounds how long output is drained after the process has
	// exited; background children may keep the pty open indefinitely.
	drainTimeout = 200 * time.Millisecond
)

// ErrNotRunning is returned when writing to a process that has exited or
// was never started.
var ErrNotRunning = errors.New("process not running")

// Manager tracks pty-backed processes. Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	procs  map[host.ProcessHandle]*proc
	logger *zap.Logger
}

// proc is a running child and its pty master.
type proc struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	drained chan struct{} // closed when the output reader returns
	done    chan struct{} // closed once the process has been reaped
}

var _ host.Processes = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for process lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		procs:  make(map[host.ProcessHandle]*proc),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Spawn starts command on a new pty. The buffer handle is not used by the
// Manager itself; hosts route output to it through opts.OnStdout.
func (m *Manager) Spawn(_ host.BufferHandle, command string, opts host.SpawnOptions) (host.ProcessHandle, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = buildEnv(opts.ClearEnv, opts.Env)

	cols, rows := opts.Columns, opts.Rows
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return "", fmt.Errorf("starting pty for %q: %w", command, err)
	}

	h := host.ProcessHandle(uuid.NewString())
	p := &proc{cmd: cmd, ptmx: ptmx, drained: make(chan struct{}), done: make(chan struct{})}

	m.mu.Lock()
	m.procs[h] = p
	m.mu.Unlock()

	m.logger.Debug("process started",
		zap.String("process", string(h)),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("command", command))

	go m.readOutput(p, opts.OnStdout)
	go m.wait(h, p, opts.OnExit)

	return h, nil
}

// readOutput copies pty output to onStdout until the pty is closed.
func (m *Manager) readOutput(p *proc, onStdout func([]byte)) {
	defer close(p.drained)
	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 && onStdout != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onStdout(chunk)
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the process, releases the pty and reports the exit code.
func (m *Manager) wait(h host.ProcessHandle, p *proc, onExit func(int)) {
	err := p.cmd.Wait()
	code := exitCode(err)

	select {
	case <-p.drained:
	case <-time.After(drainTimeout):
	}

	m.mu.Lock()
	delete(m.procs, h)
	m.mu.Unlock()

	_ = p.ptmx.Close()
	close(p.done)

	m.logger.Debug("process exited", zap.String("process", string(h)), zap.Int("code", code))
	if onExit != nil {
		onExit(code)
	}
}

// Write sends data to the process's terminal input.
func (m *Manager) Write(h host.ProcessHandle, data []byte) error {
	p, ok := m.lookup(h)
	if !ok || !p.alive() {
		return fmt.Errorf("write to %s: %w", h, ErrNotRunning)
	}
	if _, err := p.ptmx.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", h, err)
	}
	return nil
}

// Terminate hangs up the process and kills it if it has not exited within
// the grace period. Terminating an unknown or exited process returns nil.
func (m *Manager) Terminate(h host.ProcessHandle) error {
	p, ok := m.lookup(h)
	if !ok || !p.alive() {
		return nil
	}

	_ = p.cmd.Process.Signal(syscall.SIGHUP)
	select {
	case <-p.done:
		return nil
	case <-time.After(terminateGrace):
	}

	m.logger.Debug("process ignored hangup, killing", zap.String("process", string(h)))
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing %s: %w", h, err)
	}
	<-p.done
	return nil
}

// Running reports whether h is a live process.
func (m *Manager) Running(h host.ProcessHandle) bool {
	p, ok := m.lookup(h)
	return ok && p.alive()
}

// TerminateAll terminates every tracked process.
func (m *Manager) TerminateAll() {
	m.mu.Lock()
	handles := make([]host.ProcessHandle, 0, len(m.procs))
	for h := range m.procs {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		_ = m.Terminate(h)
	}
}

func (m *Manager) lookup(h host.ProcessHandle) (*proc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[h]
	return p, ok
}

// alive reports whether the process is still running.
func (p *proc) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// buildEnv returns the child environment: the parent's environment (unless
// clearEnv is set) followed by extra in sorted key order, plus TERM.
func buildEnv(clearEnv bool, extra map[string]string) []string {
	var env []string
	if !clearEnv {
		env = os.Environ()
	}
	env = append(env, "TERM=xterm-256color")

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// exitCode extracts the exit status from the error returned by Wait.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
