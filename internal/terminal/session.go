// Package terminal manages a single toggleable terminal session.
//
// A Session owns at most one surface, one buffer and one pseudo-terminal
// process, all referenced through host handles. Hiding the surface keeps the
// buffer and process alive so the terminal can be toggled back instantly;
// a forced close tears everything down.
//
// The host may invalidate any handle out-of-band and process exit
// notifications arrive asynchronously, so every operation re-validates the
// handles it is about to use and every release path checks liveness first.
package terminal

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/geometry"
	"github.com/fakeyudi/popterm/internal/host"
)

// carriageReturn submits a line written to the terminal.
const carriageReturn = "\r"

// ErrNoProcess is returned by Run when no live process can receive input.
var ErrNoProcess = errors.New("terminal has no running process")

// SpawnError reports that the host refused to start the terminal process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// State is the lifecycle state of a Session.
type State int

const (
	// Closed: no surface is shown. A buffer and process may be retained.
	Closed State = iota
	// Open: surface and buffer exist but no process is attached.
	Open
	// Running: surface, buffer and process all exist.
	Running
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handles is a snapshot of the handles held by a Session.
type Handles struct {
	Surface host.SurfaceHandle
	Buffer  host.BufferHandle
	Process host.ProcessHandle
}

// Session is a toggleable terminal bound to a host. The zero value is not
// usable; create one with New.
type Session struct {
	mu      sync.Mutex
	host    host.Host
	cfg     config.Config
	logger  *zap.Logger
	title   string
	surface host.SurfaceHandle
	buffer  host.BufferHandle
	process host.ProcessHandle

	onStdout func([]byte)
	onStderr func([]byte)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTitle sets the title shown on the surface border.
func WithTitle(title string) Option {
	return func(s *Session) { s.title = title }
}

// WithOutput registers callbacks that observe process output.
func WithOutput(stdout, stderr func([]byte)) Option {
	return func(s *Session) {
		s.onStdout = stdout
		s.onStderr = stderr
	}
}

// New returns a closed Session using cfg for every subsequent open.
func New(h host.Host, cfg config.Config, opts ...Option) *Session {
	s := &Session{
		host:   h,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reconfigure replaces the configuration used by the next Open. A surface
// or process that is already live keeps its settings.
func (s *Session) Reconfigure(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Config returns the configuration used by the next Open.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns the current lifecycle state, re-validated against the host.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revalidate()
	switch {
	case s.surface == "":
		return Closed
	case s.process == "":
		return Open
	default:
		return Running
	}
}

// Handles returns the handles currently held, re-validated against the host.
func (s *Session) Handles() Handles {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revalidate()
	return Handles{Surface: s.surface, Buffer: s.buffer, Process: s.process}
}

// Open shows the terminal. If the surface is already shown it is focused
// and nothing else happens. Otherwise the retained buffer is reattached
// when its process is still running, or a fresh buffer and process are
// created. explicit, when given, replaces the configured shell command for
// a freshly spawned process.
func (s *Session) Open(explicit ...config.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(explicit)
}

func (s *Session) open(explicit []config.Command) error {
	s.revalidate()

	if s.surface != "" {
		return s.host.FocusSurface(s.surface)
	}

	if s.buffer != "" && s.process != "" {
		return s.reattach()
	}
	if s.buffer != "" {
		// The process is gone; a dead terminal buffer cannot host a new one.
		s.logger.Debug("replacing buffer of exited process", zap.String("buffer", string(s.buffer)))
		s.destroyBuffer()
	}
	return s.openFresh(explicit)
}

// reattach shows the retained buffer, whose process is still running.
func (s *Session) reattach() error {
	surface, err := s.createSurface(s.buffer)
	if err != nil {
		return err
	}
	if err := s.bindClose(s.buffer); err != nil {
		_ = s.host.CloseSurface(surface)
		return err
	}
	s.surface = surface
	s.logger.Debug("terminal reattached",
		zap.String("surface", string(s.surface)),
		zap.String("buffer", string(s.buffer)),
		zap.String("process", string(s.process)))
	return s.host.FocusSurface(s.surface)
}

// openFresh creates buffer, surface and process. Configuration errors are
// raised before any host resource exists; later failures release whatever
// was created.
func (s *Session) openFresh(explicit []config.Command) (err error) {
	command, err := s.resolveCommand(explicit)
	if err != nil {
		return err
	}
	rect := geometry.Calculate(s.cfg.Dimensions, s.host.ViewportSize())

	buffer, err := s.host.CreateBuffer(true)
	if err != nil {
		return fmt.Errorf("creating buffer: %w", err)
	}
	var surface host.SurfaceHandle
	committed := false
	defer func() {
		if err == nil || committed {
			return
		}
		if surface != "" && s.host.SurfaceValid(surface) {
			_ = s.host.CloseSurface(surface)
		}
		if s.host.BufferLoaded(buffer) {
			_ = s.host.DestroyBuffer(buffer, true)
		}
	}()

	surface, err = s.createSurfaceAt(buffer, rect)
	if err != nil {
		return err
	}
	if err = s.host.SetBufferTag(buffer, s.cfg.Filetype); err != nil {
		return fmt.Errorf("tagging buffer: %w", err)
	}

	// The exit closure reads process under s.mu, which is held until the
	// handle has been stored.
	var process host.ProcessHandle
	cols, rows := rect.Inner(config.Bordered(s.cfg.Border))
	process, err = s.host.Spawn(buffer, command, host.SpawnOptions{
		ClearEnv: s.cfg.ClearEnv,
		Env:      s.cfg.Env,
		Columns:  cols,
		Rows:     rows,
		OnStdout: s.onStdout,
		OnStderr: s.onStderr,
		OnExit:   func(code int) { s.handleExit(&process, code) },
	})
	if err != nil {
		return &SpawnError{Command: command, Err: err}
	}
	if err = s.bindClose(buffer); err != nil {
		_ = s.host.Terminate(process)
		return err
	}

	s.surface, s.buffer, s.process = surface, buffer, process
	committed = true
	s.logger.Debug("terminal opened",
		zap.String("surface", string(surface)),
		zap.String("buffer", string(buffer)),
		zap.String("process", string(process)),
		zap.String("command", command))
	return s.host.FocusSurface(surface)
}

// handleExit runs when the process registered as *registered terminates.
// Notifications for a process the session no longer holds are ignored.
func (s *Session) handleExit(registered *host.ProcessHandle, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if *registered == "" || s.process != *registered {
		s.logger.Debug("ignoring exit of released process",
			zap.String("process", string(*registered)), zap.Int("code", code))
		return
	}
	s.logger.Debug("process exited", zap.String("process", string(s.process)), zap.Int("code", code))
	s.process = ""
	if !s.cfg.AutoClose {
		return
	}
	if s.surface != "" && s.host.SurfaceValid(s.surface) {
		_ = s.host.CloseSurface(s.surface)
	}
	s.surface = ""
	// A buffer whose process has exited can never be reattached; the next
	// open would replace it anyway, so release it with the surface.
	_ = s.destroyBuffer()
}

func (s *Session) resolveCommand(explicit []config.Command) (string, error) {
	if len(explicit) > 0 {
		command, err := explicit[0].Evaluate()
		if err != nil {
			return "", &config.ConfigurationError{Field: "cmd", Err: err}
		}
		if command != "" {
			return command, nil
		}
	}
	return s.cfg.ShellCommand()
}

func (s *Session) createSurface(buffer host.BufferHandle) (host.SurfaceHandle, error) {
	rect := geometry.Calculate(s.cfg.Dimensions, s.host.ViewportSize())
	return s.createSurfaceAt(buffer, rect)
}

// createSurfaceAt creates a surface and applies display options, closing it
// again if the options are rejected.
func (s *Session) createSurfaceAt(buffer host.BufferHandle, rect geometry.Rect) (host.SurfaceHandle, error) {
	surface, err := s.host.CreateSurface(buffer, host.SurfaceConfig{
		Rect:   rect,
		Border: s.cfg.Border,
		Title:  s.title,
	})
	if err != nil {
		return "", fmt.Errorf("creating surface: %w", err)
	}
	if err := s.host.SetDisplayOptions(surface, host.DisplayOptions{
		Highlight: s.cfg.Highlight,
		Opacity:   s.cfg.Blend,
	}); err != nil {
		_ = s.host.CloseSurface(surface)
		return "", fmt.Errorf("applying display options: %w", err)
	}
	return surface, nil
}

// bindClose binds the close key in the scope of buffer. The binding hides
// the surface; it never runs synchronously from Bind.
func (s *Session) bindClose(buffer host.BufferHandle) error {
	if s.cfg.Keys.Close == "" {
		return nil
	}
	if err := s.host.Bind(s.cfg.Keys.Close, buffer, func() { _ = s.Close(false) }); err != nil {
		return fmt.Errorf("binding %q: %w", s.cfg.Keys.Close, err)
	}
	return nil
}

// Close hides the terminal. With force the process is terminated and the
// buffer destroyed as well; without it both are kept for the next Open.
// Closing a session whose surface is not shown does nothing.
func (s *Session) Close(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close(force)
}

func (s *Session) close(force bool) error {
	s.revalidate()
	if s.surface == "" {
		return nil
	}

	err := s.host.CloseSurface(s.surface)
	s.logger.Debug("terminal hidden", zap.String("surface", string(s.surface)), zap.Bool("force", force))
	s.surface = ""
	if force {
		err = errors.Join(err, s.teardown())
	}
	return err
}

// Shutdown terminates the process and destroys the buffer even when the
// surface is hidden. Use it when the host application exits.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revalidate()

	var err error
	if s.surface != "" {
		err = s.host.CloseSurface(s.surface)
		s.surface = ""
	}
	return errors.Join(err, s.teardown())
}

// Toggle hides a shown terminal and shows a hidden one.
func (s *Session) Toggle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revalidate()
	if s.surface != "" {
		return s.close(false)
	}
	return s.open(nil)
}

// Run opens the terminal if needed and submits cmd as one input line.
// Delivery is fire-and-forget: the outcome of the command is only visible
// in the terminal.
func (s *Session) Run(cmd config.Command) error {
	line, err := cmd.Evaluate()
	if err != nil {
		return &config.ConfigurationError{Field: "run", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(nil); err != nil {
		return err
	}
	if s.process == "" {
		// The shown terminal's process has exited; start over.
		if err := s.close(true); err != nil {
			return err
		}
		if err := s.open(nil); err != nil {
			return err
		}
	}
	if s.process == "" {
		return ErrNoProcess
	}

	if err := s.host.Write(s.process, []byte(line+carriageReturn)); err != nil {
		return fmt.Errorf("writing to terminal: %w", err)
	}
	s.logger.Debug("line submitted", zap.String("process", string(s.process)), zap.String("line", line))
	return nil
}

// teardown terminates the process and destroys the buffer, skipping
// whichever is already gone. Caller holds s.mu.
func (s *Session) teardown() error {
	var err error
	if s.process != "" {
		err = s.host.Terminate(s.process)
		s.logger.Debug("process terminated", zap.String("process", string(s.process)))
		s.process = ""
	}
	return errors.Join(err, s.destroyBuffer())
}

// destroyBuffer destroys the buffer if it is still loaded. Caller holds s.mu.
func (s *Session) destroyBuffer() error {
	if s.buffer == "" {
		return nil
	}
	var err error
	if s.host.BufferLoaded(s.buffer) {
		err = s.host.DestroyBuffer(s.buffer, true)
	}
	s.buffer = ""
	return err
}

// revalidate drops handles the host no longer recognises. A process whose
// buffer vanished is terminated so a process never outlives its buffer.
// Caller holds s.mu.
func (s *Session) revalidate() {
	if s.surface != "" && !s.host.SurfaceValid(s.surface) {
		s.logger.Debug("stale surface dropped", zap.String("surface", string(s.surface)))
		s.surface = ""
	}
	if s.buffer != "" && !s.host.BufferLoaded(s.buffer) {
		s.logger.Debug("stale buffer dropped", zap.String("buffer", string(s.buffer)))
		s.buffer = ""
		if s.process != "" {
			_ = s.host.Terminate(s.process)
			s.process = ""
		}
	}
}
