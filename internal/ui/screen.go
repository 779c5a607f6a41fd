// Package ui is the bundled host: a Bubble Tea screen that shows terminal
// surfaces as bordered boxes over a status page.
//
// [Screen] implements every host interface a terminal session consumes.
// Process I/O is delegated to a host.Processes (normally a pty.Manager);
// output and exit notifications are marshalled onto the Bubble Tea event
// loop so all screen state is mutated from one goroutine.
package ui

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/host"
)

// scrollback is the number of output lines kept per buffer.
const scrollback = 2000

// ErrNoSource is returned by CurrentFile when no file has been set.
var ErrNoSource = errors.New("no current file")

var (
	_ host.Host          = (*Screen)(nil)
	_ host.Commands      = (*Screen)(nil)
	_ host.SourceContext = (*Screen)(nil)
	_ host.GlobalKeymap  = (*Screen)(nil)
	_ tea.Model          = (*Screen)(nil)
)

// Screen is the interactive host. Create one with New and start it with Run.
type Screen struct {
	mu      sync.Mutex
	procs   host.Processes
	logger  *zap.Logger
	program *tea.Program

	size     host.Size
	surfaces map[host.SurfaceHandle]*surface
	order    []host.SurfaceHandle // bottom to top
	focused  host.SurfaceHandle
	buffers  map[host.BufferHandle]*buffer
	attached map[host.ProcessHandle]host.BufferHandle

	global   map[string]func()
	commands map[string]func() error

	cmdline   textinput.Model
	cmdActive bool
	status    string
	source    string
}

type surface struct {
	buffer  host.BufferHandle
	cfg     host.SurfaceConfig
	display host.DisplayOptions
	vp      viewport.Model
}

type buffer struct {
	scratch  bool
	tag      string
	lines    []string
	process  host.ProcessHandle
	bindings map[string]func()
}

// Option configures a Screen.
type Option func(*Screen)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Screen) { s.logger = l }
}

// WithSize sets the initial viewport size. Bubble Tea replaces it with the
// real window size once the program starts.
func WithSize(size host.Size) Option {
	return func(s *Screen) { s.size = size }
}

// New returns a Screen that runs processes through procs.
func New(procs host.Processes, opts ...Option) *Screen {
	in := textinput.New()
	in.Prompt = ":"
	in.Placeholder = "command"

	s := &Screen{
		procs:    procs,
		logger:   zap.NewNop(),
		size:     TerminalSize(),
		surfaces: make(map[host.SurfaceHandle]*surface),
		buffers:  make(map[host.BufferHandle]*buffer),
		attached: make(map[host.ProcessHandle]host.BufferHandle),
		global:   make(map[string]func()),
		commands: make(map[string]func() error),
		cmdline:  in,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TerminalSize returns the size of the controlling terminal, or 80x24 when
// stdout is not a terminal.
func TerminalSize() host.Size {
	w, h, err := term.GetSize(os.Stdout.Fd())
	if err != nil || w <= 0 || h <= 0 {
		return host.Size{Columns: 80, Lines: 24}
	}
	return host.Size{Columns: w, Lines: h}
}

// Run starts the event loop and blocks until the user quits.
func (s *Screen) Run(opts ...tea.ProgramOption) error {
	p := tea.NewProgram(s, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()

	_, err := p.Run()

	s.mu.Lock()
	s.program = nil
	s.mu.Unlock()
	return err
}

// Do runs fn on the event loop. Use it from goroutines that need to drive a
// session, such as a file watcher.
func (s *Screen) Do(fn func() error) {
	s.send(actionMsg{fn: fn})
}

// SetSource sets the file reported by CurrentFile.
func (s *Screen) SetSource(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = path
}

// send delivers msg to the event loop, or handles it in place when no
// program is running.
func (s *Screen) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
		return
	}
	s.handle(msg)
}

// ── Surfaces ──────────────────────────────────────────────────────────────────

// CreateSurface shows buf in a new surface on top of all others.
func (s *Screen) CreateSurface(buf host.BufferHandle, cfg host.SurfaceConfig) (host.SurfaceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[buf]
	if !ok {
		return "", fmt.Errorf("create surface on buffer %s: %w", buf, host.ErrUnknownHandle)
	}
	w, h := cfg.Rect.Inner(config.Bordered(cfg.Border))
	vp := viewport.New(w, h)
	vp.SetContent(strings.Join(b.lines, "\n"))
	vp.GotoBottom()

	sh := host.SurfaceHandle(uuid.NewString())
	s.surfaces[sh] = &surface{buffer: buf, cfg: cfg, vp: vp}
	s.order = append(s.order, sh)
	s.logger.Debug("surface created", zap.String("surface", string(sh)), zap.String("buffer", string(buf)))
	return sh, nil
}

// SurfaceValid reports whether sh is shown.
func (s *Screen) SurfaceValid(sh host.SurfaceHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.surfaces[sh]
	return ok
}

// CloseSurface removes sh. Its buffer is kept.
func (s *Screen) CloseSurface(sh host.SurfaceHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surfaces[sh]; !ok {
		return fmt.Errorf("close surface %s: %w", sh, host.ErrUnknownHandle)
	}
	s.removeSurface(sh)
	return nil
}

// FocusSurface raises sh and routes keystrokes to it.
func (s *Screen) FocusSurface(sh host.SurfaceHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surfaces[sh]; !ok {
		return fmt.Errorf("focus surface %s: %w", sh, host.ErrUnknownHandle)
	}
	s.order = append(slices.DeleteFunc(s.order, func(h host.SurfaceHandle) bool { return h == sh }), sh)
	s.focused = sh
	return nil
}

// SetDisplayOptions sets the highlight and opacity of sh.
func (s *Screen) SetDisplayOptions(sh host.SurfaceHandle, opts host.DisplayOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	surf, ok := s.surfaces[sh]
	if !ok {
		return fmt.Errorf("set display options on %s: %w", sh, host.ErrUnknownHandle)
	}
	surf.display = opts
	return nil
}

// removeSurface drops sh and moves focus to the next surface down. Caller
// holds s.mu.
func (s *Screen) removeSurface(sh host.SurfaceHandle) {
	delete(s.surfaces, sh)
	s.order = slices.DeleteFunc(s.order, func(h host.SurfaceHandle) bool { return h == sh })
	if s.focused == sh {
		s.focused = ""
		if n := len(s.order); n > 0 {
			s.focused = s.order[n-1]
		}
	}
}

// ── Buffers ───────────────────────────────────────────────────────────────────

// CreateBuffer creates an empty buffer.
func (s *Screen) CreateBuffer(scratch bool) (host.BufferHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bh := host.BufferHandle(uuid.NewString())
	s.buffers[bh] = &buffer{scratch: scratch, bindings: make(map[string]func())}
	return bh, nil
}

// BufferLoaded reports whether bh exists.
func (s *Screen) BufferLoaded(bh host.BufferHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buffers[bh]
	return ok
}

// SetBufferTag sets the filetype tag of bh.
func (s *Screen) SetBufferTag(bh host.BufferHandle, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[bh]
	if !ok {
		return fmt.Errorf("tag buffer %s: %w", bh, host.ErrUnknownHandle)
	}
	b.tag = tag
	return nil
}

// DestroyBuffer removes bh and every surface showing it. Without force a
// buffer with a running process is refused; with force the process is
// terminated.
func (s *Screen) DestroyBuffer(bh host.BufferHandle, force bool) error {
	s.mu.Lock()
	b, ok := s.buffers[bh]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("destroy buffer %s: %w", bh, host.ErrUnknownHandle)
	}
	if b.process != "" && !force {
		s.mu.Unlock()
		return fmt.Errorf("destroy buffer %s: process %s still running", bh, b.process)
	}
	delete(s.buffers, bh)
	for _, sh := range slices.Clone(s.order) {
		if s.surfaces[sh].buffer == bh {
			s.removeSurface(sh)
		}
	}
	orphan := b.process
	if orphan != "" {
		delete(s.attached, orphan)
	}
	s.mu.Unlock()

	if orphan != "" {
		return s.procs.Terminate(orphan)
	}
	return nil
}

// ── Processes ─────────────────────────────────────────────────────────────────

// Spawn starts command attached to buf. A buffer hosts at most one process.
func (s *Screen) Spawn(buf host.BufferHandle, command string, opts host.SpawnOptions) (host.ProcessHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buffers[buf]
	if !ok {
		return "", fmt.Errorf("spawn in buffer %s: %w", buf, host.ErrUnknownHandle)
	}
	if b.process != "" {
		return "", fmt.Errorf("spawn in buffer %s: already attached to %s", buf, b.process)
	}

	// Callbacks take s.mu, so they cannot observe ph before it is set.
	var ph host.ProcessHandle
	wrapped := opts
	wrapped.OnStdout = func(data []byte) {
		s.send(outputMsg{buffer: buf, data: data, forward: opts.OnStdout})
	}
	wrapped.OnStderr = func(data []byte) {
		s.send(outputMsg{buffer: buf, data: data, forward: opts.OnStderr})
	}
	wrapped.OnExit = func(code int) {
		s.mu.Lock()
		p := ph
		s.mu.Unlock()
		s.send(exitMsg{process: p, code: code, notify: opts.OnExit})
	}

	ph, err := s.procs.Spawn(buf, command, wrapped)
	if err != nil {
		return "", err
	}
	b.process = ph
	s.attached[ph] = buf
	return ph, nil
}

// Write sends data to the process's terminal.
func (s *Screen) Write(p host.ProcessHandle, data []byte) error {
	return s.procs.Write(p, data)
}

// Terminate stops p. The exit notification arrives through the event loop.
func (s *Screen) Terminate(p host.ProcessHandle) error {
	return s.procs.Terminate(p)
}

// ── Keymap, viewport, commands, source ───────────────────────────────────────

// Bind registers fn for key while a surface showing scope is focused.
func (s *Screen) Bind(key string, scope host.BufferHandle, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[scope]
	if !ok {
		return fmt.Errorf("bind %q in buffer %s: %w", key, scope, host.ErrUnknownHandle)
	}
	b.bindings[key] = fn
	return nil
}

// BindGlobal registers fn for key regardless of focus.
func (s *Screen) BindGlobal(key string, fn func()) error {
	if key == "" {
		return errors.New("bind: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[key] = fn
	return nil
}

// UnbindGlobal removes the global binding for key.
func (s *Screen) UnbindGlobal(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.global, key)
}

// ViewportSize returns the current window size.
func (s *Screen) ViewportSize() host.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// RegisterCommand makes fn available as :name on the command line.
func (s *Screen) RegisterCommand(name string, fn func() error) error {
	if name == "" || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("invalid command name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[name] = fn
	return nil
}

// RunCommand runs the command registered under name.
func (s *Screen) RunCommand(name string) error {
	s.mu.Lock()
	fn, ok := s.commands[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return fn()
}

// Commands returns the registered command names in order.
func (s *Screen) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandNames()
}

// CurrentFile returns the file set with SetSource.
func (s *Screen) CurrentFile() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == "" {
		return "", ErrNoSource
	}
	return s.source, nil
}

// ── Event handling ────────────────────────────────────────────────────────────

type outputMsg struct {
	buffer  host.BufferHandle
	data    []byte
	forward func([]byte)
}

type exitMsg struct {
	process host.ProcessHandle
	code    int
	notify  func(int)
}

type actionMsg struct {
	fn func() error
}

// handle applies a process or action message. Callbacks run without s.mu
// held because they call back into the Screen.
func (s *Screen) handle(msg tea.Msg) {
	switch msg := msg.(type) {
	case outputMsg:
		s.mu.Lock()
		s.appendOutput(msg.buffer, msg.data)
		s.mu.Unlock()
		if msg.forward != nil {
			msg.forward(msg.data)
		}

	case exitMsg:
		s.mu.Lock()
		if bh, ok := s.attached[msg.process]; ok {
			delete(s.attached, msg.process)
			if b, ok := s.buffers[bh]; ok && b.process == msg.process {
				b.process = ""
				s.appendOutput(bh, []byte(fmt.Sprintf("\n[process exited %d]\n", msg.code)))
			}
		}
		s.mu.Unlock()
		if msg.notify != nil {
			msg.notify(msg.code)
		}

	case actionMsg:
		s.report(msg.fn())
	}
}

// report shows err in the status bar.
func (s *Screen) report(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = err.Error()
		s.logger.Warn("action failed", zap.Error(err))
		return
	}
	s.status = ""
}

// appendOutput adds process output to bh and refreshes the surfaces showing
// it. Caller holds s.mu.
func (s *Screen) appendOutput(bh host.BufferHandle, data []byte) {
	b, ok := s.buffers[bh]
	if !ok {
		return
	}
	b.lines = appendText(b.lines, ansi.Strip(string(data)))
	if over := len(b.lines) - scrollback; over > 0 {
		b.lines = slices.Delete(b.lines, 0, over)
	}
	content := strings.Join(b.lines, "\n")
	for _, surf := range s.surfaces {
		if surf.buffer == bh {
			surf.vp.SetContent(content)
			surf.vp.GotoBottom()
		}
	}
}

// appendText appends terminal text to lines. Carriage returns and bells are
// dropped and backspace erases the previous character on the line.
func appendText(lines []string, text string) []string {
	if len(lines) == 0 {
		lines = []string{""}
	}
	cur := []rune(lines[len(lines)-1])
	for _, r := range text {
		switch r {
		case '\n':
			lines[len(lines)-1] = string(cur)
			lines = append(lines, "")
			cur = cur[:0]
		case '\r', '\a':
		case '\b':
			if len(cur) > 0 {
				cur = cur[:len(cur)-1]
			}
		default:
			cur = append(cur, r)
		}
	}
	lines[len(lines)-1] = string(cur)
	return lines
}
