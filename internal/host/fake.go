package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownHandle is returned by [Fake] for handles it never issued or has
// already released.
var ErrUnknownHandle = errors.New("unknown handle")

// Fake is an in-memory [Host] for testing. It records all calls (spy) and
// simulates host state (fake). Safe for concurrent use.
//
// Process exits are never simulated automatically; tests trigger them
// with [Fake.Exit].
type Fake struct {
	mu        sync.Mutex
	surfaces  map[SurfaceHandle]*FakeSurface
	buffers   map[BufferHandle]*FakeBuffer
	processes map[ProcessHandle]*FakeProcess
	exits     map[ProcessHandle]func(code int) // kept after Terminate
	commands  map[string]func() error
	global    map[string]func()

	Calls []Call // recorded calls in order

	// SpawnErr, when set, is returned by every Spawn call.
	SpawnErr error
	// BindErr, when set, is returned by every Bind call.
	BindErr error
	// Size is reported by ViewportSize.
	Size Size
	// Source is reported by CurrentFile; empty means no file.
	Source string
}

// Call records a single method invocation on [Fake].
type Call struct {
	Method string
	Handle string // surface, buffer or process handle argument
	Arg    string // command, key, tag or written data
}

// FakeSurface is the state kept for a surface.
type FakeSurface struct {
	Buffer  BufferHandle
	Config  SurfaceConfig
	Display DisplayOptions
	Focused bool
}

// FakeBuffer is the state kept for a buffer.
type FakeBuffer struct {
	Scratch  bool
	Tag      string
	Bindings map[string]func()
}

// FakeProcess is the state kept for a process.
type FakeProcess struct {
	Buffer  BufferHandle
	Command string
	Opts    SpawnOptions
	Written []string
}

var _ Host = (*Fake)(nil)
var _ Commands = (*Fake)(nil)
var _ SourceContext = (*Fake)(nil)
var _ GlobalKeymap = (*Fake)(nil)

// NewFake returns a ready-to-use [Fake] with a 100x50 viewport.
func NewFake() *Fake {
	return &Fake{
		surfaces:  make(map[SurfaceHandle]*FakeSurface),
		buffers:   make(map[BufferHandle]*FakeBuffer),
		processes: make(map[ProcessHandle]*FakeProcess),
		exits:     make(map[ProcessHandle]func(code int)),
		commands:  make(map[string]func() error),
		global:    make(map[string]func()),
		Size:      Size{Columns: 100, Lines: 50},
	}
}

func (f *Fake) record(method, handle, arg string) {
	f.Calls = append(f.Calls, Call{Method: method, Handle: handle, Arg: arg})
}

// CreateSurface creates a surface showing buf.
func (f *Fake) CreateSurface(buf BufferHandle, cfg SurfaceConfig) (SurfaceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateSurface", string(buf), cfg.Border)
	if _, ok := f.buffers[buf]; !ok {
		return "", fmt.Errorf("create surface on buffer %q: %w", buf, ErrUnknownHandle)
	}
	h := SurfaceHandle("surface-" + uuid.NewString())
	f.surfaces[h] = &FakeSurface{Buffer: buf, Config: cfg}
	return h, nil
}

// SurfaceValid reports whether s is a live surface.
func (f *Fake) SurfaceValid(s SurfaceHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.surfaces[s]
	return ok
}

// CloseSurface removes s.
func (f *Fake) CloseSurface(s SurfaceHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CloseSurface", string(s), "")
	if _, ok := f.surfaces[s]; !ok {
		return fmt.Errorf("close surface %q: %w", s, ErrUnknownHandle)
	}
	delete(f.surfaces, s)
	return nil
}

// FocusSurface marks s as the focused surface.
func (f *Fake) FocusSurface(s SurfaceHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FocusSurface", string(s), "")
	surf, ok := f.surfaces[s]
	if !ok {
		return fmt.Errorf("focus surface %q: %w", s, ErrUnknownHandle)
	}
	for _, other := range f.surfaces {
		other.Focused = false
	}
	surf.Focused = true
	return nil
}

// SetDisplayOptions stores opts on s.
func (f *Fake) SetDisplayOptions(s SurfaceHandle, opts DisplayOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetDisplayOptions", string(s), opts.Highlight)
	surf, ok := f.surfaces[s]
	if !ok {
		return fmt.Errorf("set display options on %q: %w", s, ErrUnknownHandle)
	}
	surf.Display = opts
	return nil
}

// CreateBuffer creates an empty buffer.
func (f *Fake) CreateBuffer(scratch bool) (BufferHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := BufferHandle("buffer-" + uuid.NewString())
	f.record("CreateBuffer", string(h), "")
	f.buffers[h] = &FakeBuffer{Scratch: scratch, Bindings: make(map[string]func())}
	return h, nil
}

// BufferLoaded reports whether b is a live buffer.
func (f *Fake) BufferLoaded(b BufferHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buffers[b]
	return ok
}

// SetBufferTag sets the filetype tag of b.
func (f *Fake) SetBufferTag(b BufferHandle, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetBufferTag", string(b), tag)
	buf, ok := f.buffers[b]
	if !ok {
		return fmt.Errorf("tag buffer %q: %w", b, ErrUnknownHandle)
	}
	buf.Tag = tag
	return nil
}

// DestroyBuffer removes b and every surface showing it.
func (f *Fake) DestroyBuffer(b BufferHandle, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DestroyBuffer", string(b), "")
	if _, ok := f.buffers[b]; !ok {
		return fmt.Errorf("destroy buffer %q: %w", b, ErrUnknownHandle)
	}
	delete(f.buffers, b)
	for h, s := range f.surfaces {
		if s.Buffer == b {
			delete(f.surfaces, h)
		}
	}
	return nil
}

// Spawn starts a fake process attached to buf.
func (f *Fake) Spawn(buf BufferHandle, command string, opts SpawnOptions) (ProcessHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Spawn", string(buf), command)
	if f.SpawnErr != nil {
		return "", f.SpawnErr
	}
	if _, ok := f.buffers[buf]; !ok {
		return "", fmt.Errorf("spawn in buffer %q: %w", buf, ErrUnknownHandle)
	}
	h := ProcessHandle("process-" + uuid.NewString())
	f.processes[h] = &FakeProcess{Buffer: buf, Command: command, Opts: opts}
	if opts.OnExit != nil {
		f.exits[h] = opts.OnExit
	}
	return h, nil
}

// Write records data as input to p.
func (f *Fake) Write(p ProcessHandle, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Write", string(p), string(data))
	proc, ok := f.processes[p]
	if !ok {
		return fmt.Errorf("write to process %q: %w", p, ErrUnknownHandle)
	}
	proc.Written = append(proc.Written, string(data))
	return nil
}

// Terminate removes p without firing its exit callback; tests call Exit
// to simulate the notification.
func (f *Fake) Terminate(p ProcessHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Terminate", string(p), "")
	if _, ok := f.processes[p]; !ok {
		return fmt.Errorf("terminate process %q: %w", p, ErrUnknownHandle)
	}
	delete(f.processes, p)
	return nil
}

// Bind registers fn for key in the scope of buffer b.
func (f *Fake) Bind(key string, b BufferHandle, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Bind", string(b), key)
	if f.BindErr != nil {
		return f.BindErr
	}
	buf, ok := f.buffers[b]
	if !ok {
		return fmt.Errorf("bind %q in buffer %q: %w", key, b, ErrUnknownHandle)
	}
	buf.Bindings[key] = fn
	return nil
}

// BindGlobal registers fn for key in every scope.
func (f *Fake) BindGlobal(key string, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("BindGlobal", "", key)
	f.global[key] = fn
	return nil
}

// UnbindGlobal removes the global binding for key.
func (f *Fake) UnbindGlobal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UnbindGlobal", "", key)
	delete(f.global, key)
}

// ViewportSize returns f.Size.
func (f *Fake) ViewportSize() Size {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Size
}

// RegisterCommand stores fn under name, replacing any previous action.
func (f *Fake) RegisterCommand(name string, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RegisterCommand", "", name)
	f.commands[name] = fn
	return nil
}

// CurrentFile returns f.Source.
func (f *Fake) CurrentFile() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Source == "" {
		return "", errors.New("no file in current context")
	}
	return f.Source, nil
}

// --- test helpers ---

// Exit simulates p terminating with code: the process is removed if still
// live and its OnExit callback fires. The callback fires even if p was
// already terminated, which lets tests exercise late notifications.
func (f *Fake) Exit(p ProcessHandle, code int) {
	f.mu.Lock()
	delete(f.processes, p)
	fn := f.exits[p]
	f.mu.Unlock()
	if fn != nil {
		fn(code)
	}
}

// InvalidateSurface removes s out-of-band, like a user closing it manually.
func (f *Fake) InvalidateSurface(s SurfaceHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.surfaces, s)
}

// PressKey invokes the binding for key in buffer b. Reports whether a
// binding was found.
func (f *Fake) PressKey(b BufferHandle, key string) bool {
	f.mu.Lock()
	buf, ok := f.buffers[b]
	var fn func()
	if ok {
		fn = buf.Bindings[key]
	}
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// PressGlobal invokes the global binding for key. Reports whether a
// binding was found.
func (f *Fake) PressGlobal(key string) bool {
	f.mu.Lock()
	fn := f.global[key]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// RunCommand invokes the command registered under name.
func (f *Fake) RunCommand(name string) error {
	f.mu.Lock()
	fn, ok := f.commands[name]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("command %q not registered", name)
	}
	return fn()
}

// Surface returns a copy of the state of s, or nil.
func (f *Fake) Surface(s SurfaceHandle) *FakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	if surf, ok := f.surfaces[s]; ok {
		c := *surf
		return &c
	}
	return nil
}

// Buffer returns a copy of the state of b, or nil.
func (f *Fake) Buffer(b BufferHandle) *FakeBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if buf, ok := f.buffers[b]; ok {
		c := *buf
		return &c
	}
	return nil
}

// Process returns a copy of the state of p, or nil.
func (f *Fake) Process(p ProcessHandle) *FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if proc, ok := f.processes[p]; ok {
		c := *proc
		c.Written = append([]string(nil), proc.Written...)
		return &c
	}
	return nil
}

// Counts returns the number of live surfaces, buffers and processes.
func (f *Fake) Counts() (surfaces, buffers, processes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.surfaces), len(f.buffers), len(f.processes)
}

// CallCount returns how many times method was called.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
