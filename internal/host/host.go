// Package host defines the collaborators a terminal session consumes from
// the application that displays it.
//
// Surfaces, buffers and processes are referenced by opaque handles minted
// by the host. The host may invalidate any handle at any time, so callers
// must check validity before every use instead of trusting a stored handle.
// [Fake] provides an in-memory implementation for tests; the ui package
// provides the interactive one.
package host

import "github.com/fakeyudi/popterm/internal/geometry"

// SurfaceHandle identifies a displayed region. The empty handle means none.
type SurfaceHandle string

// BufferHandle identifies a content buffer. The empty handle means none.
type BufferHandle string

// ProcessHandle identifies a spawned pseudo-terminal process. The empty
// handle means none.
type ProcessHandle string

// SurfaceConfig describes a surface to create.
type SurfaceConfig struct {
	Rect   geometry.Rect
	Border string
	Title  string
}

// DisplayOptions are applied to a surface after creation.
type DisplayOptions struct {
	Highlight string
	Opacity   int // 0 (opaque) .. 100
}

// SpawnOptions configure a pseudo-terminal process.
type SpawnOptions struct {
	ClearEnv bool
	Env      map[string]string
	Columns  int
	Rows     int

	// Callbacks may run on any goroutine and at any later time.
	OnStdout func(data []byte)
	OnStderr func(data []byte)
	OnExit   func(code int)
}

// Surfaces manages displayed regions.
type Surfaces interface {
	CreateSurface(buf BufferHandle, cfg SurfaceConfig) (SurfaceHandle, error)
	SurfaceValid(s SurfaceHandle) bool
	CloseSurface(s SurfaceHandle) error
	FocusSurface(s SurfaceHandle) error
	SetDisplayOptions(s SurfaceHandle, opts DisplayOptions) error
}

// Buffers manages content buffers.
type Buffers interface {
	CreateBuffer(scratch bool) (BufferHandle, error)
	BufferLoaded(b BufferHandle) bool
	SetBufferTag(b BufferHandle, tag string) error
	DestroyBuffer(b BufferHandle, force bool) error
}

// Processes manages pseudo-terminal processes. Spawn attaches the process
// to buf so its output renders there.
type Processes interface {
	Spawn(buf BufferHandle, command string, opts SpawnOptions) (ProcessHandle, error)
	Write(p ProcessHandle, data []byte) error
	Terminate(p ProcessHandle) error
}

// Keymap registers key bindings scoped to a buffer. The callback runs later
// on the host's event loop, never from inside Bind.
type Keymap interface {
	Bind(key string, scope BufferHandle, fn func()) error
}

// GlobalKeymap registers key bindings that apply regardless of focus.
type GlobalKeymap interface {
	BindGlobal(key string, fn func()) error
	// UnbindGlobal removes the binding for key. Unknown keys are ignored.
	UnbindGlobal(key string)
}

// Size is the host viewport size in cells.
type Size = geometry.Viewport

// Viewport reports the current host display size.
type Viewport interface {
	ViewportSize() Size
}

// Commands exposes named actions on the host's command surface.
type Commands interface {
	RegisterCommand(name string, fn func() error) error
}

// SourceContext reports the file the user is currently working on.
type SourceContext interface {
	CurrentFile() (string, error)
}

// Host is everything a terminal session needs from its host.
type Host interface {
	Surfaces
	Buffers
	Processes
	Keymap
	Viewport
}
