// Package app wires a terminal session and the build-and-run pipeline to a
// host and exposes them as host commands.
package app

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/host"
	"github.com/fakeyudi/popterm/internal/pipeline"
	"github.com/fakeyudi/popterm/internal/terminal"
)

// Command names registered with the host.
const (
	CmdCompileRun = "CompileRun"
	CmdToggle     = "Toggle"
	CmdClose      = "Close"
	CmdKill       = "Kill"
)

// Host is what the application needs from its host.
type Host interface {
	host.Host
	host.Commands
	host.SourceContext
}

// App owns one terminal session bound to a host.
type App struct {
	mu       sync.Mutex
	host     Host
	cfg      config.Config
	session  *terminal.Session
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
	bound    []string // global keys bound by the last Setup
}

// Option configures an App.
type Option func(*options)

type options struct {
	cfg     config.Config
	logger  *zap.Logger
	session []terminal.Option
}

// WithConfig sets the configuration Setup merges onto. Default
// config.Defaults().
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger shared by the app and its session.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSessionOptions passes extra options to the terminal session.
func WithSessionOptions(opts ...terminal.Option) Option {
	return func(o *options) { o.session = append(o.session, opts...) }
}

// New returns an App for h. Call Setup before use.
func New(h Host, opts ...Option) *App {
	o := options{cfg: config.Defaults(), logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	sessOpts := append([]terminal.Option{terminal.WithLogger(o.logger)}, o.session...)
	a := &App{
		host:    h,
		cfg:     o.cfg,
		logger:  o.logger,
		session: terminal.New(h, o.cfg, sessOpts...),
	}
	a.pipeline = pipeline.New(a.session, h, o.cfg.Task, o.logger)
	return a
}

// Setup merges overrides onto the current configuration and registers the
// host commands. It may be called again; later calls win key by key and
// re-register every command. A live terminal keeps its settings until it is
// next opened fresh.
func (a *App) Setup(overrides *config.Overrides) error {
	a.mu.Lock()
	a.cfg = config.Merge(a.cfg, overrides)
	cfg := a.cfg
	a.pipeline = pipeline.New(a.session, a.host, cfg.Task, a.logger)
	a.mu.Unlock()

	a.session.Reconfigure(cfg)

	commands := []struct {
		name string
		fn   func() error
	}{
		{CmdCompileRun, a.CompileAndRun},
		{CmdToggle, a.session.Toggle},
		{CmdClose, func() error { return a.session.Close(false) }},
		{CmdKill, func() error { return a.session.Close(true) }},
	}
	for _, c := range commands {
		if err := a.host.RegisterCommand(c.name, c.fn); err != nil {
			return fmt.Errorf("registering %s: %w", c.name, err)
		}
	}

	if keys, ok := a.host.(host.GlobalKeymap); ok {
		if err := a.bindKeys(keys, cfg.Keys); err != nil {
			return err
		}
	}

	a.logger.Debug("setup complete",
		zap.String("filetype", cfg.Filetype),
		zap.String("border", cfg.Border),
		zap.String("task", cfg.Task.Command))
	return nil
}

// bindKeys replaces the global keys bound by the previous Setup with the
// keys in k.
func (a *App) bindKeys(keys host.GlobalKeymap, k config.Keys) error {
	a.mu.Lock()
	stale := a.bound
	a.bound = nil
	a.mu.Unlock()
	for _, key := range stale {
		keys.UnbindGlobal(key)
	}

	bindings := []struct {
		key string
		fn  func() error
	}{
		{k.Toggle, a.session.Toggle},
		{k.Compile, a.CompileAndRun},
	}
	for _, b := range bindings {
		if b.key == "" {
			continue
		}
		fn := b.fn
		if err := keys.BindGlobal(b.key, func() {
			if err := fn(); err != nil {
				a.logger.Warn("key action failed", zap.String("key", b.key), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("binding %q: %w", b.key, err)
		}
		a.mu.Lock()
		a.bound = append(a.bound, b.key)
		a.mu.Unlock()
	}
	return nil
}

// CompileAndRun builds the host's current file and runs the result.
func (a *App) CompileAndRun() error {
	a.mu.Lock()
	p := a.pipeline
	a.mu.Unlock()
	return p.CompileAndRun()
}

// CompileAndRunFile builds src and runs the result.
func (a *App) CompileAndRunFile(src string) error {
	a.mu.Lock()
	p := a.pipeline
	a.mu.Unlock()
	return p.CompileAndRunFile(src)
}

// Session returns the terminal session.
func (a *App) Session() *terminal.Session {
	return a.session
}

// Config returns the merged configuration.
func (a *App) Config() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Shutdown releases the terminal and its process.
func (a *App) Shutdown() error {
	return a.session.Shutdown()
}
