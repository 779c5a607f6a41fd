package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/fakeyudi/popterm/internal/env"
	"github.com/fakeyudi/popterm/internal/geometry"
)

// Config holds the resolved popterm settings.
type Config struct {
	Filetype   string            `json:"ft"`
	Cmd        Command           `json:"cmd"`
	Border     string            `json:"border"` // single | double | rounded | thick | hidden | none
	AutoClose  bool              `json:"auto_close"`
	Highlight  string            `json:"hl"`
	Blend      int               `json:"blend"` // 0 (opaque) .. 100
	ClearEnv   bool              `json:"clear_env"`
	Env        map[string]string `json:"env,omitempty"`
	Dimensions geometry.Ratios   `json:"dimensions"`
	Task       Task              `json:"task"`
	Keys       Keys              `json:"keys"`
	Log        Log               `json:"log"`
}

// Task describes the build step of the build-and-run pipeline.
type Task struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Output  string   `json:"output,omitempty"` // empty: derived from the source name
}

// Keys holds key bindings in bubbletea key notation.
type Keys struct {
	Toggle  string `json:"toggle"`
	Close   string `json:"close"`
	Compile string `json:"compile"`
}

// Log configures the zap logger.
type Log struct {
	File  string `json:"file,omitempty"`
	Level string `json:"level"`
}

// Bordered reports whether a border style draws a border. "none" and the
// empty string do not.
func Bordered(style string) bool {
	return style != "" && style != "none"
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Filetype:  "popterm",
		Cmd:       Derived(env.DefaultShell),
		Border:    "single",
		AutoClose: true,
		Highlight: "Normal",
		Dimensions: geometry.Ratios{
			Height: 0.8,
			Width:  0.8,
			X:      0.5,
			Y:      0.5,
		},
		Task: Task{
			Command: "gcc",
			Args:    []string{},
		},
		Keys: Keys{
			Toggle:  "ctrl+t",
			Close:   "ctrl+q",
			Compile: "f5",
		},
		Log: Log{Level: "info"},
	}
}

// ShellCommand resolves the command spawned in a fresh terminal. An empty
// configured command falls back to the environment's default shell.
func (c Config) ShellCommand() (string, error) {
	cmd, err := c.Cmd.Evaluate()
	if err != nil {
		return "", &ConfigurationError{Field: "cmd", Err: err}
	}
	if cmd != "" {
		return cmd, nil
	}
	shell, err := env.DefaultShell()
	if err != nil {
		return "", &ConfigurationError{Field: "cmd", Err: err}
	}
	return shell, nil
}

// Overrides is a partial Config. Nil fields are left untouched by Merge.
type Overrides struct {
	Filetype   *string              `json:"ft,omitempty" toml:"ft,omitempty"`
	Cmd        *Command             `json:"cmd,omitempty" toml:"cmd,omitempty"`
	Border     *string              `json:"border,omitempty" toml:"border,omitempty"`
	AutoClose  *bool                `json:"auto_close,omitempty" toml:"auto_close,omitempty"`
	Highlight  *string              `json:"hl,omitempty" toml:"hl,omitempty"`
	Blend      *int                 `json:"blend,omitempty" toml:"blend,omitempty"`
	ClearEnv   *bool                `json:"clear_env,omitempty" toml:"clear_env,omitempty"`
	Env        map[string]string    `json:"env,omitempty" toml:"env,omitempty"`
	Dimensions *DimensionsOverrides `json:"dimensions,omitempty" toml:"dimensions,omitempty"`
	Task       *TaskOverrides       `json:"task,omitempty" toml:"task,omitempty"`
	Keys       *KeysOverrides       `json:"keys,omitempty" toml:"keys,omitempty"`
	Log        *LogOverrides        `json:"log,omitempty" toml:"log,omitempty"`
}

// DimensionsOverrides is a partial geometry.Ratios.
type DimensionsOverrides struct {
	Height *float64 `json:"height,omitempty" toml:"height,omitempty"`
	Width  *float64 `json:"width,omitempty" toml:"width,omitempty"`
	X      *float64 `json:"x,omitempty" toml:"x,omitempty"`
	Y      *float64 `json:"y,omitempty" toml:"y,omitempty"`
}

// TaskOverrides is a partial Task. A non-nil Args replaces the list wholesale.
type TaskOverrides struct {
	Command *string  `json:"command,omitempty" toml:"command,omitempty"`
	Args    []string `json:"args,omitempty" toml:"args,omitempty"`
	Output  *string  `json:"output,omitempty" toml:"output,omitempty"`
}

// KeysOverrides is a partial Keys.
type KeysOverrides struct {
	Toggle  *string `json:"toggle,omitempty" toml:"toggle,omitempty"`
	Close   *string `json:"close,omitempty" toml:"close,omitempty"`
	Compile *string `json:"compile,omitempty" toml:"compile,omitempty"`
}

// LogOverrides is a partial Log.
type LogOverrides struct {
	File  *string `json:"file,omitempty" toml:"file,omitempty"`
	Level *string `json:"level,omitempty" toml:"level,omitempty"`
}

// Merge applies o on top of base and returns the result. Scalars are
// replaced, tables are merged key by key and lists are replaced wholesale.
// base is not modified.
func Merge(base Config, o *Overrides) Config {
	result := base
	result.Env = maps.Clone(base.Env)
	result.Task.Args = slices.Clone(base.Task.Args)
	if o == nil {
		return result
	}

	set(&result.Filetype, o.Filetype)
	set(&result.Cmd, o.Cmd)
	set(&result.Border, o.Border)
	set(&result.AutoClose, o.AutoClose)
	set(&result.Highlight, o.Highlight)
	set(&result.Blend, o.Blend)
	set(&result.ClearEnv, o.ClearEnv)

	if len(o.Env) > 0 {
		if result.Env == nil {
			result.Env = make(map[string]string, len(o.Env))
		}
		maps.Copy(result.Env, o.Env)
	}

	if d := o.Dimensions; d != nil {
		set(&result.Dimensions.Height, d.Height)
		set(&result.Dimensions.Width, d.Width)
		set(&result.Dimensions.X, d.X)
		set(&result.Dimensions.Y, d.Y)
	}

	if t := o.Task; t != nil {
		set(&result.Task.Command, t.Command)
		set(&result.Task.Output, t.Output)
		if t.Args != nil {
			result.Task.Args = slices.Clone(t.Args)
		}
	}

	if k := o.Keys; k != nil {
		set(&result.Keys.Toggle, k.Toggle)
		set(&result.Keys.Close, k.Close)
		set(&result.Keys.Compile, k.Compile)
	}

	if l := o.Log; l != nil {
		set(&result.Log.File, l.File)
		set(&result.Log.Level, l.Level)
	}

	return result
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ConfigurationError reports a setting that cannot be resolved to a usable value.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
