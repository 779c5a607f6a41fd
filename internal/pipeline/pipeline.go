// Package pipeline compiles the current source file and runs the result in
// the terminal session.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/host"
)

// ErrNoSource is returned when the host reports no current source file.
var ErrNoSource = errors.New("no source file to compile")

// outputSuffix is appended to sources without an extension so the compiler
// never writes over its input.
const outputSuffix = ".out"

// Terminal is the part of terminal.Session the pipeline drives.
type Terminal interface {
	Open(explicit ...config.Command) error
	Run(cmd config.Command) error
}

// Pipeline sends a build command followed by a run command to a terminal.
//
// The run line is written straight after the build line; the shell queues
// it, but it executes whether or not the build succeeded.
type Pipeline struct {
	term   Terminal
	source host.SourceContext
	task   config.Task
	logger *zap.Logger
}

// New returns a Pipeline building with task.
func New(term Terminal, source host.SourceContext, task config.Task, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{term: term, source: source, task: task, logger: logger}
}

// CompileAndRun builds the current source file and runs the artifact.
func (p *Pipeline) CompileAndRun() error {
	src, err := p.source.CurrentFile()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoSource, err)
	}
	if strings.TrimSpace(src) == "" {
		return ErrNoSource
	}
	return p.CompileAndRunFile(src)
}

// CompileAndRunFile builds src and runs the artifact.
func (p *Pipeline) CompileAndRunFile(src string) error {
	out := Output(src, p.task)
	build := BuildCommand(p.task, src, out)

	if err := p.term.Open(); err != nil {
		return err
	}
	if err := p.term.Run(build); err != nil {
		return fmt.Errorf("sending build command: %w", err)
	}
	if err := p.term.Run(RunCommand(out)); err != nil {
		return fmt.Errorf("sending run command: %w", err)
	}

	p.logger.Info("compile and run",
		zap.String("source", src),
		zap.String("output", out),
		zap.String("build", build.String()))
	return nil
}

// Output returns the artifact name for src: task.Output when set, else
// DefaultOutput(src).
func Output(src string, task config.Task) string {
	if task.Output != "" {
		return task.Output
	}
	return DefaultOutput(src)
}

// DefaultOutput truncates src at its first '.' at index 2 or later, which
// skips a leading "./" or "../". A name with no such dot gets ".out"
// appended.
func DefaultOutput(src string) string {
	if len(src) > 2 {
		if i := strings.IndexByte(src[2:], '.'); i >= 0 {
			return src[:i+2]
		}
	}
	return src + outputSuffix
}

// LocalPath prefixes path with "./" so the shell runs it from the working
// directory instead of searching PATH. Absolute paths and paths already
// starting with "./" are returned unchanged.
func LocalPath(path string) string {
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "../") {
		return path
	}
	return "./" + path
}

// BuildCommand returns [task.Command, task.Args..., src, "-o", LocalPath(out)].
func BuildCommand(task config.Task, src, out string) config.Command {
	parts := make([]string, 0, len(task.Args)+4)
	parts = append(parts, task.Command)
	parts = append(parts, task.Args...)
	parts = append(parts, src, "-o", LocalPath(out))
	return config.Args(parts...)
}

// RunCommand returns the command executing the artifact out.
func RunCommand(out string) config.Command {
	return config.Args(LocalPath(out))
}
