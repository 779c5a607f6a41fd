package app_test

import (
	"errors"
	"testing"

	"github.com/fakeyudi/popterm/internal/app"
	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/host"
	"github.com/fakeyudi/popterm/internal/pipeline"
	"github.com/fakeyudi/popterm/internal/terminal"
)

func ptr[T any](v T) *T { return &v }

func newApp(t *testing.T) (*app.App, *host.Fake) {
	t.Helper()
	f := host.NewFake()
	cfg := config.Defaults()
	cfg.Cmd = config.Literal("bash")
	return app.New(f, app.WithConfig(cfg)), f
}

func TestSetupRegistersCommands(t *testing.T) {
	a, f := newApp(t)
	if err := a.Setup(nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if err := f.RunCommand(app.CmdToggle); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := a.Session().State(); got != terminal.Running {
		t.Errorf("after Toggle: want running, got %v", got)
	}

	if err := f.RunCommand(app.CmdClose); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s, b, p := f.Counts(); s != 0 || b != 1 || p != 1 {
		t.Errorf("after Close: want 0/1/1, got %d/%d/%d", s, b, p)
	}

	if err := f.RunCommand(app.CmdToggle); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := f.RunCommand(app.CmdKill); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if s, b, p := f.Counts(); s != 0 || b != 0 || p != 0 {
		t.Errorf("after Kill: want 0/0/0, got %d/%d/%d", s, b, p)
	}
}

func TestSetupBindsGlobalKeys(t *testing.T) {
	a, f := newApp(t)
	if err := a.Setup(&config.Overrides{Keys: &config.KeysOverrides{Toggle: ptr("alt+t")}}); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if !f.PressGlobal("alt+t") {
		t.Fatal("toggle key not bound")
	}
	if got := a.Session().State(); got != terminal.Running {
		t.Errorf("after toggle key: want running, got %v", got)
	}
	if !f.PressGlobal("f5") {
		t.Error("compile key not bound")
	}
}

func TestSetupRebindingDropsOldKey(t *testing.T) {
	a, f := newApp(t)
	if err := a.Setup(nil); err != nil {
		t.Fatalf("first Setup: %v", err)
	}
	if err := a.Setup(&config.Overrides{Keys: &config.KeysOverrides{Toggle: ptr("ctrl+y")}}); err != nil {
		t.Fatalf("second Setup: %v", err)
	}

	if f.PressGlobal("ctrl+t") {
		t.Errorf("ctrl+t still bound after toggle moved to ctrl+y; state=%v", a.Session().State())
	}
	if !f.PressGlobal("ctrl+y") {
		t.Fatal("ctrl+y not bound")
	}
	if got := a.Session().State(); got != terminal.Running {
		t.Errorf("after toggle key: want running, got %v", got)
	}
	if !f.PressGlobal("f5") {
		t.Error("compile key lost after rebinding")
	}
}

// Feature: popterm, Property 5: Setup is re-invocable and last write wins
func TestSetupIsReinvocable(t *testing.T) {
	a, f := newApp(t)
	f.Source = "prog.c"

	if err := a.Setup(&config.Overrides{
		Border: ptr("rounded"),
		Task:   &config.TaskOverrides{Command: ptr("clang"), Args: []string{"-O2"}},
	}); err != nil {
		t.Fatalf("first Setup: %v", err)
	}
	if err := a.Setup(&config.Overrides{
		Task: &config.TaskOverrides{Output: ptr("bin/prog")},
	}); err != nil {
		t.Fatalf("second Setup: %v", err)
	}

	cfg := a.Config()
	if cfg.Border != "rounded" || cfg.Task.Command != "clang" || cfg.Task.Output != "bin/prog" {
		t.Errorf("merged config: %+v", cfg)
	}
	if n := f.CallCount("RegisterCommand"); n != 8 {
		t.Errorf("RegisterCommand calls: want 8, got %d", n)
	}

	if err := f.RunCommand(app.CmdCompileRun); err != nil {
		t.Fatalf("CompileRun: %v", err)
	}
	h := a.Session().Handles()
	written := f.Process(h.Process).Written
	want := []string{"clang -O2 prog.c -o ./bin/prog\r", "./bin/prog\r"}
	if len(written) != 2 || written[0] != want[0] || written[1] != want[1] {
		t.Errorf("written: want %q, got %q", want, written)
	}
	if got := f.Surface(h.Surface).Config.Border; got != "rounded" {
		t.Errorf("border: want rounded, got %q", got)
	}
}

func TestCompileAndRunWithoutSource(t *testing.T) {
	a, _ := newApp(t)
	if err := a.Setup(nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := a.CompileAndRun(); !errors.Is(err, pipeline.ErrNoSource) {
		t.Errorf("want ErrNoSource, got %v", err)
	}
}

func TestCompileAndRunFile(t *testing.T) {
	a, f := newApp(t)
	if err := a.Setup(nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := a.CompileAndRunFile("./hello.c"); err != nil {
		t.Fatalf("CompileAndRunFile: %v", err)
	}
	written := f.Process(a.Session().Handles().Process).Written
	if len(written) != 2 || written[0] != "gcc ./hello.c -o ./hello\r" || written[1] != "./hello\r" {
		t.Errorf("written: got %q", written)
	}
}

func TestShutdown(t *testing.T) {
	a, f := newApp(t)
	if err := a.Setup(nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := a.Session().Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if s, b, p := f.Counts(); s+b+p != 0 {
		t.Errorf("expected nothing left, got %d/%d/%d", s, b, p)
	}
}
