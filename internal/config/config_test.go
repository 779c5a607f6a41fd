package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/popterm/internal/env"
)

func ptr[T any](v T) *T { return &v }

func TestMergeScalarOverride(t *testing.T) {
	base := Defaults()
	base.Border = "single"
	base.Highlight = "Normal"

	got := Merge(base, &Overrides{Border: ptr("double")})

	if got.Border != "double" {
		t.Errorf("Border: want %q, got %q", "double", got.Border)
	}
	if got.Highlight != "Normal" {
		t.Errorf("Highlight: want %q, got %q", "Normal", got.Highlight)
	}
}

func TestMergeNestedTableKeepsSiblings(t *testing.T) {
	base := Defaults()

	got := Merge(base, &Overrides{
		Dimensions: &DimensionsOverrides{Width: ptr(0.5)},
		Task:       &TaskOverrides{Output: ptr("build/app")},
	})

	if got.Dimensions.Width != 0.5 {
		t.Errorf("Dimensions.Width: want 0.5, got %v", got.Dimensions.Width)
	}
	if got.Dimensions.Height != base.Dimensions.Height || got.Dimensions.X != base.Dimensions.X || got.Dimensions.Y != base.Dimensions.Y {
		t.Errorf("Dimensions siblings changed: got %+v, base %+v", got.Dimensions, base.Dimensions)
	}
	if got.Task.Command != "gcc" {
		t.Errorf("Task.Command: want %q, got %q", "gcc", got.Task.Command)
	}
	if got.Task.Output != "build/app" {
		t.Errorf("Task.Output: want %q, got %q", "build/app", got.Task.Output)
	}
}

func TestMergeListReplacedWholesale(t *testing.T) {
	base := Defaults()
	base.Task.Args = []string{"-Wall", "-O2"}

	got := Merge(base, &Overrides{Task: &TaskOverrides{Args: []string{"-g"}}})

	if !slices.Equal(got.Task.Args, []string{"-g"}) {
		t.Errorf("Task.Args: want [-g], got %v", got.Task.Args)
	}
	if !slices.Equal(base.Task.Args, []string{"-Wall", "-O2"}) {
		t.Errorf("base mutated: %v", base.Task.Args)
	}
}

func TestMergeEnvMergedByKey(t *testing.T) {
	base := Defaults()
	base.Env = map[string]string{"CC": "gcc", "LANG": "C"}

	got := Merge(base, &Overrides{Env: map[string]string{"CC": "clang"}})

	if got.Env["CC"] != "clang" || got.Env["LANG"] != "C" {
		t.Errorf("Env: got %v", got.Env)
	}
	if base.Env["CC"] != "gcc" {
		t.Errorf("base mutated: %v", base.Env)
	}
}

func TestBordered(t *testing.T) {
	cases := map[string]bool{
		"":        false,
		"none":    false,
		"single":  true,
		"rounded": true,
		"hidden":  true,
	}
	for style, want := range cases {
		if got := Bordered(style); got != want {
			t.Errorf("Bordered(%q): want %v, got %v", style, want, got)
		}
	}
}

func TestMergeNilOverrides(t *testing.T) {
	base := Defaults()
	got := Merge(base, nil)
	if got.Border != base.Border || got.Task.Command != base.Task.Command {
		t.Errorf("nil overrides changed config: %+v", got)
	}
}

// Feature: popterm, Property 2: last write wins per key
func TestMergeLastWriteWins(t *testing.T) {
	optString := func(t *rapid.T, label string) *string {
		if rapid.Bool().Draw(t, "has_"+label) {
			return ptr(rapid.StringMatching(`[a-z]{1,10}`).Draw(t, label))
		}
		return nil
	}
	optRatio := func(t *rapid.T, label string) *float64 {
		if rapid.Bool().Draw(t, "has_"+label) {
			return ptr(rapid.Float64Range(0.01, 1).Draw(t, label))
		}
		return nil
	}
	gen := rapid.Custom(func(t *rapid.T) *Overrides {
		return &Overrides{
			Border:    optString(t, "border"),
			Highlight: optString(t, "hl"),
			Dimensions: &DimensionsOverrides{
				Width:  optRatio(t, "width"),
				Height: optRatio(t, "height"),
			},
			Task: &TaskOverrides{Command: optString(t, "task_command")},
		}
	})

	pick := func(first, second *string, def string) string {
		switch {
		case second != nil:
			return *second
		case first != nil:
			return *first
		default:
			return def
		}
	}
	pickRatio := func(first, second *float64, def float64) float64 {
		switch {
		case second != nil:
			return *second
		case first != nil:
			return *first
		default:
			return def
		}
	}

	rapid.Check(t, func(t *rapid.T) {
		first := gen.Draw(t, "first")
		second := gen.Draw(t, "second")
		defaults := Defaults()

		got := Merge(Merge(defaults, first), second)

		if want := pick(first.Border, second.Border, defaults.Border); got.Border != want {
			t.Fatalf("Border: want %q, got %q", want, got.Border)
		}
		if want := pick(first.Highlight, second.Highlight, defaults.Highlight); got.Highlight != want {
			t.Fatalf("Highlight: want %q, got %q", want, got.Highlight)
		}
		if want := pick(first.Task.Command, second.Task.Command, defaults.Task.Command); got.Task.Command != want {
			t.Fatalf("Task.Command: want %q, got %q", want, got.Task.Command)
		}
		if want := pickRatio(first.Dimensions.Width, second.Dimensions.Width, defaults.Dimensions.Width); got.Dimensions.Width != want {
			t.Fatalf("Dimensions.Width: want %v, got %v", want, got.Dimensions.Width)
		}
		if want := pickRatio(first.Dimensions.Height, second.Dimensions.Height, defaults.Dimensions.Height); got.Dimensions.Height != want {
			t.Fatalf("Dimensions.Height: want %v, got %v", want, got.Dimensions.Height)
		}
		if got.Dimensions.X != defaults.Dimensions.X || got.Dimensions.Y != defaults.Dimensions.Y {
			t.Fatalf("untouched dimensions changed: %+v", got.Dimensions)
		}
	})
}

func TestShellCommandLiteral(t *testing.T) {
	cfg := Defaults()
	cfg.Cmd = Literal("/bin/dash")

	got, err := cfg.ShellCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/bin/dash" {
		t.Errorf("want %q, got %q", "/bin/dash", got)
	}
}

func TestShellCommandDerivedReadsEnvironmentLate(t *testing.T) {
	t.Setenv("POPTERM_SHELL", "/bin/first")
	cfg := Defaults()

	t.Setenv("POPTERM_SHELL", "/bin/second")
	got, err := cfg.ShellCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/bin/second" {
		t.Errorf("want %q, got %q", "/bin/second", got)
	}
}

func TestShellCommandEmptyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("POPTERM_SHELL", "/bin/sh")
	cfg := Defaults()
	cfg.Cmd = Literal("")

	got, err := cfg.ShellCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/bin/sh" {
		t.Errorf("want %q, got %q", "/bin/sh", got)
	}
}

func TestShellCommandMissingEverywhere(t *testing.T) {
	t.Setenv("POPTERM_SHELL", "")
	t.Setenv("SHELL", "")
	cfg := Defaults()
	cfg.Cmd = Literal("")

	_, err := cfg.ShellCommand()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %T: %v", err, err)
	}
	var envErr *env.EnvironmentError
	if !errors.As(err, &envErr) {
		t.Errorf("expected wrapped *env.EnvironmentError, got %v", err)
	}
}

func TestCommandVariants(t *testing.T) {
	calls := 0
	derived := Derived(func() (string, error) {
		calls++
		return "htop", nil
	})

	cases := []struct {
		name string
		cmd  Command
		want string
	}{
		{"literal", Literal("make test"), "make test"},
		{"args", Args("gcc", "main.c", "-o", "./main"), "gcc main.c -o ./main"},
		{"derived", derived, "htop"},
		{"zero", Command{}, ""},
	}
	for _, tc := range cases {
		got, err := tc.cmd.Evaluate()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: want %q, got %q", tc.name, tc.want, got)
		}
	}
	if calls != 1 {
		t.Errorf("derived producer: want 1 call, got %d", calls)
	}
	if derived.String() != "<derived>" || !derived.IsDerived() {
		t.Errorf("derived String: got %q", derived.String())
	}
}

func TestLoadFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
border = "double"
cmd = "bash --login"

[dimensions]
width = 0.6

[task]
command = "clang"
args = ["-Wall"]

[env]
CC = "clang"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Merge(Defaults(), o)
	if got.Border != "double" {
		t.Errorf("Border: got %q", got.Border)
	}
	if s, _ := got.Cmd.Evaluate(); s != "bash --login" {
		t.Errorf("Cmd: got %q", s)
	}
	if got.Dimensions.Width != 0.6 || got.Dimensions.Height != 0.8 {
		t.Errorf("Dimensions: got %+v", got.Dimensions)
	}
	if got.Task.Command != "clang" || !slices.Equal(got.Task.Args, []string{"-Wall"}) {
		t.Errorf("Task: got %+v", got.Task)
	}
	if got.Env["CC"] != "clang" {
		t.Errorf("Env: got %v", got.Env)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"hl": "Pmenu", "auto_close": false, "task": {"output": "bin/app"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Merge(Defaults(), o)
	if got.Highlight != "Pmenu" || got.AutoClose || got.Task.Output != "bin/app" {
		t.Errorf("unexpected config: %+v", got)
	}
}

func TestLoadFileMissingReturnsNil(t *testing.T) {
	o, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o != nil {
		t.Errorf("expected nil overrides, got %+v", o)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	cfgDir := filepath.Join(tmp, "popterm")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if parseErr.Path != filepath.Join(cfgDir, "config.json") {
		t.Errorf("Path: got %q", parseErr.Path)
	}
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	testChdir(t, t.TempDir())

	o, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o != nil {
		t.Errorf("expected nil overrides, got %+v", o)
	}
}

func TestSaveGlobalRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := Literal("zsh")
	path, err := SaveGlobal(&Overrides{
		Border: ptr("rounded"),
		Cmd:    &cmd,
		Task:   &TaskOverrides{Command: ptr("cc")},
	})
	if err != nil {
		t.Fatalf("SaveGlobal: %v", err)
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("unexpected path %q", path)
	}

	o, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	got := Merge(Defaults(), o)
	if got.Border != "rounded" || got.Task.Command != "cc" {
		t.Errorf("unexpected config: %+v", got)
	}
	if s, _ := got.Cmd.Evaluate(); s != "zsh" {
		t.Errorf("Cmd: got %q", s)
	}
}

func TestRunWizardAnswers(t *testing.T) {
	in := strings.NewReader("zsh\nrounded\n0.6\n\nn\nclang\n-Wall -g\nalt+t\n")
	var out bytes.Buffer

	o, err := RunWizard(in, &out, Defaults())
	if err != nil {
		t.Fatalf("RunWizard: %v", err)
	}
	cfg := Merge(Defaults(), o)

	if got, _ := cfg.Cmd.Evaluate(); got != "zsh" {
		t.Errorf("cmd: want zsh, got %q", got)
	}
	if cfg.Border != "rounded" {
		t.Errorf("border: want rounded, got %q", cfg.Border)
	}
	if cfg.Dimensions.Width != 0.6 || cfg.Dimensions.Height != 0.8 {
		t.Errorf("dimensions: got %+v", cfg.Dimensions)
	}
	if cfg.AutoClose {
		t.Error("auto_close: want false")
	}
	if cfg.Task.Command != "clang" || strings.Join(cfg.Task.Args, " ") != "-Wall -g" {
		t.Errorf("task: got %+v", cfg.Task)
	}
	if cfg.Keys.Toggle != "alt+t" || cfg.Keys.Close != "ctrl+q" {
		t.Errorf("keys: got %+v", cfg.Keys)
	}
	if !strings.Contains(out.String(), "Border (single/double/rounded/thick/hidden/none) [single]") {
		t.Errorf("expected border prompt with default, got:\n%s", out.String())
	}
}

func TestRunWizardDefaultsAndInvalidAnswers(t *testing.T) {
	in := strings.NewReader("\nwavy\n2\nabc\n\n\n\n\n")
	var out bytes.Buffer

	o, err := RunWizard(in, &out, Defaults())
	if err != nil {
		t.Fatalf("RunWizard: %v", err)
	}
	if o.Cmd != nil {
		t.Error("empty shell answer must keep the environment default")
	}
	cfg := Merge(Defaults(), o)
	if cfg.Border != "single" {
		t.Errorf("border: want single, got %q", cfg.Border)
	}
	if cfg.Dimensions.Width != 0.8 || cfg.Dimensions.Height != 0.8 {
		t.Errorf("dimensions: got %+v", cfg.Dimensions)
	}
	if !cfg.AutoClose || cfg.Task.Command != "gcc" || cfg.Keys.Toggle != "ctrl+t" {
		t.Errorf("expected defaults kept, got %+v", cfg)
	}
}

func TestRunWizardEOF(t *testing.T) {
	if _, err := RunWizard(strings.NewReader("zsh\n"), io.Discard, Defaults()); err == nil {
		t.Error("expected error when input ends early")
	}
}

// testChdir stands in for testing.T.Chdir, which needs Go 1.24.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
