package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/app"
	"github.com/fakeyudi/popterm/internal/pty"
	"github.com/fakeyudi/popterm/internal/terminal"
	"github.com/fakeyudi/popterm/internal/ui"
)

var openTitle string

var openCmd = &cobra.Command{
	Use:   "open [file]",
	Short: "Open the terminal screen; file becomes the CompileRun target",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTerminalApp()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			t.screen.SetSource(args[0])
		}
		if err := t.app.Session().Open(); err != nil {
			t.shutdown()
			return err
		}
		return t.run()
	},
}

func init() {
	openCmd.Flags().StringVar(&openTitle, "title", "popterm", "title shown on the terminal border")
	rootCmd.AddCommand(openCmd)
}

// terminalApp is the pty manager, screen and app wired together.
type terminalApp struct {
	procs  *pty.Manager
	screen *ui.Screen
	app    *app.App
}

// newTerminalApp builds the interactive screen and an app bound to it, then
// applies each config layer through Setup.
func newTerminalApp() (*terminalApp, error) {
	procs := pty.NewManager(pty.WithLogger(logger.Named("pty")))
	scr := ui.New(procs, ui.WithLogger(logger.Named("ui")))
	a := app.New(scr,
		app.WithLogger(logger.Named("session")),
		app.WithSessionOptions(terminal.WithTitle(openTitle)),
	)

	// One Setup per layer; later files override earlier ones key by key.
	for _, o := range layers {
		if err := a.Setup(o); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	return &terminalApp{procs: procs, screen: scr, app: a}, nil
}

// run runs the event loop and releases the terminal afterwards.
func (t *terminalApp) run() error {
	runErr := t.screen.Run()
	t.shutdown()
	return runErr
}

// shutdown tears down the session, then kills anything still attached to a
// pty so no shell outlives popterm.
func (t *terminalApp) shutdown() {
	if err := t.app.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	t.procs.TerminateAll()
}
