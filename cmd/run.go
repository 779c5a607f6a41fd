package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/watch"
)

var watchSource bool

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compile file, run the result in the terminal, optionally on every save",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("source file: %w", err)
		}

		t, err := newTerminalApp()
		if err != nil {
			return err
		}
		t.screen.SetSource(src)
		if err := t.app.CompileAndRunFile(src); err != nil {
			t.shutdown()
			return err
		}

		if watchSource {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				err := watch.File(ctx, src, func() {
					t.screen.Do(func() error { return t.app.CompileAndRunFile(src) })
				}, watch.Options{
					OnError: func(err error) { logger.Warn("watch", zap.Error(err)) },
				})
				if err != nil {
					logger.Error("watcher stopped", zap.String("file", src), zap.Error(err))
				}
			}()
		}

		return t.run()
	},
}

func init() {
	runCmd.Flags().BoolVarP(&watchSource, "watch", "w", false, "rebuild and rerun whenever the file is saved")
	rootCmd.AddCommand(runCmd)
}
