package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/env"
	"github.com/fakeyudi/popterm/internal/logging"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// layers holds the loaded config files in precedence order (global,
// project, --config). Nil entries are files that do not exist.
var layers []*config.Overrides

// logger is built from cfg.Log in PersistentPreRunE.
var logger = zap.NewNop()

var configPath string

var rootCmd = &cobra.Command{
	Use:          "popterm",
	Short:        "A toggleable floating terminal with build-and-run",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		var explicit *config.Overrides
		if configPath != "" {
			explicit, err = config.LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("loading %s: %w", configPath, err)
			}
			if explicit == nil {
				return fmt.Errorf("config file not found: %s", configPath)
			}
		}

		layers = []*config.Overrides{global, project, explicit}
		cfg = config.Defaults()
		for _, o := range layers {
			cfg = config.Merge(cfg, o)
		}

		// Environment wins over files for logging.
		e, err := env.Load()
		if err != nil {
			return err
		}
		if e.LogLevel != "" {
			cfg.Log.Level = e.LogLevel
		}
		if e.LogFile != "" {
			cfg.Log.File = e.LogFile
		}

		logger, err = logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}

		// First run: point interactive users at the wizard.
		if global == nil && cmd.Name() != "setup" && term.IsTerminal(os.Stdin.Fd()) {
			cmd.PrintErrln("  No popterm config found. Run 'popterm setup' to create one.")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "extra config file (TOML or JSON) applied last")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}
