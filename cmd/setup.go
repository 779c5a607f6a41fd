package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/popterm/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the global config interactively (re-run anytime to edit)",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := config.RunWizard(cmd.InOrStdin(), cmd.OutOrStdout(), GetConfig())
		if err != nil {
			return fmt.Errorf("setup cancelled: %w", err)
		}

		path, err := config.SaveGlobal(o)
		if err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		cmd.Printf("  ✓ Config saved to %s\n", path)
		cmd.Println("  Run 'popterm open' to start.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
