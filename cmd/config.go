package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/popterm/internal/config"
)

var resolveShell bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()
		if resolveShell {
			shell, err := c.ShellCommand()
			if err != nil {
				return err
			}
			c.Cmd = config.Literal(shell)
		}
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&resolveShell, "resolve", false, "resolve the shell command from the environment")
	rootCmd.AddCommand(configCmd)
}
