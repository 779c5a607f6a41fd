package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/geometry"
	"github.com/fakeyudi/popterm/internal/ui"
)

var (
	viewportColumns int
	viewportLines   int
)

var geometryCmd = &cobra.Command{
	Use:   "geometry",
	Short: "Print the terminal rectangle for a viewport size",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := ui.TerminalSize()
		if viewportColumns > 0 {
			v.Columns = viewportColumns
		}
		if viewportLines > 0 {
			v.Lines = viewportLines
		}
		c := GetConfig()
		r := geometry.Calculate(c.Dimensions, v)
		w, h := r.Inner(config.Bordered(c.Border))

		cmd.Printf("viewport: %dx%d\n", v.Columns, v.Lines)
		cmd.Printf("width=%d height=%d col=%d row=%d\n", r.Width, r.Height, r.Col, r.Row)
		cmd.Printf("content: %dx%d\n", w, h)
		return nil
	},
}

func init() {
	geometryCmd.Flags().IntVar(&viewportColumns, "columns", 0, "viewport columns (default: current terminal)")
	geometryCmd.Flags().IntVar(&viewportLines, "lines", 0, "viewport lines (default: current terminal)")
	rootCmd.AddCommand(geometryCmd)
}
