package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// borderStyles are the accepted values of the border key.
var borderStyles = []string{"single", "double", "rounded", "thick", "hidden", "none"}

// RunWizard asks for the common settings on w, reading answers from r, and
// returns them as overrides. An empty answer keeps the value from current.
func RunWizard(r io.Reader, w io.Writer, current Config) (*Overrides, error) {
	br := bufio.NewReader(r)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(w, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(w, "%s: ", prompt)
		}
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		ans = strings.ToLower(ans)
		return ans == "y" || ans == "yes", nil
	}

	askRatio := func(prompt string, defaultVal float64) (float64, error) {
		ans, err := ask(prompt+" (0-1]", strconv.FormatFloat(defaultVal, 'f', -1, 64))
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(ans, 64)
		if err != nil || v <= 0 || v > 1 {
			fmt.Fprintf(w, "  %q is not a ratio, keeping %v\n", ans, defaultVal)
			return defaultVal, nil
		}
		return v, nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(w, "  │      popterm · configuration    │")
	fmt.Fprintln(w, "  └─────────────────────────────────┘")
	fmt.Fprintln(w)

	o := &Overrides{}

	cmdDefault := ""
	if !current.Cmd.IsDerived() {
		cmdDefault = current.Cmd.String()
	}
	shell, err := ask("  Shell command (empty: $SHELL)", cmdDefault)
	if err != nil {
		return nil, err
	}
	if shell != "" {
		c := Literal(shell)
		o.Cmd = &c
	}

	border, err := ask("  Border ("+strings.Join(borderStyles, "/")+")", current.Border)
	if err != nil {
		return nil, err
	}
	if !validBorder(border) {
		fmt.Fprintf(w, "  unknown border %q, keeping %s\n", border, current.Border)
		border = current.Border
	}
	o.Border = &border

	width, err := askRatio("  Width", current.Dimensions.Width)
	if err != nil {
		return nil, err
	}
	height, err := askRatio("  Height", current.Dimensions.Height)
	if err != nil {
		return nil, err
	}
	o.Dimensions = &DimensionsOverrides{Width: &width, Height: &height}

	autoClose, err := askBool("  Close the terminal when its shell exits", current.AutoClose)
	if err != nil {
		return nil, err
	}
	o.AutoClose = &autoClose

	compiler, err := ask("  Build command", current.Task.Command)
	if err != nil {
		return nil, err
	}
	args, err := ask("  Build flags (space separated)", strings.Join(current.Task.Args, " "))
	if err != nil {
		return nil, err
	}
	o.Task = &TaskOverrides{Command: &compiler, Args: strings.Fields(args)}

	toggle, err := ask("  Toggle key", current.Keys.Toggle)
	if err != nil {
		return nil, err
	}
	o.Keys = &KeysOverrides{Toggle: &toggle}

	fmt.Fprintln(w)
	return o, nil
}

func validBorder(s string) bool {
	for _, b := range borderStyles {
		if s == b {
			return true
		}
	}
	return false
}
