package ui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/fakeyudi/popterm/internal/config"
	"github.com/fakeyudi/popterm/internal/host"
)

// ── Styles ────────────────────────────────────────────────────────────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	surfaceTitleStyle = lipgloss.NewStyle().Bold(true)
)

// highlights maps highlight group names to surface styles. Unknown names
// that look like colors are used as the background.
var highlights = map[string]lipgloss.Style{
	"Normal":      lipgloss.NewStyle(),
	"NormalFloat": lipgloss.NewStyle().Background(lipgloss.Color("235")),
	"Pmenu":       lipgloss.NewStyle().Background(lipgloss.Color("237")).Foreground(lipgloss.Color("252")),
	"Comment":     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	"ErrorMsg":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

func highlightStyle(opts host.DisplayOptions) lipgloss.Style {
	st, ok := highlights[opts.Highlight]
	if !ok {
		st = lipgloss.NewStyle()
		if opts.Highlight != "" && (strings.HasPrefix(opts.Highlight, "#") || isDigits(opts.Highlight)) {
			st = st.Background(lipgloss.Color(opts.Highlight))
		}
	}
	// A cell renderer has no alpha; heavy blending renders faint instead.
	if opts.Opacity >= 50 {
		st = st.Faint(true)
	}
	return st
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func borderFor(style string) (lipgloss.Border, bool) {
	if !config.Bordered(style) {
		return lipgloss.Border{}, false
	}
	switch style {
	case "double":
		return lipgloss.DoubleBorder(), true
	case "rounded":
		return lipgloss.RoundedBorder(), true
	case "thick":
		return lipgloss.ThickBorder(), true
	case "hidden":
		return lipgloss.HiddenBorder(), true
	default:
		return lipgloss.NormalBorder(), true
	}
}

// ── Bubble Tea interface ──────────────────────────────────────────────────────

func (s *Screen) Init() tea.Cmd { return nil }

func (s *Screen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.mu.Lock()
		s.size = host.Size{Columns: msg.Width, Lines: msg.Height}
		s.cmdline.Width = msg.Width - 2
		s.mu.Unlock()
		return s, nil

	case tea.KeyMsg:
		return s, s.handleKey(msg)

	case outputMsg, exitMsg, actionMsg:
		s.handle(msg)
		return s, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmdActive {
		var cmd tea.Cmd
		s.cmdline, cmd = s.cmdline.Update(msg)
		return s, cmd
	}
	return s, nil
}

// handleKey routes a keystroke: command line first, then bindings of the
// focused buffer, then global bindings, then the focused process.
func (s *Screen) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()

	s.mu.Lock()
	if s.cmdActive {
		defer s.mu.Unlock()
		return s.commandLineKey(msg)
	}

	var (
		fn      func()
		focused bool
		process host.ProcessHandle
	)
	if surf, ok := s.surfaces[s.focused]; ok {
		if b, ok := s.buffers[surf.buffer]; ok {
			focused = true
			process = b.process
			fn = b.bindings[key]
		}
	}
	if fn == nil {
		fn = s.global[key]
	}
	s.mu.Unlock()

	if fn != nil {
		fn()
		return nil
	}

	if focused {
		if data := keyBytes(msg); process != "" && len(data) > 0 {
			if err := s.procs.Write(process, data); err != nil {
				s.report(err)
			}
		}
		return nil
	}

	switch key {
	case "q", "ctrl+c":
		return tea.Quit
	case ":":
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cmdActive = true
		s.status = ""
		s.cmdline.Reset()
		return s.cmdline.Focus()
	}
	return nil
}

// commandLineKey handles a key while the command line is open. Caller holds
// s.mu; registered commands run after it is released.
func (s *Screen) commandLineKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		s.cmdActive = false
		s.cmdline.Blur()
		return nil
	case tea.KeyEnter:
		name := strings.TrimSpace(s.cmdline.Value())
		s.cmdActive = false
		s.cmdline.Blur()
		if name == "" {
			return nil
		}
		if name == "q" || name == "quit" {
			return tea.Quit
		}
		return func() tea.Msg {
			return actionMsg{fn: func() error { return s.RunCommand(name) }}
		}
	}
	var cmd tea.Cmd
	s.cmdline, cmd = s.cmdline.Update(msg)
	return cmd
}

func (s *Screen) View() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := s.size.Columns, s.size.Lines
	if w <= 0 || h <= 0 {
		return ""
	}

	lines := make([]string, h)
	title := "  popterm"
	if s.source != "" {
		title += "  " + s.source
	}
	lines[0] = titleStyle.Width(w).Render(ansi.Truncate(title, w-4, "…"))
	if h > 2 {
		lines[2] = hintStyle.Render("  Commands: " + strings.Join(s.commandNames(), "  "))
	}
	if h > 3 {
		lines[3] = hintStyle.Render("  : command line   q quit")
	}

	for _, sh := range s.order {
		s.overlaySurface(lines, s.surfaces[sh])
	}

	switch {
	case s.cmdActive:
		lines[h-1] = s.cmdline.View()
	case s.status != "":
		lines[h-1] = statusBarStyle.Width(w).Render(errorStyle.Render(s.status))
	default:
		hint := "no terminal"
		if surf, ok := s.surfaces[s.focused]; ok {
			hint = fmt.Sprintf("terminal %dx%d", surf.vp.Width, surf.vp.Height)
		}
		lines[h-1] = statusBarStyle.Width(w).Render(hint)
	}
	return strings.Join(lines, "\n")
}

func (s *Screen) commandNames() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// overlaySurface draws surf over lines at its rectangle.
func (s *Screen) overlaySurface(lines []string, surf *surface) {
	r := surf.cfg.Rect
	if r.Width <= 0 || r.Height <= 0 {
		return
	}

	st := highlightStyle(surf.display)
	border, hasBorder := borderFor(surf.cfg.Border)
	w, h := r.Inner(hasBorder)
	if hasBorder {
		st = st.Border(border)
	}
	box := st.Width(w).Height(h).MaxHeight(r.Height).Render(surf.vp.View())

	rows := strings.Split(box, "\n")
	if hasBorder && surf.cfg.Title != "" && len(rows) > 0 {
		rows[0] = splice(rows[0], 2, surfaceTitleStyle.Render(" "+surf.cfg.Title+" "))
	}
	for i, row := range rows {
		y := r.Row + i
		if y < 0 || y >= len(lines) {
			continue
		}
		lines[y] = splice(lines[y], r.Col, row)
	}
}

// splice writes over onto line starting at column col.
func splice(line string, col int, over string) string {
	if col < 0 {
		over = ansi.TruncateLeft(over, -col, "")
		col = 0
	}
	if pad := col - ansi.StringWidth(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	left := ansi.Truncate(line, col, "")
	right := ansi.TruncateLeft(line, col+ansi.StringWidth(over), "")
	return left + over + right
}
