// Package ui provides the terminal components of the tram CLI: a spinner for
// slow operations, tables and status badges.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/AshkanYarmoradi/go-tram/cli/styles"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// SpinnerModel is a spinner component with a message
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a spinner showing message.
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{
		spinner: s,
		message: message,
	}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SpinnerModel) View() string {
	if m.done {
		if m.err != nil {
			return styles.FormatError(m.result) + "\n"
		}
		return styles.FormatSuccess(m.result) + "\n"
	}

	if m.quitting {
		return styles.FormatWarning("Cancelled") + "\n"
	}

	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// SpinnerDoneMsg signals that the spinner operation is complete
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Spin runs task while showing a spinner with message on out. When out is not
// a terminal the spinner is skipped and only the outcome line is printed.
// task returns the line to print and its error.
func Spin(out io.Writer, message string, task func() (string, error)) error {
	if !IsTerminal(out) {
		result, err := task()
		if err != nil {
			fmt.Fprintln(out, styles.FormatError(result))
			return err
		}
		fmt.Fprintln(out, styles.FormatSuccess(result))
		return nil
	}

	p := tea.NewProgram(NewSpinner(message), tea.WithOutput(out))

	var taskErr error
	go func() {
		result, err := task()
		taskErr = err
		p.Send(SpinnerDoneMsg{Result: result, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(SpinnerModel); ok && m.quitting {
		return fmt.Errorf("cancelled")
	}
	return taskErr
}

// Table collects rows and renders them with rounded borders.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table with headers
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a row, padding or truncating it to the header count.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the formatted table string
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers(t.headers...).
		Rows(t.rows...).
		String()
}

// StatusBadge returns a styled badge for a saga state or a check status.
func StatusBadge(status string) string {
	badge := lipgloss.NewStyle().Padding(0, 1)

	switch strings.ToLower(status) {
	case "completed", "ok", "healthy", "applied":
		badge = badge.Background(styles.Success).Foreground(lipgloss.Color("#000000"))
	case "running", "pending":
		badge = badge.Background(styles.Info).Foreground(lipgloss.Color("#FFFFFF"))
	case "compensating", "rolled back", "warning":
		badge = badge.Background(styles.Warning).Foreground(lipgloss.Color("#000000"))
	case "failed", "error":
		badge = badge.Background(styles.Error).Foreground(lipgloss.Color("#FFFFFF"))
	default:
		badge = badge.Background(styles.Surface).Foreground(styles.Text)
	}

	return badge.Render(status)
}

// SimpleBanner returns the one-line tram banner.
func SimpleBanner() string {
	return styles.IconTram + " " +
		lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("tram") + " " +
		styles.Muted.Render("- saga orchestration for Go")
}

// ListItems formats a list of items with bullets
func ListItems(items []string) string {
	var sb strings.Builder
	bullet := lipgloss.NewStyle().Foreground(styles.Primary).PaddingRight(1)
	for _, item := range items {
		sb.WriteString("  ")
		sb.WriteString(bullet.Render(styles.IconDot))
		sb.WriteString(styles.Normal.Render(item))
		sb.WriteString("\n")
	}
	return sb.String()
}
