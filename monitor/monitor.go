// ABOUTME: Interactive run monitor showing live optimization progress
// ABOUTME: Bubbletea model consuming optimizer updates, quit cancels the run

package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"geneva/optimizer"
)

// historyLen bounds the fitness history shown in the recent-best row.
const historyLen = 8

// Model is the bubbletea model for a running optimization.
type Model struct {
	updates <-chan optimizer.Update
	cancel  context.CancelFunc

	spinner spinner.Model

	current optimizer.Update
	history []float64
	done    bool
}

// updateMsg wraps an optimizer update for the bubbletea runtime.
type updateMsg optimizer.Update

// doneMsg signals that the update stream ended.
type doneMsg struct{}

// New builds a monitor over an update stream. cancel is invoked when the
// user quits, ending the optimization run cooperatively.
func New(updates <-chan optimizer.Update, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		updates: updates,
		cancel:  cancel,
		spinner: sp,
	}
}

// waitForUpdate reads the next update from the stream.
func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return doneMsg{}
		}

		return updateMsg(u)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()

			return m, tea.Quit
		}

	case updateMsg:
		m.current = optimizer.Update(msg)

		m.history = append(m.history, m.current.BestRaw)
		if len(m.history) > historyLen {
			m.history = m.history[len(m.history)-historyLen:]
		}

		return m, m.waitForUpdate()

	case doneMsg:
		m.done = true

		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("geneva optimization"))
	b.WriteString("\n\n")

	status := m.spinner.View() + " running"
	if m.done {
		status = "finished"
	}

	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"algorithm", m.current.Algorithm},
		{"iteration", fmt.Sprintf("%d", m.current.Iteration)},
		{"best fitness", fmt.Sprintf("%.8g", m.current.BestRaw)},
		{"stalls", fmt.Sprintf("%d", m.current.Stalls)},
		{"iter/s", fmt.Sprintf("%.1f", m.current.IterPerSec)},
	}

	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(valueStyle.Render(row[1]))
		b.WriteString("\n")
	}

	if len(m.history) > 1 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("recent best"))
		b.WriteString(historyStyle.Render(renderHistory(m.history)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q to stop"))
	b.WriteString("\n")

	return b.String()
}

// renderHistory prints the recent best values oldest-first.
func renderHistory(history []float64) string {
	parts := make([]string, len(history))
	for i, v := range history {
		parts[i] = fmt.Sprintf("%.3g", v)
	}

	return strings.Join(parts, " → ")
}

// Run drives the monitor until the run finishes or the user quits.
func Run(updates <-chan optimizer.Update, cancel context.CancelFunc) error {
	program := tea.NewProgram(New(updates, cancel))

	_, err := program.Run()

	return err
}
