// ABOUTME: Lipgloss styles for the run monitor
// ABOUTME: Kept in one place so the palette is easy to adjust

package monitor

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Width(14).
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("109"))

	helpStyle = lipgloss.NewStyle().
			Faint(true)
)
