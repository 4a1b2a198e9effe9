package render

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/seantiz/dss/internal/model"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	otherStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	linkStyle      = lipgloss.NewStyle().Underline(true)
	bodyStyle      = lipgloss.NewStyle().PaddingLeft(2)
)

// Terminal renders a status for a text console. baseURL, when set, is
// prefixed to the result link so it can be opened directly.
func Terminal(status model.ExecutionStatus, baseURL string) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("execution " + status.ID))
	b.WriteString(" ")
	b.WriteString(statusStyle(status.Status).Render(status.Status))
	b.WriteString("\n")

	if pretty, err := json.MarshalIndent(status, "", "  "); err == nil {
		b.WriteString(bodyStyle.Render(string(pretty)))
		b.WriteString("\n")
	}
	if status.Running() {
		b.WriteString(runningStyle.Render("  … running"))
		b.WriteString("\n")
	}
	if status.Link != "" {
		link := status.Link
		if baseURL != "" {
			link = strings.TrimRight(baseURL, "/") + "/" + link
		}
		b.WriteString("  best run: ")
		b.WriteString(linkStyle.Render(link))
		b.WriteString("\n")
	}

	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case model.StatusRunning:
		return runningStyle
	case model.StatusCompleted:
		return completedStyle
	default:
		return otherStyle
	}
}
