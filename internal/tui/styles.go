package tui

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles used by terminal output.
type Styles struct {
	Header  lipgloss.Style
	Section lipgloss.Style
	Label   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
}

// NewStyles returns the colored styles, or unstyled ones when useColor is false.
func NewStyles(useColor bool) Styles {
	if !useColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Header:  plain,
			Section: plain,
			Label:   plain,
			Success: plain,
			Warning: plain,
			Error:   plain,
			Muted:   plain,
			Box:     plain,
		}
	}
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),
		Section: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary),
		Label: lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true),
		Success: lipgloss.NewStyle().
			Foreground(ColorSuccess),
		Warning: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(ColorTextMuted),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
	}
}

// StatusIcon returns the icon for a task status, styled.
func (s Styles) StatusIcon(status string) string {
	switch status {
	case "running":
		return s.Section.Render("●")
	case "success", "done":
		return s.Success.Render("✓")
	case "failure", "failed":
		return s.Error.Render("✗")
	case "warning":
		return s.Warning.Render("⚠")
	default:
		return s.Muted.Render("○")
	}
}
