// Package tui renders run progress and results on the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	ColorSuccess = lipgloss.Color("#10B981") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red

	// Neutral colors
	ColorText      = lipgloss.Color("#E5E7EB") // Light gray
	ColorTextMuted = lipgloss.Color("#9CA3AF") // Muted gray
	ColorBorder    = lipgloss.Color("#374151") // Dark gray
)
