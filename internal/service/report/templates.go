package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// sanitizeFilename removes or replaces characters unsuitable for filenames
func sanitizeFilename(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			result.WriteRune(r)
		} else if r == ' ' || r == '/' || r == ':' {
			result.WriteRune('-')
		}
	}
	return strings.Trim(strings.ToLower(result.String()), ".")
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// renderOpinions renders every specialist outcome followed by the synthesis status.
func renderOpinions(outcomes []core.Outcome, synthesis *core.Outcome) string {
	var sb strings.Builder

	sb.WriteString("# Specialist Opinions\n\n")
	sb.WriteString("| Specialist | Status | Duration | Attempts |\n")
	sb.WriteString("|------------|--------|----------|----------|\n")
	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d |\n", o.TaskID, statusLabel(o), formatDuration(o.Duration), o.Attempts))
	}

	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", o.TaskID))
		if o.OK() {
			text := strings.TrimSpace(o.Text)
			if text == "" {
				text = "_No findings reported._"
			}
			sb.WriteString(text + "\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("**Failed** (%s): %s\n", strings.ToLower(o.ErrorCode), o.Error))
	}

	if synthesis != nil {
		sb.WriteString(fmt.Sprintf("\n## Synthesis (%s)\n\n", synthesis.TaskID))
		sb.WriteString(fmt.Sprintf("- **Status**: %s\n", statusLabel(*synthesis)))
		sb.WriteString(fmt.Sprintf("- **Duration**: %s\n", formatDuration(synthesis.Duration)))
	}

	return sb.String()
}

func statusLabel(o core.Outcome) string {
	if o.OK() {
		return "ok"
	}
	return "failed"
}
