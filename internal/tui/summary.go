package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
)

// TruncateString removes newlines and truncates the string to maxLen.
func TruncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// OutcomeTable renders one line per outcome: icon, task, duration, and the
// error for failures.
func OutcomeTable(s Styles, outcomes []core.Outcome) string {
	width := 0
	for _, o := range outcomes {
		if n := len(o.TaskID); n > width {
			width = n
		}
	}

	var b strings.Builder
	for _, o := range outcomes {
		line := fmt.Sprintf("  %s %-*s  %8s", s.StatusIcon(string(o.Status)), width, o.TaskID, o.Duration.Round(time.Millisecond))
		if o.Attempts > 1 {
			line += s.Muted.Render(fmt.Sprintf("  %d attempts", o.Attempts))
		}
		if !o.OK() {
			line += "  " + s.Error.Render(TruncateString(o.Error, 100))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// RenderResult renders the outcome summary of a run. The report itself is
// printed separately.
func RenderResult(s Styles, res *diagnosis.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.Header.Render("Run"), res.RunID)
	fmt.Fprintf(&b, "  State:    %s\n", stateLabel(s, res.State))
	fmt.Fprintf(&b, "  Duration: %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "\n%s\n", s.Section.Render("Specialists"))
	b.WriteString(OutcomeTable(s, res.Outcomes))
	if res.Synthesis != nil {
		fmt.Fprintf(&b, "\n%s\n", s.Section.Render("Synthesis"))
		b.WriteString(OutcomeTable(s, []core.Outcome{*res.Synthesis}))
	}
	if res.Degraded() && res.State == core.RunStateDone {
		fmt.Fprintf(&b, "\n%s %s\n", s.StatusIcon("warning"),
			s.Warning.Render(fmt.Sprintf("%d of %d specialists failed; the report omits their perspective", res.Failed(), len(res.Outcomes))))
	}
	return b.String()
}

// RenderRecord renders a stored run.
func RenderRecord(s Styles, rec *core.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.Header.Render("Run"), rec.ID)
	fmt.Fprintf(&b, "  State:    %s\n", stateLabel(s, rec.State))
	if rec.Source != "" {
		fmt.Fprintf(&b, "  Source:   %s\n", rec.Source)
	}
	fmt.Fprintf(&b, "  Document: %d bytes", rec.DocumentSize)
	if rec.DocumentDigest != "" {
		fmt.Fprintf(&b, " %s", s.Muted.Render("sha256:"+TruncateString(rec.DocumentDigest, 15)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Created:  %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "  Duration: %s\n", rec.Duration.Round(time.Millisecond))
	if rec.ErrorCode != "" {
		fmt.Fprintf(&b, "  Error:    %s %s\n", s.Error.Render(rec.ErrorCode), rec.ErrorMessage)
	}
	if len(rec.Outcomes) > 0 {
		fmt.Fprintf(&b, "\n%s\n", s.Section.Render("Specialists"))
		b.WriteString(OutcomeTable(s, rec.Outcomes))
	}
	if rec.Synthesis != nil {
		fmt.Fprintf(&b, "\n%s\n", s.Section.Render("Synthesis"))
		b.WriteString(OutcomeTable(s, []core.Outcome{*rec.Synthesis}))
	}
	return b.String()
}

// RenderRunList renders run summaries, one per line.
func RenderRunList(s Styles, runs []core.RunSummary) string {
	if len(runs) == 0 {
		return s.Muted.Render("No runs recorded.") + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", s.Label.Render(fmt.Sprintf("%-36s  %-19s  %-20s  %s", "RUN", "CREATED", "STATE", "SPECIALISTS")))
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s  %-19s  %-20s  %d ok / %d failed\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.State, r.Succeeded, r.Failed)
	}
	return b.String()
}

func stateLabel(s Styles, state core.RunState) string {
	switch state {
	case core.RunStateDone:
		return s.Success.Render(string(state))
	case core.RunStateFailedAtSynthesis, core.RunStateRejected:
		return s.Error.Render(string(state))
	default:
		return s.Warning.Render(string(state))
	}
}
