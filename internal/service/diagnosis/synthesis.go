package diagnosis

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// FormatSynthesisInput renders outcomes, in the given order, as the text the
// synthesis task receives. Failed outcomes are written out so the synthesis
// can see which perspectives are missing.
func FormatSynthesisInput(outcomes []core.Outcome) string {
	var sb strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s Report:\n", o.TaskID)
		if o.OK() {
			sb.WriteString(o.Text)
		} else {
			fmt.Fprintf(&sb, "FAILED (%s): %s", strings.ToLower(o.ErrorCode), o.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
