package cmd

import (
	"encoding/json"
	"os"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/tui"
)

var (
	detector = tui.NewDetector()
	styles   = tui.NewStyles(detector.ShouldUseColor())
)

func disableColor() {
	detector.NoColor(true)
	styles = tui.NewStyles(false)
}

func useColor() bool {
	return detector.ShouldUseColor()
}

// OutputJSON writes v as indented JSON to stdout.
func OutputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
