package tui

import (
	"os"

	"golang.org/x/term"
)

// OutputMode represents the output mode.
type OutputMode int

const (
	// ModeRich uses styled output with live progress.
	ModeRich OutputMode = iota

	// ModePlain uses plain text output.
	ModePlain

	// ModeJSON prints only the JSON result.
	ModeJSON

	// ModeQuiet prints only the report.
	ModeQuiet
)

// String returns the string representation of the output mode.
func (m OutputMode) String() string {
	switch m {
	case ModeRich:
		return "rich"
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	case ModeQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// Detector determines the appropriate output mode.
type Detector struct {
	forceMode *OutputMode
	noColor   bool
	getenv    func(string) string
	isTTY     func() bool
}

// NewDetector creates a new output mode detector.
func NewDetector() *Detector {
	return &Detector{
		getenv: os.Getenv,
		isTTY:  func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
	}
}

// ForceMode forces a specific output mode.
func (d *Detector) ForceMode(mode OutputMode) *Detector {
	d.forceMode = &mode
	return d
}

// NoColor disables color output.
func (d *Detector) NoColor(disable bool) *Detector {
	d.noColor = disable
	return d
}

// Detect determines the appropriate output mode.
func (d *Detector) Detect() OutputMode {
	if d.forceMode != nil {
		return *d.forceMode
	}

	switch {
	case d.getenv("QUORUM_DX_OUTPUT") == "json":
		return ModeJSON
	case d.getenv("QUORUM_DX_QUIET") == "1":
		return ModeQuiet
	case d.getenv("CI") != "" || d.getenv("GITHUB_ACTIONS") != "":
		return ModePlain
	case !d.isTTY():
		return ModePlain
	}
	return ModeRich
}

// ShouldUseColor determines if color should be used.
func (d *Detector) ShouldUseColor() bool {
	if d.noColor {
		return false
	}
	// NO_COLOR convention
	if d.getenv("NO_COLOR") != "" {
		return false
	}
	if d.getenv("TERM") == "dumb" {
		return false
	}
	return d.isTTY()
}

// TerminalWidth returns the terminal width, or 80 when unknown.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// ParseOutputMode parses an output mode from string.
func ParseOutputMode(s string) OutputMode {
	switch s {
	case "plain":
		return ModePlain
	case "json":
		return ModeJSON
	case "quiet":
		return ModeQuiet
	default:
		return ModeRich
	}
}
