// Package clip copies a final report to wherever the user can paste it from.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the content available.
type Method string

const (
	MethodNative Method = "native" // OS clipboard via github.com/atotto/clipboard
	MethodOSC52  Method = "osc52"  // Terminal clipboard via OSC52 escape sequence
	MethodFile   Method = "file"   // Temp file fallback
)

// Result reports how the content was copied.
type Result struct {
	Method   Method
	FilePath string // only set when Method == MethodFile
}

// Describe returns a one-line message for the CLI.
func (r Result) Describe() string {
	switch r.Method {
	case MethodNative:
		return "report copied to the clipboard"
	case MethodOSC52:
		return "report sent to the terminal clipboard"
	case MethodFile:
		return "clipboard unavailable, report saved to " + r.FilePath
	default:
		return "report not copied"
	}
}

// osc52LimitBytes bounds escape-sequence payloads; terminals drop larger ones.
const osc52LimitBytes = 100_000

// These vars exist for testability.
var (
	nativeWriteAll = atotto.WriteAll
	osc52Out       = func() (io.Writer, bool) {
		return os.Stderr, term.IsTerminal(int(os.Stderr.Fd()))
	}
	tempDir = os.TempDir
)

// WriteAll copies text, trying the native clipboard, then OSC52, then a
// temp file.
func WriteAll(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if err := nativeWriteAll(text); err == nil {
		return Result{Method: MethodNative}, nil
	}
	if err := writeAllOSC52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := writeTempFile(text)
	if err != nil {
		return Result{}, fmt.Errorf("copying report: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

func writeAllOSC52(text string) error {
	w, isTerm := osc52Out()
	if !isTerm {
		return errors.New("stderr is not a terminal")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	} else if os.Getenv("STY") != "" {
		seq = seq.Screen()
	}

	// stderr keeps the sequence out of piped stdout
	_, err := seq.WriteTo(w)
	return err
}

func writeTempFile(text string) (path string, err error) {
	f, err := os.CreateTemp(tempDir(), "quorum-dx-report-*.txt")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		_ = f.Close()
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
