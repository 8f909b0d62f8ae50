// Package intake turns uploaded or local files into document text.
package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/fsutil"
)

// DefaultExtensions are the readable document formats.
var DefaultExtensions = []string{".txt", ".md"}

// Options bounds what intake accepts.
type Options struct {
	// MaxBytes is the largest accepted input. Zero applies core.DefaultMaxDocumentBytes.
	MaxBytes int
	// Extensions lists accepted file extensions. Empty means DefaultExtensions.
	Extensions []string
}

func (o Options) maxBytes() int {
	if o.MaxBytes <= 0 {
		return core.DefaultMaxDocumentBytes
	}
	return o.MaxBytes
}

func (o Options) extensions() []string {
	if len(o.Extensions) == 0 {
		return DefaultExtensions
	}
	return o.Extensions
}

// Supported reports whether name has an accepted extension.
func (o Options) Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range o.extensions() {
		if strings.EqualFold(ext, normalizeExt(e)) {
			return true
		}
	}
	return false
}

func normalizeExt(e string) string {
	e = strings.TrimSpace(e)
	if !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

// LoadFile reads a document from path. Invalid UTF-8 sequences are dropped.
func LoadFile(path string, opts Options) (string, error) {
	if !opts.Supported(path) {
		return "", unsupported(path, opts)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	if info.IsDir() {
		return "", core.ErrInputPrecondition(core.CodeUnsupportedFormat, fmt.Sprintf("%s is a directory", path))
	}

	data, err := fsutil.ReadFileScopedLimit(path, int64(opts.maxBytes()))
	if errors.Is(err, fsutil.ErrTooLarge) {
		return "", tooLarge(info.Size(), opts.maxBytes())
	}
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return toText(data), nil
}

// FromReader reads a document from r, such as an upload body or stdin.
func FromReader(r io.Reader, opts Options) (string, error) {
	limit := opts.maxBytes()
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	if len(data) > limit {
		return "", tooLarge(-1, limit)
	}
	return toText(data), nil
}

func toText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

func unsupported(path string, opts Options) error {
	return core.ErrInputPrecondition(core.CodeUnsupportedFormat,
		fmt.Sprintf("%s: unsupported format, accepted: %s", filepath.Base(path), strings.Join(opts.extensions(), ", "))).
		WithDetail("extension", filepath.Ext(path))
}

func tooLarge(size int64, limit int) error {
	msg := fmt.Sprintf("document exceeds the %d byte limit", limit)
	if size >= 0 {
		msg = fmt.Sprintf("document is %d bytes, limit is %d", size, limit)
	}
	return core.ErrInputPrecondition(core.CodeDocumentTooLarge, msg).WithDetail("limit", limit)
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	windowsDeviceNames  = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true,
	}
)

// SanitizeFilename returns an ASCII-only name safe to join to a directory.
// Path separators become spaces, whitespace runs become underscores and any
// other unsafe character is dropped. The result may be empty.
func SanitizeFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	folded = strings.NewReplacer("/", " ", "\\", " ").Replace(folded)
	folded = strings.Join(strings.Fields(folded), "_")
	folded = unsafeFilenameChars.ReplaceAllString(folded, "")
	folded = strings.Trim(folded, "._")

	if base, _, _ := strings.Cut(folded, "."); windowsDeviceNames[strings.ToUpper(base)] {
		folded = "_" + folded
	}
	return folded
}
