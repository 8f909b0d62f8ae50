package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/fsutil"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
)

// Heading prefixes every written report.
const Heading = "### Final Diagnosis:"

// Config configures the report writer
type Config struct {
	Dir             string // default: ".quorum-dx/results"
	FileName        string // default: "final_diagnosis.txt"
	UseUTC          bool   // default: true
	IncludeOpinions bool   // also write <run-id>.opinions.md
	Enabled         bool   // whether to write reports
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Dir:             ".quorum-dx/results",
		FileName:        "final_diagnosis.txt",
		UseUTC:          true,
		IncludeOpinions: true,
		Enabled:         true,
	}
}

// Final is a finished run as seen by the writer.
type Final struct {
	RunID      core.RunID
	Source     string
	Report     string
	Outcomes   []core.Outcome
	Synthesis  *core.Outcome
	FinishedAt time.Time
}

// Paths lists the files written for one run.
type Paths struct {
	Latest   string `json:"latest"`
	Run      string `json:"run"`
	Opinions string `json:"opinions,omitempty"`
}

// Writer writes final reports atomically under Config.Dir.
type Writer struct {
	mu     sync.Mutex
	config Config
}

// NewWriter creates a writer. Empty fields fall back to DefaultConfig.
func NewWriter(cfg Config) *Writer {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.FileName == "" {
		cfg.FileName = def.FileName
	}
	return &Writer{config: cfg}
}

// IsEnabled returns whether report writing is enabled
func (w *Writer) IsEnabled() bool {
	return w.config.Enabled
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.config.Dir
}

// LatestPath returns the path of the most recent report.
func (w *Writer) LatestPath() string {
	return filepath.Join(w.config.Dir, w.config.FileName)
}

// RunPath returns the path of the report kept for runID.
func (w *Writer) RunPath(runID core.RunID) string {
	return filepath.Join(w.config.Dir, sanitizeFilename(string(runID))+filepath.Ext(w.config.FileName))
}

// OpinionsPath returns the path of the specialist opinions for runID.
func (w *Writer) OpinionsPath(runID core.RunID) string {
	return filepath.Join(w.config.Dir, sanitizeFilename(string(runID))+".opinions.md")
}

// FormatReport renders the report file content. An empty synthesis yields
// the heading alone.
func FormatReport(text string) string {
	body := strings.TrimSpace(text)
	if body == "" {
		return Heading + "\n"
	}
	return Heading + "\n\n" + body + "\n"
}

// Write stores the report as the latest file and as the per-run file. An
// empty report is still written.
func (w *Writer) Write(f Final) (*Paths, error) {
	if !w.config.Enabled {
		return nil, nil
	}
	if sanitizeFilename(string(f.RunID)) == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "run id is empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.config.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	content := []byte(FormatReport(f.Report))
	paths := &Paths{Latest: w.LatestPath(), Run: w.RunPath(f.RunID)}

	if err := w.writeFile(paths.Run, content); err != nil {
		return nil, err
	}
	if err := w.writeFile(paths.Latest, content); err != nil {
		return nil, err
	}

	if w.config.IncludeOpinions && len(f.Outcomes) > 0 {
		paths.Opinions = w.OpinionsPath(f.RunID)
		fm := NewFrontmatter()
		fm.Set("type", "specialist_opinions")
		fm.Set("run_id", string(f.RunID))
		if f.Source != "" {
			fm.Set("source", f.Source)
		}
		fm.Set("timestamp", w.formatTime(f.FinishedAt))
		fm.Set("specialists", taskNames(f.Outcomes))
		body := fm.Render() + renderOpinions(f.Outcomes, f.Synthesis)
		if err := w.writeFile(paths.Opinions, []byte(body)); err != nil {
			return nil, err
		}
	}

	return paths, nil
}

// WriteResult writes the report of a done run, whatever its synthesis text.
// Runs in any other state write nothing and return nil paths.
func (w *Writer) WriteResult(res *diagnosis.Result, source string) (*Paths, error) {
	if res == nil || res.State != core.RunStateDone {
		return nil, nil
	}
	return w.Write(Final{
		RunID:      res.RunID,
		Source:     source,
		Report:     res.Report,
		Outcomes:   res.Outcomes,
		Synthesis:  res.Synthesis,
		FinishedAt: res.FinishedAt,
	})
}

// ReadLatest returns the content of the latest report file.
func (w *Writer) ReadLatest() (string, error) {
	data, err := fsutil.ReadFileScoped(w.LatestPath())
	if err != nil {
		return "", fmt.Errorf("reading latest report: %w", err)
	}
	return string(data), nil
}

func (w *Writer) writeFile(path string, data []byte) error {
	if err := w.ensureWithinDir(path); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (w *Writer) formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	if w.config.UseUTC {
		t = t.UTC()
	}
	return t.Format(time.RFC3339)
}

func (w *Writer) ensureWithinDir(path string) error {
	baseAbs, err := filepath.Abs(w.config.Dir)
	if err != nil {
		return fmt.Errorf("resolving report directory: %w", err)
	}
	targetAbs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving report path: %w", err)
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("report path escapes report directory")
	}
	return nil
}

func taskNames(outcomes []core.Outcome) []string {
	names := make([]string, len(outcomes))
	for i, o := range outcomes {
		names[i] = string(o.TaskID)
	}
	return names
}
