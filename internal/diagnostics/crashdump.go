package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/fsutil"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// DefaultCrashDumpDir is where crash dumps go when no directory is configured.
const DefaultCrashDumpDir = ".quorum-dx/crashdumps"

const (
	crashDumpPrefix = "crash-"
	crashDumpSuffix = ".json"
	redacted        = "[REDACTED]"
)

// CrashDump contains the information captured when the process panics.
type CrashDump struct {
	Timestamp time.Time `json:"timestamp"`
	GoVersion string    `json:"go_version"`

	PanicValue string `json:"panic_value"`
	StackTrace string `json:"stack_trace,omitempty"`

	Resources Snapshot `json:"resources"`

	RunID       string   `json:"run_id,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	CommandArgs []string `json:"command_args,omitempty"`
	WorkDir     string   `json:"work_dir,omitempty"`

	RedactedEnv map[string]string `json:"redacted_env,omitempty"`
}

// CrashDumpOptions configures a CrashDumpWriter.
type CrashDumpOptions struct {
	Dir          string
	MaxFiles     int
	IncludeStack bool
	IncludeEnv   bool
}

// CrashDumpWriter writes crash dumps for panics that escape a command.
type CrashDumpWriter struct {
	opts      CrashDumpOptions
	logger    *logging.Logger
	collector *Collector

	runID atomic.Value // string
	stage atomic.Value // string

	mu sync.Mutex
}

// NewCrashDumpWriter creates a crash dump writer. A nil collector skips the
// resource snapshot.
func NewCrashDumpWriter(opts CrashDumpOptions, collector *Collector, logger *logging.Logger) *CrashDumpWriter {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 10
	}
	if opts.Dir == "" {
		opts.Dir = DefaultCrashDumpDir
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &CrashDumpWriter{opts: opts, logger: logger, collector: collector}
	w.runID.Store("")
	w.stage.Store("")
	return w
}

// Dir returns the dump directory.
func (w *CrashDumpWriter) Dir() string {
	return w.opts.Dir
}

// SetRun records the run in progress so a dump can name it.
func (w *CrashDumpWriter) SetRun(runID, stage string) {
	w.runID.Store(runID)
	w.stage.Store(stage)
}

// WriteCrashDump generates and writes a crash dump, returning its path.
func (w *CrashDumpWriter) WriteCrashDump(panicValue interface{}) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dump := CrashDump{
		Timestamp:   time.Now().UTC(),
		GoVersion:   runtime.Version(),
		PanicValue:  w.logger.Sanitize(fmt.Sprintf("%v", panicValue)),
		RunID:       w.runID.Load().(string),
		Stage:       w.stage.Load().(string),
		CommandArgs: os.Args,
	}
	if wd, err := os.Getwd(); err == nil {
		dump.WorkDir = wd
	}
	if w.opts.IncludeStack {
		dump.StackTrace = string(debug.Stack())
	}
	if w.collector != nil {
		dump.Resources = w.collector.Collect()
	}
	if w.opts.IncludeEnv {
		dump.RedactedEnv = redactEnvironment(os.Environ())
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling crash dump: %w", err)
	}

	name := fmt.Sprintf("%s%s%s", crashDumpPrefix, dump.Timestamp.Format("2006-01-02T15-04-05.000"), crashDumpSuffix)
	path := filepath.Join(w.opts.Dir, name)
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing crash dump: %w", err)
	}

	w.cleanupOldDumps()
	return path, nil
}

// RecoverAndReturn recovers from a panic, writes a dump and turns the panic
// into an error. Usage: defer writer.RecoverAndReturn(&err)
//
//nolint:gocritic // ptrToRefParam: errPtr must be a pointer to modify the caller's error variable
func (w *CrashDumpWriter) RecoverAndReturn(errPtr *error) {
	r := recover()
	if r == nil {
		return
	}
	path, dumpErr := w.WriteCrashDump(r)
	if dumpErr != nil {
		w.logger.Error("failed to write crash dump", "error", dumpErr, "panic", r)
		*errPtr = fmt.Errorf("command panicked: %v", r)
		return
	}
	w.logger.Error("crash dump written", "path", path, "panic", r)
	*errPtr = fmt.Errorf("command panicked: %v (dump: %s)", r, path)
}

// cleanupOldDumps removes the oldest dumps beyond MaxFiles.
func (w *CrashDumpWriter) cleanupOldDumps() {
	names, err := listDumps(w.opts.Dir)
	if err != nil {
		return
	}
	for len(names) > w.opts.MaxFiles {
		path := filepath.Join(w.opts.Dir, names[0])
		if err := os.Remove(path); err != nil {
			w.logger.Warn("failed to remove old crash dump", "path", path, "error", err)
		}
		names = names[1:]
	}
}

// listDumps returns dump file names oldest first. Names embed the timestamp,
// so lexical order is chronological.
func listDumps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), crashDumpPrefix) && strings.HasSuffix(e.Name(), crashDumpSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func redactEnvironment(environ []string) map[string]string {
	sensitive := []string{"TOKEN", "KEY", "SECRET", "PASSWORD", "CREDENTIAL", "AUTH", "PRIVATE"}

	result := make(map[string]string, len(environ))
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(key)
		result[key] = value
		for _, s := range sensitive {
			if strings.Contains(upper, s) {
				result[key] = redacted
				break
			}
		}
	}
	return result
}

// LoadLatestCrashDump loads the most recent crash dump from dir.
func LoadLatestCrashDump(dir string) (*CrashDump, error) {
	names, err := listDumps(dir)
	if err != nil {
		return nil, fmt.Errorf("reading crash dump dir: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no crash dumps found in %s", dir)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening crash dump dir: %w", err)
	}
	defer func() { _ = root.Close() }()

	data, err := root.ReadFile(names[len(names)-1])
	if err != nil {
		return nil, fmt.Errorf("reading crash dump: %w", err)
	}

	var dump CrashDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parsing crash dump: %w", err)
	}
	return &dump, nil
}
