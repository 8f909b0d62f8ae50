// Package inbox watches a directory and hands every new document to a handler.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// Subdirectories that receive handled documents.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
// Editors and copy tools often emit several writes for one save.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one document. A non-nil error moves the file to FailedDir.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	Dir      string
	Intake   intake.Options
	Debounce time.Duration
	// ScanExisting handles documents already present when Run starts.
	ScanExisting bool
}

// Watcher dispatches documents dropped into a directory, one at a time.
// Handled files are moved out of the inbox so they are never seen twice.
type Watcher struct {
	opts    Options
	handle  Handler
	logger  *logging.Logger
	mu      sync.Mutex
	handled int
}

// NewWatcher creates a watcher. The directory is created when Run starts.
func NewWatcher(opts Options, handle Handler, logger *logging.Logger) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{opts: opts, handle: handle, logger: logger}
}

// Handled returns the number of documents processed so far.
func (w *Watcher) Handled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handled
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Dir == "" {
		return errors.New("inbox directory is not set")
	}
	if err := os.MkdirAll(w.opts.Dir, 0o750); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.opts.Dir, err)
	}
	w.logger.Info("watching inbox", "dir", w.opts.Dir)

	if w.opts.ScanExisting {
		if err := w.scan(ctx); err != nil {
			return err
		}
	}

	debounce := time.NewTimer(w.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[event.Name] = true
			debounce.Reset(w.opts.Debounce)

		case <-debounce.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = make(map[string]bool)
			sort.Strings(paths)
			for _, p := range paths {
				if ctx.Err() != nil {
					return nil
				}
				w.dispatch(ctx, p)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// scan handles documents already in the inbox, oldest name first.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return fmt.Errorf("reading inbox: %w", err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if e.IsDir() {
			continue
		}
		w.dispatch(ctx, filepath.Join(w.opts.Dir, e.Name()))
	}
	return nil
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if !w.opts.Intake.Supported(path) {
		w.logger.Debug("ignoring unsupported file", "path", path)
		return
	}

	log := w.logger.With("path", path)
	log.Info("document received")

	dest := ProcessedDir
	if err := w.handle(ctx, path); err != nil {
		log.Error("document failed", "error", err)
		dest = FailedDir
	}

	w.mu.Lock()
	w.handled++
	w.mu.Unlock()

	if err := w.move(path, dest); err != nil {
		log.Warn("could not move handled document", "error", err)
	}
}

// move relocates path into a subdirectory of the inbox, suffixing the name
// with a timestamp when a file of that name is already there.
func (w *Watcher) move(path, subdir string) error {
	dir := filepath.Join(w.opts.Dir, subdir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	name := filepath.Base(path)
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		target = filepath.Join(dir, fmt.Sprintf("%s-%s%s", name[:len(name)-len(ext)], time.Now().Format("20060102T150405.000"), ext))
	}
	return os.Rename(path, target)
}
