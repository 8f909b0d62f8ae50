package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/inbox"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Diagnose every document dropped into an inbox directory",
	Long: `Watch a directory and run a diagnosis for each .txt or .md document
written into it. Documents are handled one at a time and then moved to
processed/ or, when no report could be produced, to failed/.

The directory defaults to watch.dir (.quorum-dx/inbox).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchExisting bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchExisting, "existing", true,
		"also handle documents already in the inbox")
}

func runWatch(_ *cobra.Command, args []string) (err error) {
	deps, err := buildRuntime(nil)
	if err != nil {
		return err
	}
	defer deps.Close()
	defer deps.crash.RecoverAndReturn(&err)

	dir := deps.cfg.Watch.Dir
	if len(args) == 1 {
		dir = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newInboxWatcher(deps, dir)
	deps.logger.Info("watching inbox", "dir", dir)
	return w.Run(ctx)
}

func newInboxWatcher(deps *runtimeDeps, dir string) *inbox.Watcher {
	opts := inbox.Options{
		Dir:          dir,
		Intake:       deps.intakeOptions(),
		ScanExisting: watchExisting,
	}
	return inbox.NewWatcher(opts, func(ctx context.Context, path string) error {
		return diagnoseFile(ctx, deps, path)
	}, deps.logger)
}

// diagnoseFile runs one inbox document and writes its report. A run
// without a report is an error.
func diagnoseFile(ctx context.Context, deps *runtimeDeps, path string) error {
	text, err := intake.LoadFile(path, deps.intakeOptions())
	if err != nil {
		return err
	}
	source := filepath.Base(path)
	res, err := deps.orchestrator.DiagnoseText(ctx, text, source)
	if res == nil {
		return err
	}
	log := deps.logger.WithRun(string(res.RunID))
	if _, werr := deps.reports.WriteResult(res, source); werr != nil {
		log.Warn("writing report failed", "error", werr)
		if err == nil {
			err = werr
		}
	}
	if err == nil {
		log.Info("inbox document diagnosed", "source", source, "state", res.State, "degraded", res.Degraded())
	}
	return err
}
