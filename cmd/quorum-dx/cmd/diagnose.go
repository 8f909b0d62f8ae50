package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/clip"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/report"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/tui"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <file|->",
	Short: "Run every specialist over a medical report and synthesize a diagnosis",
	Long: `Read a medical report, send it to every configured specialist at once,
then ask the multidisciplinary team to combine their opinions.

The final report is written to the report directory (final_diagnosis.txt
by default) and printed. Use "-" to read the document from stdin.

Examples:
  quorum-dx diagnose patient.txt
  quorum-dx diagnose --only cardiologist,pulmonologist patient.md
  cat patient.txt | quorum-dx diagnose - --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagnose,
}

var (
	diagnoseOnly    []string
	diagnoseRender  bool
	diagnoseCopy    bool
	diagnoseJSON    bool
	diagnoseVerbose bool
	diagnoseOutput  string
)

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseCmd.Flags().StringSliceVar(&diagnoseOnly, "only", nil,
		"run only the named specialists")
	diagnoseCmd.Flags().BoolVar(&diagnoseRender, "render", false,
		"render the report as markdown")
	diagnoseCmd.Flags().BoolVar(&diagnoseCopy, "copy", false,
		"copy the report to the clipboard")
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false,
		"print the result as JSON")
	diagnoseCmd.Flags().BoolVarP(&diagnoseVerbose, "verbose", "v", false,
		"also print when each specialist starts")
	diagnoseCmd.Flags().StringVarP(&diagnoseOutput, "output", "o", "",
		"output mode (rich, plain, json, quiet)")
}

// diagnoseResult is the JSON form of a run.
type diagnoseResult struct {
	RunID     core.RunID     `json:"run_id"`
	State     core.RunState  `json:"state"`
	Report    string         `json:"report,omitempty"`
	Degraded  bool           `json:"degraded"`
	Outcomes  []core.Outcome `json:"outcomes"`
	Synthesis *core.Outcome  `json:"synthesis,omitempty"`
	Duration  string         `json:"duration"`
	Files     *report.Paths  `json:"files,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func outputMode() tui.OutputMode {
	switch {
	case diagnoseJSON:
		return tui.ModeJSON
	case diagnoseOutput != "":
		return tui.ParseOutputMode(diagnoseOutput)
	case quiet:
		return tui.ModeQuiet
	}
	return detector.Detect()
}

// readDocument loads the document named by arg. "-" reads stdin.
func readDocument(arg string, opts intake.Options) (text, source string, err error) {
	if arg == "-" {
		text, err = intake.FromReader(os.Stdin, opts)
		return text, "stdin", err
	}
	text, err = intake.LoadFile(arg, opts)
	return text, filepath.Base(arg), err
}

func runDiagnose(_ *cobra.Command, args []string) (err error) {
	deps, err := buildRuntime(diagnoseOnly)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.crash.SetRun("", diagnosis.StageFanOut)
	defer deps.crash.RecoverAndReturn(&err)

	text, source, err := readDocument(args[0], deps.intakeOptions())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := outputMode()
	stopProgress := func() {}
	if mode == tui.ModeRich || mode == tui.ModePlain {
		stopProgress = followProgress(ctx, deps, mode)
	}
	defer stopProgress()

	res, runErr := deps.orchestrator.DiagnoseText(ctx, text, source)
	if res == nil {
		return runErr
	}
	deps.crash.SetRun(string(res.RunID), string(res.State))

	paths, writeErr := deps.reports.WriteResult(res, source)
	if writeErr != nil {
		deps.logger.Warn("writing report failed", "run_id", res.RunID, "error", writeErr)
	}

	if mode == tui.ModeJSON {
		out := diagnoseResult{
			RunID:     res.RunID,
			State:     res.State,
			Report:    res.Report,
			Degraded:  res.Degraded(),
			Outcomes:  res.Outcomes,
			Synthesis: res.Synthesis,
			Duration:  res.Duration.Round(time.Millisecond).String(),
			Files:     paths,
		}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		if err := OutputJSON(out); err != nil {
			return err
		}
		return runErr
	}

	stopProgress()
	printResult(res, paths, mode)

	if runErr != nil {
		return runErr
	}
	if diagnoseCopy {
		r, err := clip.WriteAll(res.Report)
		if err != nil {
			return fmt.Errorf("copying report: %w", err)
		}
		fmt.Fprintln(os.Stderr, styles.Muted.Render(r.Describe()))
	}
	return writeErr
}

func printResult(res *diagnosis.Result, paths *report.Paths, mode tui.OutputMode) {
	if mode != tui.ModeQuiet {
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, tui.RenderResult(styles, res))
		if paths != nil {
			fmt.Fprintf(os.Stderr, "\n  Report: %s\n", paths.Latest)
		}
		fmt.Fprintln(os.Stderr)
	}
	if res.State != core.RunStateDone {
		return
	}

	text := res.Report
	if diagnoseRender {
		rendered, err := tui.RenderMarkdown(stripHeading(text), tui.TerminalWidth(), useColor())
		if err == nil {
			text = rendered
		}
	}
	fmt.Println(strings.TrimRight(text, "\n"))
}

// stripHeading drops the report heading so markdown rendering does not
// repeat it as a literal line.
func stripHeading(text string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), report.Heading))
}

// followProgress prints run events to stderr until the returned stop
// function is called. Stop drains what was already published.
func followProgress(ctx context.Context, deps *runtimeDeps, mode tui.OutputMode) (stop func()) {
	s := styles
	if mode == tui.ModePlain {
		s = tui.NewStyles(false)
	}
	ch := deps.bus.Subscribe()
	progress := tui.NewProgress(os.Stderr, s, diagnoseVerbose)

	followCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		progress.Follow(followCtx, ch)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			deps.bus.Unsubscribe(ch)
		})
	}
}
