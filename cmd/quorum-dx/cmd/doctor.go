package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/team"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, backends and host resources",
	Long: `Validate the configuration, check that every prompt template exists,
ping each configured backend and report host resources. The most recent
crash dump, if any, is summarized.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var (
	doctorNoPing      bool
	doctorPingTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorNoPing, "no-ping", false, "skip backend reachability checks")
	doctorCmd.Flags().DurationVar(&doctorPingTimeout, "ping-timeout", 15*time.Second, "timeout for all backend pings")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	ok := true
	section(out, "Configuration")
	if err := config.ValidateConfig(cfg); err != nil {
		ok = false
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				check(out, false, e.Error())
			}
		} else {
			check(out, false, err.Error())
		}
	} else {
		check(out, true, fmt.Sprintf("%d specialists, synthesis by %s", len(cfg.Specialists), cfg.Synthesis.Name))
	}

	section(out, "Prompts")
	if renderer, err := service.NewPromptRenderer(); err != nil {
		ok = false
		check(out, false, err.Error())
	} else {
		for _, sc := range append(append([]config.SpecialistConfig(nil), cfg.Specialists...), cfg.Synthesis) {
			found := renderer.HasTemplate(sc.Prompt)
			ok = ok && found
			check(out, found, fmt.Sprintf("%s uses %q", sc.Name, sc.Prompt))
		}
	}

	if !doctorNoPing {
		section(out, "Backends")
		if !pingBackends(out, cfg) {
			ok = false
		}
	}

	section(out, "Host")
	snap := diagnostics.NewCollector("").Collect()
	fmt.Fprintf(out, "  CPU:    %s (%d cores, %d threads)\n", snap.CPUModel, snap.CPUCores, snap.CPUThreads)
	fmt.Fprintf(out, "  Memory: %.0f / %.0f MB (%.1f%%)\n", snap.MemUsedMB, snap.MemTotalMB, snap.MemPercent)
	fmt.Fprintf(out, "  Disk:   %.1f / %.1f GB (%.1f%%) at %s\n", snap.DiskUsedGB, snap.DiskTotalGB, snap.DiskPercent, snap.DiskPath)
	for _, g := range snap.GPUs {
		fmt.Fprintf(out, "  GPU:    %s\n", g.Name)
	}
	for _, w := range snap.Warnings() {
		fmt.Fprintf(out, "  %s %s\n", styles.StatusIcon("warning"), styles.Warning.Render(w))
	}

	if dump, err := diagnostics.LoadLatestCrashDump(diagnostics.DefaultCrashDumpDir); err == nil {
		section(out, "Last crash")
		fmt.Fprintf(out, "  %s %s\n", dump.Timestamp.Local().Format(time.DateTime), dump.PanicValue)
		if dump.RunID != "" {
			fmt.Fprintf(out, "  run %s during %s\n", dump.RunID, dump.Stage)
		}
	}

	fmt.Fprintln(out)
	if !ok {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Fprintln(out, styles.Success.Render("Ready to diagnose"))
	return nil
}

// pingBackends pings every backend a task uses. It reports false when one
// is unreachable.
func pingBackends(out io.Writer, cfg *config.Config) bool {
	logger := logging.NewNop()
	if !quiet {
		logger = logging.New(logging.Config{Level: "error", Format: "text", Output: os.Stderr})
	}
	registry := team.NewRegistry(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), doctorPingTimeout)
	defer cancel()
	results := registry.PingAll(ctx)

	ok := true
	for _, name := range cfg.BackendNames() {
		err, pinged := results[name]
		if !pinged {
			continue
		}
		if err != nil {
			ok = false
			check(out, false, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		check(out, true, name)
	}
	return ok
}

func section(out io.Writer, title string) {
	fmt.Fprintf(out, "\n%s\n", styles.Section.Render(title))
}

func check(out io.Writer, passed bool, msg string) {
	icon := styles.StatusIcon("success")
	if !passed {
		icon = styles.StatusIcon("failure")
	}
	fmt.Fprintf(out, "  %s %s\n", icon, msg)
}
