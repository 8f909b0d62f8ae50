package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/report"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/team"
)

// eventBufferSize fits every event of one run with room to spare.
const eventBufferSize = 256

// runtimeDeps holds everything a command needs to run diagnoses.
type runtimeDeps struct {
	cfg          *config.Config
	logger       *logging.Logger
	registry     *llm.Registry
	orchestrator *diagnosis.Orchestrator
	store        *state.SQLiteRunStore
	bus          *events.EventBus
	reports      *report.Writer
	crash        *diagnostics.CrashDumpWriter

	logCloser io.Closer
}

// buildRuntime wires configuration, backends, persistence and the
// orchestrator. only restricts the run to the named specialists.
func buildRuntime(only []string) (*runtimeDeps, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	if len(only) > 0 {
		restricted, unknown := cfg.OnlySpecialists(only)
		if len(unknown) > 0 {
			return nil, unknownSpecialistsError(unknown, cfg.SpecialistNames())
		}
		cfg = restricted
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	deps := &runtimeDeps{cfg: cfg, logger: logger, logCloser: closer}

	renderer, err := service.NewPromptRenderer()
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	deps.registry = team.NewRegistry(cfg, logger)
	t, err := team.Build(cfg, deps.registry, renderer, team.NewLimiters(cfg), logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.store, err = state.NewRunStore(cfg.State.Path)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	deps.bus = events.New(eventBufferSize)
	deps.reports = report.NewWriter(report.Config{
		Dir:             cfg.Report.Dir,
		FileName:        cfg.Report.FileName,
		UseUTC:          true,
		IncludeOpinions: true,
		Enabled:         true,
	})
	deps.crash = diagnostics.NewCrashDumpWriter(diagnostics.CrashDumpOptions{
		Dir:          diagnostics.DefaultCrashDumpDir,
		IncludeStack: true,
	}, diagnostics.NewCollector(""), logger)

	deps.orchestrator = t.Orchestrator(team.OrchestratorOptions(cfg.Diagnosis),
		diagnosis.WithLogger(logger),
		diagnosis.WithEventBus(deps.bus),
		diagnosis.WithRunStore(deps.store),
	)
	return deps, nil
}

// intakeOptions returns the document limits that match the orchestrator.
func (d *runtimeDeps) intakeOptions() intake.Options {
	return intake.Options{
		MaxBytes:   d.cfg.Diagnosis.MaxDocumentBytes,
		Extensions: d.cfg.Watch.Extensions,
	}
}

// Close releases the store, the bus and the log file.
func (d *runtimeDeps) Close() error {
	var errs []error
	if d.bus != nil {
		d.bus.Close()
	}
	if d.store != nil {
		errs = append(errs, state.CloseRunStore(d.store))
	}
	if d.logCloser != nil {
		errs = append(errs, d.logCloser.Close())
	}
	return errors.Join(errs...)
}
