package team

import (
	"fmt"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/adapters/cli"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
)

// Team is the configured specialist set plus the synthesis task.
type Team struct {
	Specialists []core.Specialist
	SynthesisID core.TaskID
	Synthesis   core.Task
}

// NewRegistry creates a backend registry with both backend types
// registered and every configured backend declared.
func NewRegistry(cfg *config.Config, logger *logging.Logger) *llm.Registry {
	reg := llm.NewRegistry(logger)
	reg.RegisterFactory(config.BackendCLI, newCLIBackend)
	reg.ConfigureAll(cfg.Backends)
	return reg
}

func newCLIBackend(name string, cfg config.BackendConfig, logger *logging.Logger) (core.Agent, error) {
	if cfg.Path == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("backend %s has no path", name))
	}
	return cli.NewAdapter(cli.AgentConfig{
		Name:    name,
		Path:    cfg.Path,
		Model:   cfg.Model,
		Timeout: cfg.TimeoutDuration(),
	}, logger), nil
}

// NewLimiters creates one limiter per backend with a configured rate.
// Backends without a rate get the default bucket. The burst fits one run.
func NewLimiters(cfg *config.Config) *service.RateLimiterRegistry {
	limiters := service.NewRateLimiterRegistry()
	burst := len(cfg.Specialists) + 1
	for name, b := range cfg.Backends {
		if b.RateLimitRPM > 0 {
			limiters.SetConfig(name, service.RateLimiterConfigFromRPM(b.RateLimitRPM, burst))
		}
	}
	return limiters
}

// RetryPolicy builds the backend-call retry policy from max_retries.
func RetryPolicy(cfg config.DiagnosisConfig) *service.RetryPolicy {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return service.NewRetryPolicy(service.WithMaxAttempts(retries + 1))
}

// OrchestratorOptions converts the diagnosis section into run options.
func OrchestratorOptions(cfg config.DiagnosisConfig) diagnosis.Options {
	return diagnosis.Options{
		Workers:          cfg.Workers,
		TaskTimeout:      cfg.TaskTimeoutDuration(),
		StageTimeout:     cfg.StageTimeoutDuration(),
		SynthesisTimeout: cfg.SynthesisTimeoutDuration(),
		MaxDocumentBytes: cfg.MaxDocumentBytes,
	}
}

// Build resolves every configured specialist and the synthesis task.
func Build(cfg *config.Config, registry core.AgentRegistry, renderer *service.PromptRenderer, limiters *service.RateLimiterRegistry, logger *logging.Logger) (*Team, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if len(cfg.Specialists) == 0 {
		return nil, core.ErrValidation(core.CodeNoSpecialists, "no specialists configured")
	}
	retry := RetryPolicy(cfg.Diagnosis)

	taskOptions := func(sc config.SpecialistConfig) ([]AgentTaskOption, core.Agent, error) {
		if !renderer.HasTemplate(sc.Prompt) {
			return nil, nil, core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("%s: unknown prompt template %q", sc.Name, sc.Prompt))
		}
		agent, err := registry.Get(sc.Backend)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", sc.Name, err)
		}
		bc := cfg.Backends[sc.Backend]
		opts := []AgentTaskOption{
			WithRetryPolicy(retry),
			WithExecuteOptions(core.ExecuteOptions{
				Model:       bc.Model,
				MaxTokens:   bc.MaxTokens,
				Temperature: bc.Temperature,
				Timeout:     bc.TimeoutDuration(),
			}),
			WithTaskLogger(logger),
		}
		if limiters != nil {
			opts = append(opts, WithRateLimiter(limiters.Get(sc.Backend)))
		}
		return opts, agent, nil
	}

	t := &Team{Specialists: make([]core.Specialist, 0, len(cfg.Specialists))}
	for _, sc := range cfg.Specialists {
		opts, agent, err := taskOptions(sc)
		if err != nil {
			return nil, err
		}
		id := core.TaskID(sc.Name)
		t.Specialists = append(t.Specialists, core.Specialist{
			ID:   id,
			Task: NewSpecialistTask(id, agent, renderer, sc.Prompt, opts...),
		})
	}
	if err := core.ValidateSpecialists(t.Specialists); err != nil {
		return nil, err
	}

	opts, agent, err := taskOptions(cfg.Synthesis)
	if err != nil {
		return nil, err
	}
	t.SynthesisID = core.TaskID(cfg.Synthesis.Name)
	t.Synthesis = NewSynthesisTask(t.SynthesisID, core.SpecialistIDs(t.Specialists), agent, renderer, cfg.Synthesis.Prompt, opts...)
	return t, nil
}

// Orchestrator wires the team into a diagnosis orchestrator.
func (t *Team) Orchestrator(opts diagnosis.Options, options ...diagnosis.Option) *diagnosis.Orchestrator {
	return diagnosis.NewOrchestrator(t.Specialists, t.SynthesisID, t.Synthesis, opts, options...)
}
