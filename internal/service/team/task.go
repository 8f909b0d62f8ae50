// Package team turns configured backends and prompt templates into the
// specialist and synthesis tasks run by the diagnosis orchestrator.
package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
)

// PromptFunc renders the prompt for one task input.
type PromptFunc func(input string) (string, error)

// AgentTask runs a rendered prompt through a backend. Retryable backend
// errors are retried under the policy; every call passes the limiter first.
type AgentTask struct {
	id      core.TaskID
	agent   core.Agent
	prompt  PromptFunc
	retry   *service.RetryPolicy
	limiter *service.RateLimiter
	opts    core.ExecuteOptions
	logger  *logging.Logger
}

// AgentTaskOption configures an AgentTask.
type AgentTaskOption func(*AgentTask)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p *service.RetryPolicy) AgentTaskOption {
	return func(t *AgentTask) { t.retry = p }
}

// WithRateLimiter sets the per-backend limiter.
func WithRateLimiter(l *service.RateLimiter) AgentTaskOption {
	return func(t *AgentTask) { t.limiter = l }
}

// WithExecuteOptions sets model, token and timeout options for each call.
func WithExecuteOptions(opts core.ExecuteOptions) AgentTaskOption {
	return func(t *AgentTask) { t.opts = opts }
}

// WithTaskLogger sets the logger.
func WithTaskLogger(l *logging.Logger) AgentTaskOption {
	return func(t *AgentTask) { t.logger = l }
}

// NewAgentTask creates a task backed by agent.
func NewAgentTask(id core.TaskID, agent core.Agent, prompt PromptFunc, options ...AgentTaskOption) *AgentTask {
	t := &AgentTask{
		id:     id,
		agent:  agent,
		prompt: prompt,
		retry:  service.NewRetryPolicy(service.WithMaxAttempts(1)),
		logger: logging.NewNop(),
	}
	for _, opt := range options {
		opt(t)
	}
	t.logger = t.logger.WithTask(string(id))
	return t
}

// NewSpecialistTask renders template with the medical report as input.
func NewSpecialistTask(id core.TaskID, agent core.Agent, renderer *service.PromptRenderer, template string, options ...AgentTaskOption) *AgentTask {
	return NewAgentTask(id, agent, func(input string) (string, error) {
		return renderer.RenderSpecialist(template, service.SpecialistPromptParams{
			Specialist: string(id),
			Report:     input,
		})
	}, options...)
}

// NewSynthesisTask renders template with the formatted specialist outcomes as input.
func NewSynthesisTask(id core.TaskID, specialists []core.TaskID, agent core.Agent, renderer *service.PromptRenderer, template string, options ...AgentTaskOption) *AgentTask {
	names := make([]string, len(specialists))
	for i, s := range specialists {
		names[i] = string(s)
	}
	return NewAgentTask(id, agent, func(input string) (string, error) {
		return renderer.RenderSynthesis(template, service.SynthesisPromptParams{
			Team:        string(id),
			Specialists: names,
			Input:       input,
		})
	}, options...)
}

// ID returns the task identity.
func (t *AgentTask) ID() core.TaskID { return t.id }

// Backend returns the backend name.
func (t *AgentTask) Backend() string { return t.agent.Name() }

// Run implements core.Task.
func (t *AgentTask) Run(ctx context.Context, input string) (string, error) {
	prompt, err := t.prompt(input)
	if err != nil {
		return "", core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("rendering prompt: %v", err)).WithCause(err)
	}

	var output string
	_, err = t.retry.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		if t.limiter != nil {
			if err := t.limiter.Acquire(ctx); err != nil {
				return err
			}
		}
		core.RecordAttempt(ctx)

		opts := t.opts
		opts.Prompt = prompt
		res, err := t.agent.Execute(ctx, opts)
		if err != nil {
			return err
		}
		output = strings.TrimSpace(res.Output)
		t.logger.Debug("backend answered",
			"backend", t.agent.Name(),
			"tokens_in", res.TokensIn,
			"tokens_out", res.TokensOut,
			"duration", res.Duration)
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		t.logger.Warn("backend call failed, retrying",
			"backend", t.agent.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", err)
	})
	if err != nil {
		return "", err
	}
	return output, nil
}

var _ core.Task = (*AgentTask)(nil)
