package core

import (
	"context"
	"time"
)

// =============================================================================
// Agent Port
// =============================================================================

// Agent is a task backend: something that turns a prompt into text.
type Agent interface {
	// Name returns the backend identifier from configuration.
	Name() string

	// Ping checks if the backend is reachable and authenticated.
	Ping(ctx context.Context) error

	// Execute runs a prompt through the backend and returns the result.
	Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error)
}

// ExecuteOptions configures a backend execution.
type ExecuteOptions struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// DefaultExecuteOptions returns sensible defaults.
func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		MaxTokens:   4096,
		Temperature: 0.2,
		Timeout:     5 * time.Minute,
	}
}

// ExecuteResult contains the output of a backend execution.
type ExecuteResult struct {
	Output       string
	TokensIn     int
	TokensOut    int
	Duration     time.Duration
	Model        string
	FinishReason string
}

// TotalTokens returns the sum of input and output tokens.
func (r *ExecuteResult) TotalTokens() int {
	return r.TokensIn + r.TokensOut
}

// AgentRegistry manages configured backends.
type AgentRegistry interface {
	// Register adds a backend to the registry.
	Register(name string, agent Agent) error

	// Get retrieves a backend by name.
	Get(name string) (Agent, error)

	// List returns all registered backend names, sorted.
	List() []string
}

// =============================================================================
// RunStore Port
// =============================================================================

// RunStore persists run records.
type RunStore interface {
	// Save inserts or replaces a run record.
	Save(ctx context.Context, rec *RunRecord) error

	// Load returns a run record, or nil and no error when it does not exist.
	Load(ctx context.Context, id RunID) (*RunRecord, error)

	// List returns summaries, newest first. A limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]RunSummary, error)

	// Close releases the store.
	Close() error
}
