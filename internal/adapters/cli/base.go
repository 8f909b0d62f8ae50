package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// AgentConfig holds adapter configuration.
//
// Path is a full command line such as "ollama run llama3"; the prompt is
// written to the process's stdin and stdout is the answer.
type AgentConfig struct {
	Name    string
	Path    string
	Model   string
	Timeout time.Duration
	WorkDir string
}

// defaultTimeout applies when neither the call nor the config sets one.
const defaultTimeout = 10 * time.Minute

// Adapter runs a local command-line model as a task backend.
type Adapter struct {
	config AgentConfig
	logger *logging.Logger

	// ExtraEnv holds additional environment variables to set for command execution.
	ExtraEnv map[string]string
}

// NewAdapter creates a command-line backend.
func NewAdapter(cfg AgentConfig, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Adapter{
		config: cfg,
		logger: logger.WithBackend(cfg.Name),
	}
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return a.config.Name
}

// Config returns the adapter configuration.
func (a *Adapter) Config() AgentConfig {
	return a.config
}

// Ping verifies the command is installed.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.CheckAvailability(ctx)
}

// Execute sends the prompt through the command.
func (a *Adapter) Execute(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
	stdin := opts.Prompt
	if opts.SystemPrompt != "" {
		stdin = opts.SystemPrompt + "\n\n" + opts.Prompt
	}

	result, err := a.ExecuteCommand(ctx, nil, stdin, opts.Timeout)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = a.config.Model
	}
	return &core.ExecuteResult{
		Output:    strings.TrimSpace(result.Stdout),
		TokensIn:  TokenEstimate(stdin),
		TokensOut: TokenEstimate(result.Stdout),
		Duration:  result.Duration,
		Model:     model,
	}, nil
}

// CommandResult holds the result of a CLI execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecuteCommand runs the configured command with extra args and stdin.
// The optTimeout parameter overrides the configured timeout; pass 0 to use it.
// On expiry the whole process group is killed.
func (a *Adapter) ExecuteCommand(ctx context.Context, args []string, stdin string, optTimeout time.Duration) (*CommandResult, error) {
	timeout := optTimeout
	if timeout == 0 {
		timeout = a.config.Timeout
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdPath := a.config.Path
	if cmdPath == "" {
		return nil, core.ErrValidation("NO_PATH", "backend path not configured")
	}

	// Multi-word commands (e.g., "ollama run llama3")
	cmdParts := strings.Fields(cmdPath)
	cmdPath = cmdParts[0]
	args = append(cmdParts[1:], args...)

	// #nosec G204 -- command path and args come from validated config
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Dir = a.config.WorkDir
	configureProcAttr(cmd)
	cmd.WaitDelay = 5 * time.Second

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Env = append(os.Environ(), "QUORUM_DX_MANAGED=true", fmt.Sprintf("QUORUM_DX_BACKEND=%s", a.config.Name))
	for k, v := range a.ExtraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	a.logger.Debug("cli: executing command",
		"path", cmdPath,
		"args", args,
		"stdin_length", len(stdin),
		"timeout", timeout,
	)

	start := time.Now()
	err := cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		a.logger.Warn("cli: command timeout", "duration", result.Duration, "timeout", timeout)
		return result, core.ErrTimeout(fmt.Sprintf("command timed out after %v", timeout))
	case errors.Is(ctx.Err(), context.Canceled):
		return result, core.ErrState(core.CodeCancelled, "command cancelled")
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			a.logger.Warn("cli: command failed",
				"exit_code", result.ExitCode,
				"duration", result.Duration,
				"stderr", truncate(result.Stderr, 2000),
			)
			return result, classifyError(result)
		}
		return result, core.ErrExecution("CLI_START", fmt.Sprintf("executing %s: %v", cmdPath, err)).WithCause(err)
	}

	a.logger.Debug("cli: command completed",
		"duration", result.Duration,
		"stdout_length", len(result.Stdout),
	)
	return result, nil
}

// classifyError converts command errors to domain errors.
func classifyError(result *CommandResult) error {
	errorMsg := strings.TrimSpace(result.Stderr)
	if errorMsg == "" {
		errorMsg = extractErrorFromOutput(result.Stdout)
	}
	if errorMsg == "" {
		errorMsg = "(no error message captured)"
	}

	lower := strings.ToLower(errorMsg)

	if containsAny(lower, []string{"rate limit", "too many requests", "429", "quota"}) {
		return core.ErrRateLimit(errorMsg)
	}
	if containsAny(lower, []string{"unauthorized", "authentication", "api key", "forbidden"}) {
		return core.ErrAuth(errorMsg)
	}
	if containsAny(lower, []string{"connection", "network", "unreachable", "timed out"}) {
		return core.ErrNetwork(errorMsg)
	}

	// Exit failures of a local model are not transient.
	err := core.ErrExecution("CLI_ERROR",
		fmt.Sprintf("command failed with exit code %d: %s", result.ExitCode, errorMsg))
	err.Retryable = false
	return err
}

// extractErrorFromOutput looks for a JSON error object, scanning from the
// last line, and falls back to the last plain line.
func extractErrorFromOutput(stdout string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if msg, ok := obj["error"].(string); ok && msg != "" {
			return msg
		}
		if errObj, ok := obj["error"].(map[string]interface{}); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasPrefix(line, "{") {
			return truncate(line, 200)
		}
	}
	return ""
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// CheckAvailability verifies the CLI is installed and accessible.
func (a *Adapter) CheckAvailability(_ context.Context) error {
	cmdParts := strings.Fields(a.config.Path)
	if len(cmdParts) == 0 {
		return core.ErrValidation("NO_PATH", "backend path not configured")
	}

	if _, err := exec.LookPath(cmdParts[0]); err != nil {
		return core.ErrNotFound("CLI", cmdParts[0])
	}
	return nil
}

// TokenEstimate provides a rough token count estimate.
func TokenEstimate(text string) int {
	// ~4 characters per token for English
	return len(text) / 4
}
