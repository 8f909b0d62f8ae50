package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// TaskRunner executes one task and always yields an Outcome. Errors, panics
// and deadlines are converted into failures naming the task.
type TaskRunner struct {
	timeout time.Duration
	logger  *logging.Logger
}

// NewTaskRunner creates a runner. A timeout of zero disables the per-task deadline.
func NewTaskRunner(timeout time.Duration, logger *logging.Logger) *TaskRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TaskRunner{timeout: timeout, logger: logger}
}

type taskResult struct {
	text string
	err  error
}

var errTaskExited = errors.New("task exited without returning a result")

// panicError carries a recovered panic value.
type panicError struct {
	value interface{}
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Execute runs task with input. When the deadline fires, the outcome is
// resolved at once and the task's context is cancelled; the task goroutine
// is not waited for.
func (r *TaskRunner) Execute(ctx context.Context, id core.TaskID, task core.Task, input string) core.Outcome {
	start := time.Now()
	outcome := r.execute(ctx, id, task, input)
	outcome.StartedAt = start
	outcome.Duration = time.Since(start)
	if outcome.Attempts == 0 {
		outcome.Attempts = 1
	}

	log := r.logger.WithTask(string(id))
	if outcome.OK() {
		log.Debug("task succeeded", "duration", outcome.Duration, "bytes", len(outcome.Text))
	} else {
		log.Warn("task failed", "code", outcome.ErrorCode, "error", outcome.Error, "duration", outcome.Duration)
	}
	return outcome
}

func (r *TaskRunner) execute(ctx context.Context, id core.TaskID, task core.Task, input string) core.Outcome {
	if task == nil {
		return core.Failure(id, core.CodeInvalidTask, "no task to run")
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	runCtx, attempts := core.WithAttemptCounter(runCtx)

	done := make(chan taskResult, 1)
	go func() {
		returned := false
		defer func() {
			if p := recover(); p != nil {
				done <- taskResult{err: &panicError{value: p, stack: debug.Stack()}}
				return
			}
			if !returned {
				// runtime.Goexit unwound the task.
				done <- taskResult{err: errTaskExited}
			}
		}()
		text, err := task.Run(runCtx, input)
		returned = true
		done <- taskResult{text: text, err: err}
	}()

	var outcome core.Outcome
	select {
	case res := <-done:
		outcome = r.resolve(id, res)
	case <-runCtx.Done():
		// A result that raced the deadline still wins.
		select {
		case res := <-done:
			outcome = r.resolve(id, res)
		default:
			outcome = r.deadline(ctx, id)
		}
	}
	outcome.Attempts = int(attempts.Load())
	return outcome
}

func (r *TaskRunner) resolve(id core.TaskID, res taskResult) core.Outcome {
	if res.err == nil {
		if !utf8.ValidString(res.text) {
			return core.Failure(id, core.CodeInvalidOutput, "output is not valid UTF-8 text")
		}
		return core.Success(id, res.text)
	}

	var pe *panicError
	if errors.As(res.err, &pe) {
		r.logger.WithTask(string(id)).Error("task panicked", "panic", fmt.Sprint(pe.value), "stack", string(pe.stack))
		return core.Failure(id, core.CodeTaskPanicked, pe.Error())
	}

	if errors.Is(res.err, context.DeadlineExceeded) {
		return core.Failure(id, core.CodeTimeout, "timeout: "+res.err.Error())
	}

	code := core.GetCode(res.err)
	switch {
	case errors.Is(res.err, context.Canceled):
		code = core.CodeCancelled
	case code == "":
		code = core.CodeTaskFailed
	}
	return core.Failure(id, code, res.err.Error())
}

// deadline resolves a task whose context ended before it returned.
func (r *TaskRunner) deadline(parent context.Context, id core.TaskID) core.Outcome {
	switch err := parent.Err(); {
	case errors.Is(err, context.Canceled):
		return core.Failure(id, core.CodeCancelled, "cancelled before completion")
	case errors.Is(err, context.DeadlineExceeded):
		return core.Failure(id, core.CodeTimeout, "timeout: stage deadline exceeded")
	default:
		return core.Failure(id, core.CodeTimeout, fmt.Sprintf("timeout after %s", r.timeout))
	}
}
