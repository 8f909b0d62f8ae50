package diagnosis

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

func TestTaskRunner_Success(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		return "echo: " + input, nil
	})

	o := runner.Execute(context.Background(), "Cardiologist", task, "report")

	require.True(t, o.OK())
	assert.Equal(t, "echo: report", o.Text)
	assert.Equal(t, core.TaskID("Cardiologist"), o.TaskID)
	assert.Equal(t, 1, o.Attempts)
	assert.False(t, o.StartedAt.IsZero())
}

func TestTaskRunner_EmptyOutputIsSuccess(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		return "   ", nil
	})

	o := runner.Execute(context.Background(), "Psychologist", task, "report")
	assert.True(t, o.OK())
	assert.Equal(t, "   ", o.Text)
}

func TestTaskRunner_ErrorBecomesFailure(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		return "", errors.New("model refused")
	})

	o := runner.Execute(context.Background(), "Pulmonologist", task, "report")

	require.False(t, o.OK())
	assert.Equal(t, core.CodeTaskFailed, o.ErrorCode)
	assert.Contains(t, o.Error, "Pulmonologist")
	assert.Contains(t, o.Error, "model refused")
	assert.Empty(t, o.Text)
}

func TestTaskRunner_DomainErrorCodeKept(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		return "", core.ErrAuth("invalid api key")
	})

	o := runner.Execute(context.Background(), "Cardiologist", task, "report")
	assert.Equal(t, "AUTH_FAILED", o.ErrorCode)
}

func TestTaskRunner_PanicBecomesFailure(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		panic("nil pointer in analysis")
	})

	o := runner.Execute(context.Background(), "Psychologist", task, "report")

	require.False(t, o.OK())
	assert.Equal(t, core.CodeTaskPanicked, o.ErrorCode)
	assert.Contains(t, o.Error, "Psychologist")
	assert.Contains(t, o.Error, "nil pointer in analysis")
}

func TestTaskRunner_GoexitWithoutDeadline(t *testing.T) {
	runner := NewTaskRunner(0, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		runtime.Goexit()
		return "unreachable", nil
	})

	done := make(chan core.Outcome, 1)
	go func() {
		done <- runner.Execute(context.Background(), "Pulmonologist", task, "report")
	}()

	select {
	case o := <-done:
		require.False(t, o.OK())
		assert.Equal(t, core.CodeTaskFailed, o.ErrorCode)
		assert.Contains(t, o.Error, "exited without returning")
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not resolve a task that called runtime.Goexit")
	}
}

func TestTaskRunner_TimeoutDoesNotWaitForTask(t *testing.T) {
	runner := NewTaskRunner(30*time.Millisecond, nil)
	release := make(chan struct{})
	defer close(release)

	// Ignores its context on purpose.
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		<-release
		return "too late", nil
	})

	start := time.Now()
	o := runner.Execute(context.Background(), "Cardiologist", task, "report")
	elapsed := time.Since(start)

	require.False(t, o.OK())
	assert.True(t, o.IsTimeout())
	assert.Contains(t, o.Error, "timeout")
	assert.Less(t, elapsed, time.Second)
}

func TestTaskRunner_TimeoutCancelsTaskContext(t *testing.T) {
	runner := NewTaskRunner(20*time.Millisecond, nil)
	cancelled := make(chan struct{})

	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})

	o := runner.Execute(context.Background(), "Pulmonologist", task, "report")
	assert.True(t, o.IsTimeout())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestTaskRunner_ParentCancelled(t *testing.T) {
	runner := NewTaskRunner(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	o := runner.Execute(ctx, "Cardiologist", task, "report")
	assert.Equal(t, core.CodeCancelled, o.ErrorCode)
}

func TestTaskRunner_NilTask(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	o := runner.Execute(context.Background(), "Cardiologist", nil, "report")
	assert.Equal(t, core.CodeInvalidTask, o.ErrorCode)
}

func TestTaskRunner_InvalidUTF8(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		return string([]byte{0xff, 0xfe, 'x'}), nil
	})

	o := runner.Execute(context.Background(), "Cardiologist", task, "report")
	assert.Equal(t, core.CodeInvalidOutput, o.ErrorCode)
}

func TestTaskRunner_CountsAttempts(t *testing.T) {
	runner := NewTaskRunner(time.Second, nil)
	task := core.TaskFunc(func(ctx context.Context, input string) (string, error) {
		for i := 0; i < 3; i++ {
			core.RecordAttempt(ctx)
		}
		return strings.ToUpper(input), nil
	})

	o := runner.Execute(context.Background(), "Cardiologist", task, "x")
	assert.Equal(t, 3, o.Attempts)
}
