package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// TaskID identifies a specialist within a run (e.g. "Cardiologist").
type TaskID string

// Task is one opaque unit of analysis. It must be safe to run concurrently
// with other tasks and signal failure through the returned error.
// Empty output is a valid success.
type Task interface {
	Run(ctx context.Context, input string) (string, error)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context, input string) (string, error)

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// Specialist pairs a stage-1 task with its identity.
type Specialist struct {
	ID   TaskID
	Task Task
}

// ValidateSpecialists rejects an empty set, blank identities, nil tasks and
// duplicate identities. It runs before any task is started.
func ValidateSpecialists(specialists []Specialist) error {
	if len(specialists) == 0 {
		return ErrValidation(CodeNoSpecialists, "at least one specialist is required")
	}
	seen := make(map[TaskID]struct{}, len(specialists))
	for i, s := range specialists {
		if strings.TrimSpace(string(s.ID)) == "" {
			return ErrValidation(CodeInvalidTask, fmt.Sprintf("specialist %d has an empty identity", i))
		}
		if s.Task == nil {
			return ErrValidation(CodeInvalidTask, fmt.Sprintf("specialist %s has no task", s.ID))
		}
		if _, dup := seen[s.ID]; dup {
			return ErrDuplicateIdentity(s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// SpecialistIDs returns identities in declaration order.
func SpecialistIDs(specialists []Specialist) []TaskID {
	ids := make([]TaskID, len(specialists))
	for i, s := range specialists {
		ids[i] = s.ID
	}
	return ids
}

// OutcomeStatus tags an Outcome.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// Outcome is the result recorded for one task execution: Success(text) or
// Failure(description), never both.
type Outcome struct {
	TaskID    TaskID        `json:"task_id"`
	Status    OutcomeStatus `json:"status"`
	Text      string        `json:"text,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts,omitempty"`
}

// Success builds a successful outcome.
func Success(id TaskID, text string) Outcome {
	return Outcome{TaskID: id, Status: OutcomeSuccess, Text: text}
}

// Failure builds a failed outcome. The description always names the task.
func Failure(id TaskID, code, cause string) Outcome {
	return Outcome{
		TaskID:    id,
		Status:    OutcomeFailure,
		Error:     fmt.Sprintf("%s: %s", id, cause),
		ErrorCode: code,
	}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Status == OutcomeSuccess }

// IsTimeout reports whether the task was resolved by a deadline.
func (o Outcome) IsTimeout() bool { return o.ErrorCode == CodeTimeout }

type attemptsKey struct{}

// WithAttemptCounter returns a context carrying a counter that backends bump
// once per call through RecordAttempt.
func WithAttemptCounter(ctx context.Context) (context.Context, *atomic.Int32) {
	counter := new(atomic.Int32)
	return context.WithValue(ctx, attemptsKey{}, counter), counter
}

// RecordAttempt counts one backend call against the task running in ctx.
func RecordAttempt(ctx context.Context) {
	if counter, ok := ctx.Value(attemptsKey{}).(*atomic.Int32); ok {
		counter.Add(1)
	}
}
