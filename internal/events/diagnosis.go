package events

import "time"

// Event type constants for diagnosis runs.
const (
	TypeRunStarted      = "run_started"
	TypeTaskStarted     = "task_started"
	TypeTaskCompleted   = "task_completed"
	TypeFanOutCompleted = "fan_out_completed"
	TypeRunCompleted    = "run_completed"
	TypeRunFailed       = "run_failed"
)

// RunStartedEvent is emitted once stage 1 is about to submit its tasks.
type RunStartedEvent struct {
	BaseEvent
	Specialists  []string `json:"specialists"`
	DocumentSize int      `json:"document_size"`
}

// NewRunStartedEvent creates a new run started event.
func NewRunStartedEvent(runID string, specialists []string, documentSize int) RunStartedEvent {
	return RunStartedEvent{
		BaseEvent:    NewBaseEvent(TypeRunStarted, runID),
		Specialists:  specialists,
		DocumentSize: documentSize,
	}
}

// TaskStartedEvent is emitted when a task acquires a worker slot.
type TaskStartedEvent struct {
	BaseEvent
	Task  string `json:"task"`
	Stage string `json:"stage"`
}

// NewTaskStartedEvent creates a new task started event.
func NewTaskStartedEvent(runID, task, stage string) TaskStartedEvent {
	return TaskStartedEvent{
		BaseEvent: NewBaseEvent(TypeTaskStarted, runID),
		Task:      task,
		Stage:     stage,
	}
}

// TaskCompletedEvent is emitted when a task outcome is recorded.
type TaskCompletedEvent struct {
	BaseEvent
	Task     string        `json:"task"`
	Stage    string        `json:"stage"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewTaskCompletedEvent creates a new task completed event.
func NewTaskCompletedEvent(runID, task, stage string, success bool, errMsg string, duration time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent: NewBaseEvent(TypeTaskCompleted, runID),
		Task:      task,
		Stage:     stage,
		Success:   success,
		Error:     errMsg,
		Duration:  duration,
	}
}

// FanOutCompletedEvent is emitted when every specialist has an outcome.
type FanOutCompletedEvent struct {
	BaseEvent
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// NewFanOutCompletedEvent creates a new fan-out completed event.
func NewFanOutCompletedEvent(runID string, succeeded, failed int) FanOutCompletedEvent {
	return FanOutCompletedEvent{
		BaseEvent: NewBaseEvent(TypeFanOutCompleted, runID),
		Succeeded: succeeded,
		Failed:    failed,
	}
}

// RunCompletedEvent is emitted once per successful run.
type RunCompletedEvent struct {
	BaseEvent
	Duration time.Duration `json:"duration"`
	Degraded bool          `json:"degraded"`
}

// NewRunCompletedEvent creates a new run completed event.
func NewRunCompletedEvent(runID string, duration time.Duration, degraded bool) RunCompletedEvent {
	return RunCompletedEvent{
		BaseEvent: NewBaseEvent(TypeRunCompleted, runID),
		Duration:  duration,
		Degraded:  degraded,
	}
}

// RunFailedEvent is emitted when a run ends without a report.
type RunFailedEvent struct {
	BaseEvent
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewRunFailedEvent creates a new run failed event.
func NewRunFailedEvent(runID, code, errMsg string) RunFailedEvent {
	return RunFailedEvent{
		BaseEvent: NewBaseEvent(TypeRunFailed, runID),
		Code:      code,
		Error:     errMsg,
	}
}
