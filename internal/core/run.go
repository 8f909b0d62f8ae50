package core

import (
	"fmt"
	"time"
)

// RunID identifies one orchestration run.
type RunID string

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunStateInitialized       RunState = "initialized"
	RunStateFanOutRunning     RunState = "fan_out_running"
	RunStateFanOutComplete    RunState = "fan_out_complete"
	RunStateSynthesisRunning  RunState = "synthesis_running"
	RunStateDone              RunState = "done"
	RunStateFailedAtSynthesis RunState = "failed_at_synthesis"
	RunStateRejected          RunState = "rejected"
)

var runTransitions = map[RunState][]RunState{
	RunStateInitialized:      {RunStateFanOutRunning, RunStateRejected},
	RunStateFanOutRunning:    {RunStateFanOutComplete},
	RunStateFanOutComplete:   {RunStateSynthesisRunning},
	RunStateSynthesisRunning: {RunStateDone, RunStateFailedAtSynthesis},
}

// CanTransitionTo reports whether next directly follows s.
func (s RunState) CanTransitionTo(next RunState) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateFailedAtSynthesis || s == RunStateRejected
}

// Transition validates a state change.
func Transition(from, to RunState) error {
	if !from.CanTransitionTo(to) {
		return ErrState(CodeInvalidState, fmt.Sprintf("cannot move run from %s to %s", from, to))
	}
	return nil
}

// RunRecord is the persisted summary of a run. The document text is never stored.
type RunRecord struct {
	ID             RunID         `json:"id"`
	State          RunState      `json:"state"`
	DocumentSize   int           `json:"document_size"`
	DocumentDigest string        `json:"document_digest"`
	Source         string        `json:"source,omitempty"`
	Specialists    []TaskID      `json:"specialists"`
	Outcomes       []Outcome     `json:"outcomes"`
	Synthesis      *Outcome      `json:"synthesis,omitempty"`
	Report         string        `json:"report,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`
}

// Degraded reports whether the run finished with at least one failed specialist.
func (r *RunRecord) Degraded() bool {
	for _, o := range r.Outcomes {
		if !o.OK() {
			return true
		}
	}
	return false
}

// RunSummary is a lightweight listing entry.
type RunSummary struct {
	ID         RunID     `json:"id"`
	State      RunState  `json:"state"`
	Source     string    `json:"source,omitempty"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SummarizeRun builds the listing entry for a record.
func SummarizeRun(r *RunRecord) RunSummary {
	s := RunSummary{
		ID:         r.ID,
		State:      r.State,
		Source:     r.Source,
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, o := range r.Outcomes {
		if o.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
