package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
)

// MetricsCollector aggregates run and task metrics from orchestrator events.
type MetricsCollector struct {
	runs  RunMetrics
	tasks map[string]*TaskMetrics
	mu    sync.RWMutex
}

// RunMetrics holds process-wide run counters.
type RunMetrics struct {
	Started       int           `json:"started"`
	Completed     int           `json:"completed"`
	Degraded      int           `json:"degraded"`
	Failed        int           `json:"failed"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastRunAt     time.Time     `json:"last_run_at,omitempty"`
}

// TaskMetrics holds metrics for one task identity across runs.
type TaskMetrics struct {
	TaskID        string        `json:"task_id"`
	Stage         string        `json:"stage"`
	Invocations   int           `json:"invocations"`
	Successes     int           `json:"successes"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastError     string        `json:"last_error,omitempty"`
}

// Metrics is a point-in-time copy of the collected metrics.
type Metrics struct {
	Runs  RunMetrics    `json:"runs"`
	Tasks []TaskMetrics `json:"tasks"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{tasks: make(map[string]*TaskMetrics)}
}

// Consume records events from ch until ctx is done or ch closes.
func (m *MetricsCollector) Consume(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(e)
		}
	}
}

// Observe records one event. Unrelated events are ignored.
func (m *MetricsCollector) Observe(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev := e.(type) {
	case events.RunStartedEvent:
		m.runs.Started++
		m.runs.LastRunAt = ev.Timestamp()

	case events.TaskCompletedEvent:
		tm, ok := m.tasks[ev.Task]
		if !ok {
			tm = &TaskMetrics{TaskID: ev.Task, Stage: ev.Stage}
			m.tasks[ev.Task] = tm
		}
		tm.Invocations++
		tm.TotalDuration += ev.Duration
		tm.AvgDuration = tm.TotalDuration / time.Duration(tm.Invocations)
		if ev.Success {
			tm.Successes++
		} else {
			tm.Failures++
			tm.LastError = ev.Error
		}

	case events.RunCompletedEvent:
		m.runs.Completed++
		if ev.Degraded {
			m.runs.Degraded++
		}
		m.runs.TotalDuration += ev.Duration
		m.runs.AvgDuration = m.runs.TotalDuration / time.Duration(m.runs.Completed)

	case events.RunFailedEvent:
		m.runs.Failed++
	}
}

// Snapshot returns a copy of the metrics, tasks sorted by identity.
func (m *MetricsCollector) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Metrics{Runs: m.runs, Tasks: make([]TaskMetrics, 0, len(m.tasks))}
	for _, tm := range m.tasks {
		out.Tasks = append(out.Tasks, *tm)
	}
	sort.Slice(out.Tasks, func(i, j int) bool { return out.Tasks[i].TaskID < out.Tasks[j].TaskID })
	return out
}

// Reset clears all metrics.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = RunMetrics{}
	m.tasks = make(map[string]*TaskMetrics)
}
