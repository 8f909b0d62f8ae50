package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/testutil"
)

func observeRun(m *service.MetricsCollector, runID string, cardioOK bool) {
	m.Observe(events.NewRunStartedEvent(runID, []string{"Cardiologist", "Psychologist"}, 100))
	errMsg := ""
	if !cardioOK {
		errMsg = "Cardiologist: timed out"
	}
	m.Observe(events.NewTaskCompletedEvent(runID, "Cardiologist", "fan_out", cardioOK, errMsg, 2*time.Second))
	m.Observe(events.NewTaskCompletedEvent(runID, "Psychologist", "fan_out", true, "", 4*time.Second))
	m.Observe(events.NewFanOutCompletedEvent(runID, 1, 1))
	m.Observe(events.NewTaskCompletedEvent(runID, "MultidisciplinaryTeam", "synthesis", true, "", time.Second))
	m.Observe(events.NewRunCompletedEvent(runID, 6*time.Second, !cardioOK))
}

func TestMetricsCollector_Runs(t *testing.T) {
	m := service.NewMetricsCollector()
	observeRun(m, "run-1", true)
	observeRun(m, "run-2", false)
	m.Observe(events.NewRunStartedEvent("run-3", nil, 10))
	m.Observe(events.NewRunFailedEvent("run-3", "SYNTHESIS_FAILED", "backend down"))

	runs := m.Snapshot().Runs
	testutil.AssertEqual(t, runs.Started, 3)
	testutil.AssertEqual(t, runs.Completed, 2)
	testutil.AssertEqual(t, runs.Degraded, 1)
	testutil.AssertEqual(t, runs.Failed, 1)
	testutil.AssertEqual(t, runs.AvgDuration, 6*time.Second)
	testutil.AssertTrue(t, !runs.LastRunAt.IsZero(), "last run time should be set")
}

func TestMetricsCollector_Tasks(t *testing.T) {
	m := service.NewMetricsCollector()
	observeRun(m, "run-1", true)
	observeRun(m, "run-2", false)

	tasks := m.Snapshot().Tasks
	testutil.AssertLen(t, tasks, 3)
	testutil.AssertEqual(t, tasks[0].TaskID, "Cardiologist")
	testutil.AssertEqual(t, tasks[0].Invocations, 2)
	testutil.AssertEqual(t, tasks[0].Successes, 1)
	testutil.AssertEqual(t, tasks[0].Failures, 1)
	testutil.AssertEqual(t, tasks[0].LastError, "Cardiologist: timed out")
	testutil.AssertEqual(t, tasks[0].AvgDuration, 2*time.Second)
	testutil.AssertEqual(t, tasks[1].TaskID, "MultidisciplinaryTeam")
	testutil.AssertEqual(t, tasks[1].Stage, "synthesis")
	testutil.AssertEqual(t, tasks[2].Failures, 0)
}

func TestMetricsCollector_SnapshotIsCopy(t *testing.T) {
	m := service.NewMetricsCollector()
	observeRun(m, "run-1", true)

	snap := m.Snapshot()
	snap.Tasks[0].Invocations = 99
	testutil.AssertEqual(t, m.Snapshot().Tasks[0].Invocations, 1)
}

func TestMetricsCollector_Reset(t *testing.T) {
	m := service.NewMetricsCollector()
	observeRun(m, "run-1", true)
	m.Reset()

	snap := m.Snapshot()
	testutil.AssertEqual(t, snap.Runs.Started, 0)
	testutil.AssertLen(t, snap.Tasks, 0)
}

func TestMetricsCollector_ConsumeFromBus(t *testing.T) {
	bus := events.New(16)
	defer bus.Close()
	m := service.NewMetricsCollector()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ch := bus.Subscribe()
	go func() {
		m.Consume(ctx, ch)
		close(done)
	}()

	bus.Publish(events.NewRunStartedEvent("run-1", nil, 1))
	bus.Publish(events.NewRunCompletedEvent("run-1", time.Second, false))

	deadline := time.Now().Add(2 * time.Second)
	for m.Snapshot().Runs.Completed < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	testutil.AssertEqual(t, m.Snapshot().Runs.Started, 1)
	testutil.AssertEqual(t, m.Snapshot().Runs.Completed, 1)
}
