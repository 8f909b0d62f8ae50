package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// Stage names used in logs and events.
const (
	StageFanOut    = "fan_out"
	StageSynthesis = "synthesis"
)

// Options configures a diagnosis run.
type Options struct {
	// Workers bounds concurrent specialists. Zero means one per specialist.
	Workers int
	// TaskTimeout bounds each specialist. Zero disables it.
	TaskTimeout time.Duration
	// StageTimeout bounds the whole fan-out. Zero disables it.
	StageTimeout time.Duration
	// SynthesisTimeout bounds the synthesis task. Zero disables it.
	SynthesisTimeout time.Duration
	// MaxDocumentBytes is the largest accepted document.
	MaxDocumentBytes int
}

// DefaultOptions returns the default run options.
func DefaultOptions() Options {
	return Options{
		TaskTimeout:      5 * time.Minute,
		SynthesisTimeout: 10 * time.Minute,
		MaxDocumentBytes: core.DefaultMaxDocumentBytes,
	}
}

// Orchestrator runs the specialist fan-out followed by synthesis.
type Orchestrator struct {
	specialists []core.Specialist
	synthesisID core.TaskID
	synthesis   core.Task
	opts        Options

	logger *logging.Logger
	bus    *events.EventBus
	store  core.RunStore
	newID  func() core.RunID
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventBus publishes run progress on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithRunStore persists a record of every run, rejected ones included.
func WithRunStore(store core.RunStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() core.RunID) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// NewOrchestrator creates an orchestrator. Specialists keep their declaration
// order, which is also the order of the synthesis input. Identities are
// validated when a run starts.
func NewOrchestrator(specialists []core.Specialist, synthesisID core.TaskID, synthesis core.Task, opts Options, options ...Option) *Orchestrator {
	o := &Orchestrator{
		specialists: append([]core.Specialist(nil), specialists...),
		synthesisID: synthesisID,
		synthesis:   synthesis,
		opts:        opts,
		logger:      logging.NewNop(),
		newID:       func() core.RunID { return core.RunID(uuid.NewString()) },
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Specialists returns the configured specialist identities in declaration order.
func (o *Orchestrator) Specialists() []core.TaskID {
	return core.SpecialistIDs(o.specialists)
}

// SynthesisID returns the identity of the synthesis task.
func (o *Orchestrator) SynthesisID() core.TaskID {
	return o.synthesisID
}

// Options returns the run options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// NewRun prepares a single-shot run over doc. Source is a free-form label
// such as a file name.
func (o *Orchestrator) NewRun(doc core.Document, source string) *Run {
	return &Run{
		id:     o.newID(),
		orch:   o,
		doc:    doc,
		source: source,
		state:  core.RunStateInitialized,
	}
}

// Diagnose runs the full two-stage pipeline over doc.
func (o *Orchestrator) Diagnose(ctx context.Context, doc core.Document) (*Result, error) {
	return o.NewRun(doc, "").Execute(ctx)
}

// DiagnoseText validates text as a document and runs it. A refused document
// is recorded as a rejected run.
func (o *Orchestrator) DiagnoseText(ctx context.Context, text, source string) (*Result, error) {
	doc, err := core.NewDocument(text, o.opts.MaxDocumentBytes)
	if err != nil {
		run := o.NewRun(core.Document{}, source)
		run.documentSize = len(text)
		return run.reject(ctx, err)
	}
	return o.NewRun(doc, source).Execute(ctx)
}

// Result is the output of a run.
type Result struct {
	RunID core.RunID
	State core.RunState
	// Report is empty unless State is done.
	Report string
	// Outcomes holds one outcome per specialist in declaration order.
	Outcomes       []core.Outcome
	Synthesis      *core.Outcome
	SynthesisInput string
	StartedAt      time.Time
	FinishedAt     time.Time
	Duration       time.Duration
}

// Succeeded counts successful specialists.
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts failed specialists.
func (r *Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Degraded reports whether the report was produced with missing perspectives.
func (r *Result) Degraded() bool {
	return r.Failed() > 0
}

// Run is one execution of the pipeline. It can be executed once.
type Run struct {
	id     core.RunID
	orch   *Orchestrator
	doc    core.Document
	source string

	documentSize int

	mu        sync.Mutex
	state     core.RunState
	started   bool
	collector *ResultCollector
	createdAt time.Time
}

// ID returns the run identifier.
func (r *Run) ID() core.RunID { return r.id }

// State returns the current lifecycle state.
func (r *Run) State() core.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) transition(to core.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := core.Transition(r.state, to); err != nil {
		// Transitions are driven by Execute alone.
		panic(err)
	}
	r.state = to
}

// Execute runs stage 1 then stage 2. On a synthesis failure it returns the
// partial Result (outcomes, no report) together with a synthesis error. A
// second call returns a state error.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, core.ErrState(core.CodeRunAlreadyStarted, fmt.Sprintf("run %s was already executed", r.id))
	}
	r.started = true
	r.createdAt = time.Now()
	r.mu.Unlock()

	o := r.orch
	if r.doc.IsZero() {
		return r.reject(ctx, core.ErrInputPrecondition(core.CodeEmptyDocument, "document is empty or contains only whitespace"))
	}
	r.documentSize = r.doc.Len()
	if err := core.ValidateSpecialists(o.specialists); err != nil {
		return r.reject(ctx, err)
	}
	if o.synthesis == nil || o.synthesisID == "" {
		return r.reject(ctx, core.ErrValidation(core.CodeInvalidTask, "synthesis task is not configured"))
	}

	log := o.logger.WithRun(string(r.id))
	ids := core.SpecialistIDs(o.specialists)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}

	r.transition(core.RunStateFanOutRunning)
	log.Info("run started", "specialists", names, "document_bytes", r.doc.Len(), "source", r.source)
	o.bus.Publish(events.NewRunStartedEvent(string(r.id), names, r.doc.Len()))

	if err := r.fanOut(ctx, log); err != nil {
		// Identities were validated, so a collector error is a bug.
		return nil, fmt.Errorf("collecting outcomes: %w", err)
	}
	r.transition(core.RunStateFanOutComplete)

	succeeded, failed := r.collector.Counts()
	log.WithStage(StageFanOut).Info("fan-out complete", "succeeded", succeeded, "failed", failed)
	o.bus.Publish(events.NewFanOutCompletedEvent(string(r.id), succeeded, failed))

	res := &Result{
		RunID:     r.id,
		Outcomes:  r.collector.Ordered(ids),
		StartedAt: r.createdAt,
	}
	res.SynthesisInput = FormatSynthesisInput(res.Outcomes)

	r.transition(core.RunStateSynthesisRunning)
	synthesis := r.synthesize(ctx, log, res.SynthesisInput)
	res.Synthesis = &synthesis

	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	if !synthesis.OK() {
		r.transition(core.RunStateFailedAtSynthesis)
		res.State = core.RunStateFailedAtSynthesis
		err := core.ErrSynthesisFailed(o.synthesisID, synthesis.Error).WithDetail("cause_code", synthesis.ErrorCode)
		log.Error("run failed at synthesis", "code", synthesis.ErrorCode, "error", synthesis.Error)
		o.bus.PublishPriority(events.NewRunFailedEvent(string(r.id), core.CodeSynthesisFailed, err.Error()))
		r.persist(ctx, res, err)
		return res, err
	}

	r.transition(core.RunStateDone)
	res.State = core.RunStateDone
	res.Report = synthesis.Text
	log.Info("run completed", "duration", res.Duration, "degraded", res.Degraded())
	o.bus.PublishPriority(events.NewRunCompletedEvent(string(r.id), res.Duration, res.Degraded()))
	r.persist(ctx, res, nil)
	return res, nil
}

// fanOut submits every specialist before waiting on any of them. Each task
// gets a goroutine immediately and waits for a worker slot inside it.
func (r *Run) fanOut(ctx context.Context, log *logging.Logger) error {
	o := r.orch
	workers := o.opts.Workers
	if workers <= 0 || workers > len(o.specialists) {
		workers = len(o.specialists)
	}

	stageCtx := ctx
	if o.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.opts.StageTimeout)
		defer cancel()
	}

	r.collector = NewResultCollector(len(o.specialists))
	sem := semaphore.NewWeighted(int64(workers))
	runner := NewTaskRunner(o.opts.TaskTimeout, log.WithStage(StageFanOut))
	input := r.doc.Text()

	var g errgroup.Group
	for _, s := range o.specialists {
		g.Go(func() error {
			return r.collector.Record(r.runSpecialist(stageCtx, sem, runner, s, input))
		})
	}
	err := g.Wait()
	r.collector.Freeze()
	return err
}

func (r *Run) runSpecialist(ctx context.Context, sem *semaphore.Weighted, runner *TaskRunner, s core.Specialist, input string) core.Outcome {
	o := r.orch
	queued := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		outcome := waitFailure(s.ID, err)
		outcome.StartedAt = queued
		outcome.Duration = time.Since(queued)
		o.bus.Publish(events.NewTaskCompletedEvent(string(r.id), string(s.ID), StageFanOut, false, outcome.Error, outcome.Duration))
		return outcome
	}
	defer sem.Release(1)

	o.bus.Publish(events.NewTaskStartedEvent(string(r.id), string(s.ID), StageFanOut))
	outcome := runner.Execute(ctx, s.ID, s.Task, input)
	o.bus.Publish(events.NewTaskCompletedEvent(string(r.id), string(s.ID), StageFanOut, outcome.OK(), outcome.Error, outcome.Duration))
	return outcome
}

// waitFailure resolves a task that never got a worker slot.
func waitFailure(id core.TaskID, err error) core.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Failure(id, core.CodeTimeout, "timeout: stage deadline exceeded while waiting for a worker")
	}
	return core.Failure(id, core.CodeCancelled, "cancelled while waiting for a worker")
}

func (r *Run) synthesize(ctx context.Context, log *logging.Logger, input string) core.Outcome {
	o := r.orch
	synthLog := log.WithStage(StageSynthesis)
	synthLog.Info("synthesis started", "task", string(o.synthesisID), "input_bytes", len(input))
	o.bus.Publish(events.NewTaskStartedEvent(string(r.id), string(o.synthesisID), StageSynthesis))

	runner := NewTaskRunner(o.opts.SynthesisTimeout, synthLog)
	outcome := runner.Execute(ctx, o.synthesisID, o.synthesis, input)

	o.bus.Publish(events.NewTaskCompletedEvent(string(r.id), string(o.synthesisID), StageSynthesis, outcome.OK(), outcome.Error, outcome.Duration))
	return outcome
}

// reject ends a run before stage 1.
func (r *Run) reject(ctx context.Context, cause error) (*Result, error) {
	o := r.orch
	r.mu.Lock()
	r.started = true
	if r.createdAt.IsZero() {
		r.createdAt = time.Now()
	}
	r.mu.Unlock()
	r.transition(core.RunStateRejected)

	o.logger.WithRun(string(r.id)).Warn("run rejected", "code", core.GetCode(cause), "error", cause)
	o.bus.PublishPriority(events.NewRunFailedEvent(string(r.id), core.GetCode(cause), cause.Error()))

	now := time.Now()
	res := &Result{
		RunID:      r.id,
		State:      core.RunStateRejected,
		StartedAt:  r.createdAt,
		FinishedAt: now,
		Duration:   now.Sub(r.createdAt),
	}
	r.persist(ctx, res, cause)
	return nil, cause
}

// persist saves the run record. Store errors are logged, never returned.
func (r *Run) persist(ctx context.Context, res *Result, runErr error) {
	o := r.orch
	if o.store == nil {
		return
	}
	rec := &core.RunRecord{
		ID:           r.id,
		State:        res.State,
		DocumentSize: r.documentSize,
		Source:       r.source,
		Specialists:  core.SpecialistIDs(o.specialists),
		Outcomes:     res.Outcomes,
		Report:       res.Report,
		CreatedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Duration:     res.Duration,
	}
	if !r.doc.IsZero() {
		rec.DocumentDigest = r.doc.Digest()
	}
	if res.Synthesis != nil {
		synthesis := *res.Synthesis
		rec.Synthesis = &synthesis
	}
	if runErr != nil {
		rec.ErrorCode = core.GetCode(runErr)
		rec.ErrorMessage = runErr.Error()
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.Save(saveCtx, rec); err != nil {
		o.logger.WithRun(string(r.id)).Error("saving run record", "error", err)
	}
}
