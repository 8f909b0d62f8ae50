package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// MockAgent implements Agent for testing.
type MockAgent struct {
	name        string
	executeFunc func(context.Context, core.ExecuteOptions) (*core.ExecuteResult, error)
	pingFunc    func(context.Context) error
	calls       []MockCall
	mu          sync.Mutex
}

// MockCall records a call to the mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

// NewMockAgent creates a new mock agent.
func NewMockAgent(name string) *MockAgent {
	return &MockAgent{
		name:  name,
		calls: make([]MockCall, 0),
	}
}

// Name returns the mock name.
func (m *MockAgent) Name() string {
	return m.name
}

// Ping mocks availability check.
func (m *MockAgent) Ping(ctx context.Context) error {
	m.recordCall("Ping", nil)
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// Execute mocks prompt execution.
func (m *MockAgent) Execute(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
	m.recordCall("Execute", opts)
	m.mu.Lock()
	fn := m.executeFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, opts)
	}

	promptPreview := opts.Prompt
	if len(promptPreview) > 50 {
		promptPreview = promptPreview[:50]
	}

	return &core.ExecuteResult{
		Output:    fmt.Sprintf("Mock response for: %s", promptPreview),
		TokensIn:  100,
		TokensOut: 50,
		Duration:  time.Millisecond * 100,
	}, nil
}

// WithExecuteFunc sets a custom execute function.
func (m *MockAgent) WithExecuteFunc(fn func(context.Context, core.ExecuteOptions) (*core.ExecuteResult, error)) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeFunc = fn
	return m
}

// WithPingFunc sets a custom ping function.
func (m *MockAgent) WithPingFunc(fn func(context.Context) error) *MockAgent {
	m.pingFunc = fn
	return m
}

// WithError configures the mock to return an error.
func (m *MockAgent) WithError(err error) *MockAgent {
	return m.WithExecuteFunc(func(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
		return nil, err
	})
}

// WithResponse configures a fixed response.
func (m *MockAgent) WithResponse(output string) *MockAgent {
	return m.WithExecuteFunc(func(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
		return &core.ExecuteResult{
			Output:    output,
			TokensIn:  100,
			TokensOut: len(output) / 4,
			Duration:  time.Millisecond * 50,
		}, nil
	})
}

// WithFailures makes the first n executions fail with err, then answers output.
func (m *MockAgent) WithFailures(n int, err error, output string) *MockAgent {
	var mu sync.Mutex
	remaining := n
	return m.WithExecuteFunc(func(ctx context.Context, opts core.ExecuteOptions) (*core.ExecuteResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if remaining > 0 {
			remaining--
			return nil, err
		}
		return &core.ExecuteResult{Output: output}, nil
	})
}

// Calls returns recorded calls.
func (m *MockAgent) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.calls...)
}

// CallCount returns number of calls to a method.
func (m *MockAgent) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastPrompt returns the prompt of the most recent Execute call.
func (m *MockAgent) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if opts, ok := m.calls[i].Args.(core.ExecuteOptions); ok {
			return opts.Prompt
		}
	}
	return ""
}

// Reset clears call history.
func (m *MockAgent) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
}

func (m *MockAgent) recordCall(method string, args interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:    method,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// MockRunStore implements RunStore in memory.
type MockRunStore struct {
	records  map[core.RunID]*core.RunRecord
	saveFunc func(*core.RunRecord) error
	saves    int
	mu       sync.Mutex
}

// NewMockRunStore creates an empty store.
func NewMockRunStore() *MockRunStore {
	return &MockRunStore{records: make(map[core.RunID]*core.RunRecord)}
}

// Save mocks record persistence.
func (m *MockRunStore) Save(ctx context.Context, rec *core.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveFunc != nil {
		return m.saveFunc(rec)
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

// Load mocks record loading.
func (m *MockRunStore) Load(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// List mocks listing, newest first.
func (m *MockRunStore) List(ctx context.Context, limit int) ([]core.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.RunSummary, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, core.SummarizeRun(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *MockRunStore) Close() error { return nil }

// Saves returns the number of Save calls.
func (m *MockRunStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// WithSaveError configures save to return an error.
func (m *MockRunStore) WithSaveError(err error) *MockRunStore {
	m.saveFunc = func(*core.RunRecord) error {
		return err
	}
	return m
}

// MockRegistry implements AgentRegistry for testing.
type MockRegistry struct {
	agents map[string]core.Agent
	mu     sync.RWMutex
}

// NewMockRegistry creates a new mock registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		agents: make(map[string]core.Agent),
	}
}

// Register adds an agent to the registry.
func (r *MockRegistry) Register(name string, agent core.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = agent
	return nil
}

// Get returns an agent.
func (r *MockRegistry) Get(name string) (core.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if agent, ok := r.agents[name]; ok {
		return agent, nil
	}
	return nil, core.ErrNotFound("backend", name)
}

// List returns agent names, sorted.
func (r *MockRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ensure interfaces are implemented
var _ core.Agent = (*MockAgent)(nil)
var _ core.RunStore = (*MockRunStore)(nil)
var _ core.AgentRegistry = (*MockRegistry)(nil)
