package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/logging"
)

// BackendFactory creates a backend from its configuration.
type BackendFactory func(name string, cfg config.BackendConfig, logger *logging.Logger) (core.Agent, error)

// Registry manages task backends by name. Backends are created lazily by
// the factory registered for their type.
type Registry struct {
	factories map[string]BackendFactory
	configs   map[string]config.BackendConfig
	agents    map[string]core.Agent
	logger    *logging.Logger
	mu        sync.Mutex
}

// NewRegistry creates a registry with the http factory registered.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		factories: make(map[string]BackendFactory),
		configs:   make(map[string]config.BackendConfig),
		agents:    make(map[string]core.Agent),
		logger:    logger,
	}
	r.RegisterFactory(config.BackendHTTP, NewHTTPBackend)
	return r
}

// NewHTTPBackend is the factory for http backends.
func NewHTTPBackend(name string, cfg config.BackendConfig, logger *logging.Logger) (core.Agent, error) {
	urls := config.SplitURLs(cfg.BaseURL)
	if len(urls) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("backend %s has no base_url", name))
	}
	return NewClient(ClientConfig{
		Name:        name,
		BaseURLs:    urls,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.TimeoutDuration(),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, logger), nil
}

// RegisterFactory registers a factory for a backend type.
func (r *Registry) RegisterFactory(backendType string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backendType] = factory
}

// Configure sets the configuration of a named backend.
func (r *Registry) Configure(name string, cfg config.BackendConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
	// Clear cached agent to force re-creation
	delete(r.agents, name)
}

// ConfigureAll configures every backend in backends.
func (r *Registry) ConfigureAll(backends map[string]config.BackendConfig) {
	for name, cfg := range backends {
		r.Configure(name, cfg)
	}
}

// Register adds a ready backend under name.
func (r *Registry) Register(name string, agent core.Agent) error {
	if agent == nil {
		return core.ErrValidation(core.CodeInvalidConfig, "nil backend")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = agent
	return nil
}

// Get returns a backend by name, creating it if necessary.
func (r *Registry) Get(name string) (core.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent, ok := r.agents[name]; ok {
		return agent, nil
	}

	cfg, ok := r.configs[name]
	if !ok {
		return nil, core.ErrNotFound("backend", name)
	}
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, core.ErrValidation(core.CodeAgentUnavailable, fmt.Sprintf("no factory for backend type %q", cfg.Type))
	}

	agent, err := factory(name, cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating backend %s: %w", name, err)
	}
	r.agents[name] = agent
	return agent, nil
}

// Config returns the configuration of a named backend.
func (r *Registry) Config(name string) (config.BackendConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// List returns all known backend names, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.configs)+len(r.agents))
	for name := range r.configs {
		seen[name] = true
	}
	for name := range r.agents {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PingAll pings every backend concurrently. A nil error means reachable.
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	names := r.List()
	results := make(map[string]error, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			agent, err := r.Get(name)
			if err == nil {
				err = agent.Ping(ctx)
			}
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

var _ core.AgentRegistry = (*Registry)(nil)
