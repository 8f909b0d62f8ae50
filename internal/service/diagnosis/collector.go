package diagnosis

import (
	"sync"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// ResultCollector maps task identities to outcomes. Inserts are serialized and
// a second insert for the same identity is rejected. After Freeze no insert
// is accepted.
type ResultCollector struct {
	mu       sync.Mutex
	outcomes map[core.TaskID]core.Outcome
	order    []core.TaskID
	frozen   bool
}

// NewResultCollector creates an empty collector sized for n tasks.
func NewResultCollector(n int) *ResultCollector {
	return &ResultCollector{
		outcomes: make(map[core.TaskID]core.Outcome, n),
		order:    make([]core.TaskID, 0, n),
	}
}

// Record stores an outcome. It fails without side effects when the identity
// already has an outcome or the collector is frozen.
func (c *ResultCollector) Record(o core.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return core.ErrState(core.CodeInvalidState, "result collector is frozen")
	}
	if _, exists := c.outcomes[o.TaskID]; exists {
		return core.ErrDuplicateIdentity(o.TaskID)
	}
	c.outcomes[o.TaskID] = o
	c.order = append(c.order, o.TaskID)
	return nil
}

// Freeze makes the collector read-only.
func (c *ResultCollector) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (c *ResultCollector) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// Get returns the outcome for id.
func (c *ResultCollector) Get(id core.TaskID) (core.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outcomes[id]
	return o, ok
}

// Len returns the number of recorded outcomes.
func (c *ResultCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}

// CompletionOrder returns identities in the order their outcomes arrived.
func (c *ResultCollector) CompletionOrder() []core.TaskID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.TaskID, len(c.order))
	copy(out, c.order)
	return out
}

// Ordered returns outcomes following ids. Identities without an outcome are skipped.
func (c *ResultCollector) Ordered(ids []core.TaskID) []core.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Outcome, 0, len(ids))
	for _, id := range ids {
		if o, ok := c.outcomes[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Counts returns the number of successful and failed outcomes.
func (c *ResultCollector) Counts() (succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.outcomes {
		if o.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
