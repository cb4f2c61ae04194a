package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TriggerType identifies the lifecycle event a workflow is bound to.
type TriggerType string

const (
	// TriggerArchiveDataset fires when a dataset archival is requested and a
	// default workflow is configured for the trigger.
	TriggerArchiveDataset TriggerType = "ArchiveDataset"
)

// Workflow describes a configured workflow definition.
type Workflow struct {
	ID      string
	Name    string
	Trigger TriggerType
}

// Context carries the information a workflow run needs about the dataset and
// the request that started it. The invocation id is minted by the engine and
// must be presented by the workflow when it installs or matches dataset locks.
type Context struct {
	InvocationID       string
	DatasetID          string
	Trigger            TriggerType
	User               string
	ExternallyReleased bool
}

// Handler is the body of a workflow run.
type Handler func(ctx context.Context, wctx Context) error

// Engine resolves and starts workflows. Production deployments back this with
// an external workflow system; the in-process Registry below serves embedded
// use and tests.
type Engine interface {
	// DefaultWorkflow reports the workflow configured as default for the
	// trigger, if any.
	DefaultWorkflow(trigger TriggerType) (Workflow, bool)
	// Start launches the workflow. The returned context carries the minted
	// invocation id.
	Start(ctx context.Context, wf Workflow, wctx Context) (Context, error)
}

// Registry is an in-process Engine. Workflows are registered with a handler
// and optionally marked as the default for their trigger.
type Registry struct {
	mu        sync.Mutex
	workflows map[string]Workflow
	handlers  map[string]Handler
	defaults  map[TriggerType]string
	started   []Context
}

// NewRegistry constructs an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]Workflow),
		handlers:  make(map[string]Handler),
		defaults:  make(map[TriggerType]string),
	}
}

// Register adds a workflow definition and its handler.
func (r *Registry) Register(wf Workflow, handler Handler) error {
	if wf.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[wf.ID]; ok {
		return fmt.Errorf("workflow %q already registered", wf.ID)
	}
	r.workflows[wf.ID] = wf
	if handler != nil {
		r.handlers[wf.ID] = handler
	}
	return nil
}

// SetDefault marks a registered workflow as the default for its trigger.
func (r *Registry) SetDefault(trigger TriggerType, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[workflowID]
	if !ok {
		return fmt.Errorf("workflow %q not registered", workflowID)
	}
	if wf.Trigger != trigger {
		return fmt.Errorf("workflow %q is bound to trigger %q", workflowID, wf.Trigger)
	}
	r.defaults[trigger] = workflowID
	return nil
}

// DefaultWorkflow implements Engine.
func (r *Registry) DefaultWorkflow(trigger TriggerType) (Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.defaults[trigger]
	if !ok {
		return Workflow{}, false
	}
	wf, ok := r.workflows[id]
	return wf, ok
}

// Start implements Engine. The handler runs synchronously; callers that want
// asynchronous execution start workflows from their own goroutines.
func (r *Registry) Start(ctx context.Context, wf Workflow, wctx Context) (Context, error) {
	r.mu.Lock()
	handler := r.handlers[wf.ID]
	if wctx.InvocationID == "" {
		wctx.InvocationID = uuid.NewString()
	}
	r.started = append(r.started, wctx)
	r.mu.Unlock()

	if handler == nil {
		return wctx, nil
	}
	if err := handler(ctx, wctx); err != nil {
		return wctx, fmt.Errorf("workflow %s: %w", wf.ID, err)
	}
	return wctx, nil
}

// Started returns the contexts of all workflow runs launched so far.
func (r *Registry) Started() []Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Context, len(r.started))
	copy(out, r.started)
	return out
}

var _ Engine = (*Registry)(nil)
