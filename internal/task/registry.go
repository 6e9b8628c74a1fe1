package task

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/prismbot/prism/pkg/models"
)

// Registry is the in-memory index of live task FSMs with a bounded active
// set.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*FSM
	order     []string
	maxActive int
}

// NewRegistry creates a registry enforcing the given active-task cap.
func NewRegistry(maxActive int) *Registry {
	if maxActive <= 0 {
		maxActive = 5
	}
	return &Registry{
		tasks:     make(map[string]*FSM),
		maxActive: maxActive,
	}
}

// Create allocates a task id, builds the FSM in PENDING, and registers it.
// The caller publishes TASK_CREATED after registration. Attempts beyond the
// active cap fail with ErrTooManyTasks and register nothing.
func (r *Registry) Create(channel models.ChannelCoordinate, inputText string) (*FSM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, f := range r.tasks {
		if !f.Terminal() {
			active++
		}
	}
	if active >= r.maxActive {
		return nil, fmt.Errorf("%w: %d active, cap %d", ErrTooManyTasks, active, r.maxActive)
	}

	fsm := newFSM(uuid.NewString(), &Context{
		InputText: inputText,
		Channel:   channel,
	})
	r.tasks[fsm.ID] = fsm
	r.order = append(r.order, fsm.ID)
	return fsm, nil
}

// Get returns the FSM for a task id.
func (r *Registry) Get(id string) (*FSM, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fsm, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return fsm, nil
}

// ListAll returns every registered FSM in creation order.
func (r *Registry) ListAll() []*FSM {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FSM, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// ListActive returns the non-terminal FSMs in creation order.
func (r *Registry) ListActive() []*FSM {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FSM, 0, len(r.order))
	for _, id := range r.order {
		if f := r.tasks[id]; !f.Terminal() {
			out = append(out, f)
		}
	}
	return out
}

// Remove unregisters a task, making it unreachable. No-op for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return
	}
	delete(r.tasks, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}
