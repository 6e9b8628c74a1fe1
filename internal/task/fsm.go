package task

import (
	"sync"
	"time"
)

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReasoning  Status = "REASONING"
	StatusPlanning   Status = "PLANNING"
	StatusActing     Status = "ACTING"
	StatusReflecting Status = "REFLECTING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions is the legal transition table. ACTING self-loops for the next
// step; REFLECTING may re-enter REASONING when the loop continues.
var transitions = map[Status][]Status{
	StatusPending:    {StatusReasoning, StatusCancelled, StatusFailed},
	StatusReasoning:  {StatusPlanning, StatusFailed, StatusCancelled},
	StatusPlanning:   {StatusActing, StatusFailed, StatusCancelled},
	StatusActing:     {StatusActing, StatusReflecting, StatusFailed, StatusCancelled},
	StatusReflecting: {StatusReasoning, StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether from -> to is in the legal table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FSM is the state machine for one task. It owns the task's Context. Status
// reads are safe from any goroutine; Context is mutated only by the
// dispatcher-serialized handler chain for this task's events.
type FSM struct {
	// ID uniquely identifies the task.
	ID string

	// Context accumulates the task's cognitive state.
	Context *Context

	// CreatedAt is when the task was registered.
	CreatedAt time.Time

	mu     sync.RWMutex
	status Status

	// failure records the error that drove the task to FAILED.
	failure error
}

func newFSM(id string, ctx *Context) *FSM {
	return &FSM{
		ID:        id,
		Context:   ctx,
		CreatedAt: time.Now(),
		status:    StatusPending,
	}
}

// Status returns the current state.
func (f *FSM) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Terminal reports whether the task has reached a final state.
func (f *FSM) Terminal() bool {
	return f.Status().Terminal()
}

// Failure returns the error recorded when the task failed, if any.
func (f *FSM) Failure() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.failure
}

// Transition moves the task to the next state. An out-of-table transition
// returns InvalidStateTransition and drives the task to FAILED; the caller
// surfaces the TASK_FAILED event.
func (f *FSM) Transition(to Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !CanTransition(f.status, to) {
		err := &InvalidStateTransition{TaskID: f.ID, From: f.status, To: to}
		if !f.status.Terminal() {
			f.status = StatusFailed
			f.failure = err
		}
		return err
	}
	f.status = to
	return nil
}

// Fail drives the task to FAILED recording err, regardless of the current
// non-terminal state. No-op on terminal tasks.
func (f *FSM) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Terminal() {
		return
	}
	f.status = StatusFailed
	f.failure = err
}

// Cancel drives the task to CANCELLED. No-op on terminal tasks. Returns
// whether the cancellation took effect.
func (f *FSM) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Terminal() {
		return false
	}
	f.status = StatusCancelled
	return true
}
