package task

import (
	"errors"
	"fmt"
)

// Sentinel errors for task operations.
var (
	// ErrTooManyTasks indicates the active-task cap was reached.
	ErrTooManyTasks = errors.New("too many active tasks")

	// ErrTaskNotFound indicates a lookup for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
)

// InvalidStateTransition is the fatal per-task error raised when a
// transition outside the legal table is attempted.
type InvalidStateTransition struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("task %s: invalid state transition %s -> %s", e.TaskID, e.From, e.To)
}
