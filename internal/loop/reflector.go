package loop

import (
	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/pkg/models"
)

// Reflector decides after each iteration whether the loop re-enters
// reasoning or terminates. The verdict is derived from the accumulated
// context; it does not call the model.
type Reflector struct{}

// NewReflector creates the reflecting phase.
func NewReflector() *Reflector {
	return &Reflector{}
}

// Run produces the reflection verdict for the current iteration.
func (r *Reflector) Run(tc *task.Context) models.Reflection {
	for i := range tc.ActionsDone {
		if tc.ActionsDone[i].Pending() {
			return models.Reflection{Continue: true, Reason: "tool results still pending"}
		}
	}
	if tc.Reasoning != nil {
		if tc.Reasoning.NeedsClarification {
			return models.Reflection{Continue: true, Reason: "clarification needed"}
		}
		if tc.Reasoning.Approach == models.ApproachToolUse {
			return models.Reflection{Continue: true, Reason: "tool results need synthesis"}
		}
	}
	return models.Reflection{Continue: false, Reason: "goal satisfied"}
}
