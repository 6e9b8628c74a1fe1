package loop

import (
	"fmt"

	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/pkg/models"
)

// Planner builds the step plan for one iteration. The plan is derived
// deterministically from the latest reasoning: one tool_call step per
// requested tool call in order, or a single respond step.
type Planner struct{}

// NewPlanner creates the planning phase.
func NewPlanner() *Planner {
	return &Planner{}
}

// Run produces the plan. It does not call the model and does not mutate the
// context.
func (p *Planner) Run(tc *task.Context) models.Plan {
	if tc.Reasoning != nil && len(tc.Reasoning.ToolCalls) > 0 {
		plan := models.Plan{
			Goal:      "Execute the requested tool calls",
			Reasoning: tc.Reasoning.Response,
		}
		for i, call := range tc.Reasoning.ToolCalls {
			plan.Steps = append(plan.Steps, models.PlanStep{
				Index:       i,
				Description: fmt.Sprintf("Call tool %s", call.Name),
				ActionType:  models.ActionToolCall,
				Params: models.ActionParams{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					ToolParams: call.Arguments,
				},
			})
		}
		return plan
	}

	return models.Plan{
		Goal: "Respond to the user",
		Steps: []models.PlanStep{{
			Index:       0,
			Description: "Respond to the user",
			ActionType:  models.ActionRespond,
		}},
	}
}
