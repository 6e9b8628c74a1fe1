package loop

import (
	"fmt"
	"time"

	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/pkg/models"
)

// ActOutcome is the actor's result for one step. When ToolCall is set the
// result is pending and the tool call must be dispatched for execution;
// otherwise the result is complete.
type ActOutcome struct {
	Result   models.StepResult
	ToolCall *models.ToolCall
}

// Actor executes plan steps. Respond steps complete synchronously from the
// latest reasoning; tool_call steps record the assistant's request in the
// conversation and hand the call off for asynchronous execution.
type Actor struct{}

// NewActor creates the acting phase.
func NewActor() *Actor {
	return &Actor{}
}

// Run executes the step at stepIndex. For tool_call steps it appends the
// assistant tool-call message to the conversation; it must therefore run on
// the dispatcher.
func (a *Actor) Run(tc *task.Context, stepIndex int) ActOutcome {
	step := tc.Plan.Steps[stepIndex]
	now := time.Now()

	switch step.ActionType {
	case models.ActionRespond:
		response := ""
		if tc.Reasoning != nil {
			response = tc.Reasoning.Response
		}
		result := models.StepResult{
			StepIndex:  stepIndex,
			ActionType: models.ActionRespond,
			StartedAt:  now,
		}
		result.Complete(true, response, "")
		return ActOutcome{Result: result}

	case models.ActionToolCall:
		call := models.ToolCall{
			ID:        step.Params.ToolCallID,
			Name:      step.Params.ToolName,
			Arguments: step.Params.ToolParams,
		}
		tc.AppendMessage(models.ChatMessage{
			Role:      models.RoleAssistant,
			ToolCalls: []models.ToolCall{call},
		})
		return ActOutcome{
			Result: models.StepResult{
				StepIndex:   stepIndex,
				ActionType:  models.ActionToolCall,
				ActionInput: string(call.Arguments),
				StartedAt:   now,
			},
			ToolCall: &call,
		}

	default:
		result := models.StepResult{
			StepIndex:  stepIndex,
			ActionType: step.ActionType,
			StartedAt:  now,
		}
		result.Complete(true, fmt.Sprintf("[Stub] Completed step %d: %s", stepIndex, step.Description), "")
		return ActOutcome{Result: result}
	}
}
