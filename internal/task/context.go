// Package task implements the task state machine and registry.
package task

import (
	"github.com/prismbot/prism/pkg/models"
)

// Context accumulates one task's reasoning, plan, step results, reflections,
// and conversation. It has a single writer: the cognitive loop handler chain
// for events carrying this task's id, which the bus serializes.
type Context struct {
	// InputText is the original user input.
	InputText string

	// Channel is the originating channel coordinate.
	Channel models.ChannelCoordinate

	// Messages is the ordered LLM conversation, including tool calls and
	// tool results.
	Messages []models.ChatMessage

	// Reasoning is the latest thinker output, nil before the first pass.
	Reasoning *models.Reasoning

	// Plan is the latest planner output, nil before the first pass.
	Plan *models.Plan

	// ActionsDone records step results in execution order.
	ActionsDone []models.StepResult

	// Reflections records reflector verdicts in order.
	Reflections []models.Reflection

	// Iteration counts completed cognitive loop turns.
	Iteration int

	// FinalResult is nil until the task reaches a terminal state.
	FinalResult *models.FinalResult

	// MemoryIndex optionally lists memory entries surfaced to the thinker.
	MemoryIndex []models.MemoryEntry
}

// AppendMessage appends a chat message to the conversation.
func (c *Context) AppendMessage(msg models.ChatMessage) {
	c.Messages = append(c.Messages, msg)
}

// LastMessage returns the tail of the conversation, or a zero message when
// the conversation is empty.
func (c *Context) LastMessage() (models.ChatMessage, bool) {
	if len(c.Messages) == 0 {
		return models.ChatMessage{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// PendingStep returns the lowest-index incomplete plan step, or -1 when the
// plan is nil or fully completed.
func (c *Context) PendingStep() int {
	if c.Plan == nil {
		return -1
	}
	for i := range c.Plan.Steps {
		if !c.Plan.Steps[i].Completed {
			return i
		}
	}
	return -1
}
