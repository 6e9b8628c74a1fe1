package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/prismbot/prism/internal/llm"
	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/pkg/models"
)

// RoleDefault is the cognitive role resolved against the model registry for
// reasoning calls.
const RoleDefault = "default"

const baseSystemPrompt = "You are a helpful autonomous assistant. " +
	"Use the available tools when they help you satisfy the request, " +
	"and use the reply tool to deliver your answer to the user's channel."

// ThinkOutput is the thinker's result plus the merge instructions the loop
// applies to the task context on the dispatcher.
type ThinkOutput struct {
	Reasoning models.Reasoning

	// AppendUser indicates the input text was added to the outgoing
	// conversation; it travels on REASON_DONE so the merge appends the same
	// user message to the context.
	AppendUser bool
}

// Thinker runs the reasoning phase: one model call over the task's
// conversation with the tool catalog advertised.
type Thinker struct {
	models ModelResolver
}

// NewThinker creates the reasoning phase.
func NewThinker(models ModelResolver) *Thinker {
	return &Thinker{models: models}
}

// Run performs one reasoning pass. It reads the context but does not mutate
// it; the loop merges the output under the dispatcher.
func (t *Thinker) Run(ctx context.Context, tc *task.Context, catalog []llm.ToolSpec) (*ThinkOutput, error) {
	handle, err := t.models.Get(RoleDefault)
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, len(tc.Messages))
	copy(messages, tc.Messages)

	// Do not duplicate the input when the conversation tail already carries
	// it byte-exact.
	appendUser := true
	if last, ok := tc.LastMessage(); ok && last.Role == models.RoleUser && last.Content == tc.InputText {
		appendUser = false
	}
	if appendUser {
		messages = append(messages, models.ChatMessage{
			Role:    models.RoleUser,
			Content: stringifyContent(tc.InputText),
		})
	}

	result, err := handle.Generate(ctx, &llm.GenerateRequest{
		System:   t.systemPrompt(tc.MemoryIndex),
		Messages: messages,
		Tools:    catalog,
	})
	if err != nil {
		return nil, err
	}

	reasoning := models.Reasoning{
		Response:  result.Text,
		Approach:  models.ApproachDirect,
		ToolCalls: result.ToolCalls,
	}
	if len(result.ToolCalls) > 0 {
		reasoning.Approach = models.ApproachToolUse
	}
	return &ThinkOutput{Reasoning: reasoning, AppendUser: appendUser}, nil
}

func (t *Thinker) systemPrompt(memoryIndex []models.MemoryEntry) string {
	if len(memoryIndex) == 0 {
		return baseSystemPrompt
	}
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\nAvailable memory:\n")
	for _, entry := range memoryIndex {
		fmt.Fprintf(&b, "%s: %s\n", entry.Path, entry.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// stringifyContent coerces message content into a string. Nil values render
// as "null" so the model sees an explicit marker rather than silence;
// absent values render empty.
func stringifyContent(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
