package models

import (
	"encoding/json"
	"time"
)

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

// ChatMessage is one entry in a task's LLM conversation, including assistant
// tool calls and tool results.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is an assistant-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Approach classifies how the thinker intends to satisfy the request.
type Approach string

const (
	ApproachDirect  Approach = "direct"
	ApproachToolUse Approach = "tool_use"
)

// Reasoning is the thinker's output for one cognitive iteration.
type Reasoning struct {
	Response           string     `json:"response"`
	Approach           Approach   `json:"approach"`
	NeedsClarification bool       `json:"needs_clarification"`
	ToolCalls          []ToolCall `json:"tool_calls,omitempty"`
}

// ActionType classifies what a plan step does.
type ActionType string

const (
	ActionRespond  ActionType = "respond"
	ActionToolCall ActionType = "tool_call"
	ActionGenerate ActionType = "generate"
)

// ActionParams carries the step's action-specific parameters. Only the
// fields relevant to the step's ActionType are set.
type ActionParams struct {
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolParams json.RawMessage `json:"tool_params,omitempty"`
}

// PlanStep is one element of a plan. Index matches the step's position in
// Plan.Steps; Completed transitions false to true exactly once.
type PlanStep struct {
	Index       int          `json:"index"`
	Description string       `json:"description"`
	ActionType  ActionType   `json:"action_type"`
	Params      ActionParams `json:"params"`
	Completed   bool         `json:"completed"`
}

// Plan is the planner's output for one cognitive iteration.
type Plan struct {
	Goal      string     `json:"goal"`
	Reasoning string     `json:"reasoning,omitempty"`
	Steps     []PlanStep `json:"steps"`
}

// StepResult records the outcome of executing one plan step. For tool_call
// steps the result is created pending (no CompletedAt) and completed
// asynchronously when the tool result arrives.
type StepResult struct {
	StepIndex   int        `json:"step_index"`
	ActionType  ActionType `json:"action_type"`
	ActionInput string     `json:"action_input,omitempty"`
	Success     bool       `json:"success"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// Pending reports whether the step is still awaiting an asynchronous result.
func (r *StepResult) Pending() bool {
	return r.CompletedAt == nil
}

// Complete marks the result finished at now, recording the duration.
func (r *StepResult) Complete(success bool, result, errMsg string) {
	now := time.Now()
	r.Success = success
	r.Result = result
	r.Error = errMsg
	r.CompletedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
}

// Reflection is the reflector's verdict for one cognitive iteration.
type Reflection struct {
	// Continue indicates the loop should re-enter reasoning.
	Continue bool `json:"continue"`

	// Reason explains the verdict, for the event history.
	Reason string `json:"reason,omitempty"`
}

// MemoryEntry is one row of the memory index surfaced to the thinker.
type MemoryEntry struct {
	Path    string `json:"path"`
	Summary string `json:"summary"`
	Size    int64  `json:"size,omitempty"`
}
