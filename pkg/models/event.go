// Package models provides domain types shared across the Prism agent runtime.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event. The numeric value doubles as the
// default dispatch priority: lower values dispatch first.
//
// Ranges:
//
//	0-99    system lifecycle
//	100-199 external input
//	200-299 task lifecycle
//	300-399 cognitive phases
//	400-499 tool execution
type EventType int

const (
	// System lifecycle (0-99)
	EventSystemStarted  EventType = 0
	EventHeartbeat      EventType = 10
	EventSystemStopping EventType = 20

	// External input (100-199)
	EventMessageReceived EventType = 100

	// Task lifecycle (200-299)
	EventTaskCreated   EventType = 200
	EventTaskCompleted EventType = 210
	EventTaskFailed    EventType = 220
	EventTaskCancelled EventType = 230

	// Cognitive phases (300-399)
	EventReasonDone    EventType = 300
	EventPlanDone      EventType = 310
	EventStepRequested EventType = 320
	EventStepCompleted EventType = 330
	EventReflectDone   EventType = 340

	// Tool execution (400-499)
	EventToolCallRequested EventType = 400
	EventToolCallCompleted EventType = 410
	EventToolCallFailed    EventType = 420
)

var eventTypeNames = map[EventType]string{
	EventSystemStarted:     "SYSTEM_STARTED",
	EventHeartbeat:         "HEARTBEAT",
	EventSystemStopping:    "SYSTEM_STOPPING",
	EventMessageReceived:   "MESSAGE_RECEIVED",
	EventTaskCreated:       "TASK_CREATED",
	EventTaskCompleted:     "TASK_COMPLETED",
	EventTaskFailed:        "TASK_FAILED",
	EventTaskCancelled:     "TASK_CANCELLED",
	EventReasonDone:        "REASON_DONE",
	EventPlanDone:          "PLAN_DONE",
	EventStepRequested:     "STEP_REQUESTED",
	EventStepCompleted:     "STEP_COMPLETED",
	EventReflectDone:       "REFLECT_DONE",
	EventToolCallRequested: "TOOL_CALL_REQUESTED",
	EventToolCallCompleted: "TOOL_CALL_COMPLETED",
	EventToolCallFailed:    "TOOL_CALL_FAILED",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// SourceSystem is the event source for events not originating from a channel.
const SourceSystem = "system"

// Event is an immutable record of one state transition. Events are passed by
// value; the bus hands out copies, so mutating a received event has no
// observable effect on dispatch or history.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Seq is the monotonic emission sequence, assigned by the bus. It breaks
	// ties between events of equal effective priority (FIFO).
	Seq uint64 `json:"seq"`

	// Type identifies the kind of event and encodes its default priority.
	Type EventType `json:"type"`

	// Timestamp is when the event was constructed.
	Timestamp time.Time `json:"timestamp"`

	// TaskID is the task this event belongs to, if any.
	TaskID string `json:"task_id,omitempty"`

	// Source is the originating channel type, or "system".
	Source string `json:"source"`

	// ParentEventID links to the event that caused this one.
	ParentEventID string `json:"parent_event_id,omitempty"`

	// Priority overrides the type's default priority when >= 0.
	// A negative value means "use the type's numeric value".
	Priority int `json:"priority,omitempty"`

	// Payload carries the event's typed data. Exactly one field should be
	// non-nil for a given Type.
	Payload Payload `json:"payload"`
}

// NewEvent constructs an event with a fresh ID and no priority override.
func NewEvent(t EventType, source, taskID string, payload Payload) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		TaskID:    taskID,
		Source:    source,
		Priority:  -1,
		Payload:   payload,
	}
}

// Derive constructs a child event that preserves causality: TaskID and Source
// are copied from the parent and ParentEventID is set to the parent's ID.
func Derive(parent Event, t EventType, payload Payload) Event {
	ev := NewEvent(t, parent.Source, parent.TaskID, payload)
	ev.ParentEventID = parent.ID
	return ev
}

// EffectivePriority returns the priority used for dispatch ordering:
// the explicit override when set, otherwise the type's numeric value.
func (e Event) EffectivePriority() int {
	if e.Priority >= 0 {
		return e.Priority
	}
	return int(e.Type)
}

// WithPriority returns a copy of the event with an explicit priority override.
func (e Event) WithPriority(p int) Event {
	e.Priority = p
	return e
}

// Payload is the tagged union of event payloads. Exactly one field should be
// non-nil for a given event type; handlers switch on the event type and read
// the matching field.
type Payload struct {
	Message *MessagePayload `json:"message,omitempty"`
	Task    *TaskPayload    `json:"task,omitempty"`
	Reason  *ReasonPayload  `json:"reason,omitempty"`
	Plan    *PlanPayload    `json:"plan,omitempty"`
	Step    *StepPayload    `json:"step,omitempty"`
	Tool    *ToolPayload    `json:"tool,omitempty"`
	Reflect *ReflectPayload `json:"reflect,omitempty"`
	System  *SystemPayload  `json:"system,omitempty"`
}

// MessagePayload carries an inbound channel message (MESSAGE_RECEIVED).
type MessagePayload struct {
	Inbound Inbound `json:"inbound"`
}

// TaskPayload carries task lifecycle data (TASK_CREATED, TASK_COMPLETED,
// TASK_FAILED, TASK_CANCELLED).
type TaskPayload struct {
	TaskID string `json:"task_id"`

	// Final is set on TASK_COMPLETED.
	Final *FinalResult `json:"final,omitempty"`

	// ErrorKind and Message are set on TASK_FAILED / TASK_CANCELLED.
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ReasonPayload carries the thinker's output (REASON_DONE).
type ReasonPayload struct {
	Reasoning Reasoning `json:"reasoning"`

	// AppendUser indicates the thinker sent the task input as a fresh user
	// message, so the merge must append it to the conversation too.
	AppendUser bool `json:"append_user,omitempty"`
}

// PlanPayload carries the planner's output (PLAN_DONE).
type PlanPayload struct {
	Plan Plan `json:"plan"`
}

// StepPayload carries step progress (STEP_REQUESTED, STEP_COMPLETED).
type StepPayload struct {
	StepIndex int `json:"step_index"`

	// Result is set on STEP_COMPLETED.
	Result *StepResult `json:"result,omitempty"`
}

// ToolPayload carries tool call lifecycle data (TOOL_CALL_REQUESTED,
// TOOL_CALL_COMPLETED, TOOL_CALL_FAILED).
type ToolPayload struct {
	Call      ToolCall    `json:"call"`
	StepIndex int         `json:"step_index"`
	Result    *StepResult `json:"result,omitempty"`

	// Channel is the origin coordinate of the requesting task, for tools
	// that deliver back to the source channel.
	Channel ChannelCoordinate `json:"channel,omitempty"`
}

// ReflectPayload carries the reflector's verdict (REFLECT_DONE).
type ReflectPayload struct {
	Reflection Reflection `json:"reflection"`
}

// SystemPayload carries free-form system event text (HEARTBEAT etc).
type SystemPayload struct {
	Message string `json:"message,omitempty"`
}

// FinalResult is the terminal payload of a completed task.
type FinalResult struct {
	TaskID string `json:"task_id"`
	Text   string `json:"text"`

	// Warning is set when the task was force-completed, e.g. on hitting the
	// cognitive iteration cap.
	Warning string `json:"warning,omitempty"`
}
