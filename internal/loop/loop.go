// Package loop implements the cognitive loop driving each task through
// reasoning, planning, acting, and reflecting via bus events.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/prismbot/prism/internal/bus"
	"github.com/prismbot/prism/internal/llm"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/internal/tools"
	"github.com/prismbot/prism/pkg/models"
)

// ModelResolver resolves cognitive roles to model handles. Satisfied by
// *llm.Registry.
type ModelResolver interface {
	Get(role string) (llm.Handle, error)
}

// Config bounds the cognitive loop.
type Config struct {
	// MaxIterations caps completed loop turns per task. A task reaching the
	// cap is force-completed with a warning.
	MaxIterations int
}

// Loop is the only consumer of MESSAGE_RECEIVED and the single writer of
// every task context. All context mutation happens in its handlers, which the
// bus serializes; suspending phases run on worker goroutines whose results
// come back as events.
type Loop struct {
	bus       *bus.Bus
	tasks     *task.Registry
	tools     *tools.Registry
	thinker   *Thinker
	planner   *Planner
	actor     *Actor
	reflector *Reflector

	maxIterations int
	runCtx        context.Context
	log           *observability.Logger
}

// New creates a cognitive loop over the given registries.
func New(b *bus.Bus, tasks *task.Registry, toolReg *tools.Registry, resolver ModelResolver, cfg Config, log *observability.Logger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if log == nil {
		log = observability.NewTestLogger()
	}
	return &Loop{
		bus:           b,
		tasks:         tasks,
		tools:         toolReg,
		thinker:       NewThinker(resolver),
		planner:       NewPlanner(),
		actor:         NewActor(),
		reflector:     NewReflector(),
		maxIterations: cfg.MaxIterations,
		runCtx:        context.Background(),
		log:           log,
	}
}

// Attach subscribes the loop's handlers. ctx bounds the worker goroutines
// spawned for model calls.
func (l *Loop) Attach(ctx context.Context) {
	if ctx != nil {
		l.runCtx = ctx
	}
	l.bus.Subscribe(models.EventMessageReceived, l.onMessageReceived)
	l.bus.Subscribe(models.EventTaskCreated, l.onTaskCreated)
	l.bus.Subscribe(models.EventReasonDone, l.onReasonDone)
	l.bus.Subscribe(models.EventPlanDone, l.onPlanDone)
	l.bus.Subscribe(models.EventStepRequested, l.onStepRequested)
	l.bus.Subscribe(models.EventToolCallCompleted, l.onToolCallDone)
	l.bus.Subscribe(models.EventToolCallFailed, l.onToolCallDone)
	l.bus.Subscribe(models.EventStepCompleted, l.onStepCompleted)
	l.bus.Subscribe(models.EventReflectDone, l.onReflectDone)
	l.bus.Subscribe(models.EventTaskCancelled, l.onTaskCancelled)
}

// activeTask resolves the event's task, dropping events for unknown or
// terminal tasks.
func (l *Loop) activeTask(ev models.Event) *task.FSM {
	if ev.TaskID == "" {
		return nil
	}
	fsm, err := l.tasks.Get(ev.TaskID)
	if err != nil {
		l.log.Debug("event for unknown task dropped", "task_id", ev.TaskID, "event_type", ev.Type.String())
		return nil
	}
	if fsm.Terminal() {
		l.log.Debug("event for terminal task dropped", "task_id", ev.TaskID, "event_type", ev.Type.String())
		return nil
	}
	return fsm
}

func (l *Loop) onMessageReceived(ev models.Event) error {
	payload := ev.Payload.Message
	if payload == nil {
		return fmt.Errorf("message event %s has no message payload", ev.ID)
	}
	fsm, err := l.tasks.Create(payload.Inbound.Channel, payload.Inbound.Text)
	if err != nil {
		if errors.Is(err, task.ErrTooManyTasks) {
			l.log.Warn("input dropped, task capacity reached",
				"channel", string(payload.Inbound.Channel.Type), "error", err)
			return nil
		}
		return err
	}

	created := models.Derive(ev, models.EventTaskCreated, models.Payload{
		Task: &models.TaskPayload{TaskID: fsm.ID},
	})
	created.TaskID = fsm.ID
	l.bus.Emit(created)
	return nil
}

func (l *Loop) onTaskCreated(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	if err := fsm.Transition(task.StatusReasoning); err != nil {
		l.emitFailure(ev, fsm.ID, err)
		return nil
	}
	l.startThinking(ev, fsm)
	return nil
}

// startThinking runs the thinker on a worker goroutine; its result or
// failure comes back as a derived event.
func (l *Loop) startThinking(parent models.Event, fsm *task.FSM) {
	catalog := l.tools.ToLLMTools()
	go func() {
		out, err := l.thinker.Run(l.runCtx, fsm.Context, catalog)
		if err != nil {
			l.emitFailure(parent, fsm.ID, err)
			return
		}
		l.bus.Emit(models.Derive(parent, models.EventReasonDone, models.Payload{
			Reason: &models.ReasonPayload{Reasoning: out.Reasoning, AppendUser: out.AppendUser},
		}))
	}()
}

func (l *Loop) onReasonDone(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	payload := ev.Payload.Reason
	if payload == nil {
		return fmt.Errorf("reason event %s has no reason payload", ev.ID)
	}

	tc := fsm.Context
	if payload.AppendUser {
		tc.AppendMessage(models.ChatMessage{Role: models.RoleUser, Content: tc.InputText})
	}
	reasoning := payload.Reasoning
	tc.Reasoning = &reasoning
	if reasoning.Response != "" || len(reasoning.ToolCalls) == 0 {
		tc.AppendMessage(models.ChatMessage{
			Role:    models.RoleAssistant,
			Content: reasoning.Response,
		})
	}

	if err := fsm.Transition(task.StatusPlanning); err != nil {
		l.emitFailure(ev, fsm.ID, err)
		return nil
	}
	plan := l.planner.Run(tc)
	l.bus.Emit(models.Derive(ev, models.EventPlanDone, models.Payload{
		Plan: &models.PlanPayload{Plan: plan},
	}))
	return nil
}

func (l *Loop) onPlanDone(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	payload := ev.Payload.Plan
	if payload == nil {
		return fmt.Errorf("plan event %s has no plan payload", ev.ID)
	}

	plan := payload.Plan
	fsm.Context.Plan = &plan
	if err := fsm.Transition(task.StatusActing); err != nil {
		l.emitFailure(ev, fsm.ID, err)
		return nil
	}
	l.bus.Emit(models.Derive(ev, models.EventStepRequested, models.Payload{
		Step: &models.StepPayload{StepIndex: 0},
	}))
	return nil
}

func (l *Loop) onStepRequested(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	payload := ev.Payload.Step
	if payload == nil {
		return fmt.Errorf("step event %s has no step payload", ev.ID)
	}
	tc := fsm.Context
	if tc.Plan == nil || payload.StepIndex < 0 || payload.StepIndex >= len(tc.Plan.Steps) {
		l.emitFailure(ev, fsm.ID, fmt.Errorf("step index %d out of range", payload.StepIndex))
		return nil
	}

	outcome := l.actor.Run(tc, payload.StepIndex)
	tc.ActionsDone = append(tc.ActionsDone, outcome.Result)

	if outcome.ToolCall != nil {
		l.bus.Emit(models.Derive(ev, models.EventToolCallRequested, models.Payload{
			Tool: &models.ToolPayload{
				Call:      *outcome.ToolCall,
				StepIndex: payload.StepIndex,
				Channel:   tc.Channel,
			},
		}))
		return nil
	}

	tc.Plan.Steps[payload.StepIndex].Completed = true
	result := outcome.Result
	l.bus.Emit(models.Derive(ev, models.EventStepCompleted, models.Payload{
		Step: &models.StepPayload{StepIndex: payload.StepIndex, Result: &result},
	}))
	return nil
}

// onToolCallDone merges an asynchronous tool result into the task context
// and completes the step. Handles both TOOL_CALL_COMPLETED and
// TOOL_CALL_FAILED; a failed tool call completes its step with a failed
// result rather than failing the task.
func (l *Loop) onToolCallDone(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	payload := ev.Payload.Tool
	if payload == nil || payload.Result == nil {
		return fmt.Errorf("tool event %s has no result payload", ev.ID)
	}

	tc := fsm.Context
	result := *payload.Result
	merged := false
	for i := range tc.ActionsDone {
		if tc.ActionsDone[i].StepIndex == result.StepIndex && tc.ActionsDone[i].Pending() {
			tc.ActionsDone[i] = result
			merged = true
			break
		}
	}
	if !merged {
		l.log.Warn("tool result without pending step result",
			"task_id", fsm.ID, "step_index", result.StepIndex, "tool", payload.Call.Name)
	}

	content := result.Result
	if !result.Success {
		content = result.Error
	}
	tc.AppendMessage(models.ChatMessage{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: payload.Call.ID,
	})

	if tc.Plan != nil && result.StepIndex < len(tc.Plan.Steps) {
		tc.Plan.Steps[result.StepIndex].Completed = true
	}
	l.bus.Emit(models.Derive(ev, models.EventStepCompleted, models.Payload{
		Step: &models.StepPayload{StepIndex: result.StepIndex, Result: &result},
	}))
	return nil
}

func (l *Loop) onStepCompleted(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	tc := fsm.Context

	if next := tc.PendingStep(); next >= 0 {
		if err := fsm.Transition(task.StatusActing); err != nil {
			l.emitFailure(ev, fsm.ID, err)
			return nil
		}
		l.bus.Emit(models.Derive(ev, models.EventStepRequested, models.Payload{
			Step: &models.StepPayload{StepIndex: next},
		}))
		return nil
	}

	if err := fsm.Transition(task.StatusReflecting); err != nil {
		l.emitFailure(ev, fsm.ID, err)
		return nil
	}
	go func() {
		reflection := l.reflector.Run(tc)
		l.bus.Emit(models.Derive(ev, models.EventReflectDone, models.Payload{
			Reflect: &models.ReflectPayload{Reflection: reflection},
		}))
	}()
	return nil
}

func (l *Loop) onReflectDone(ev models.Event) error {
	fsm := l.activeTask(ev)
	if fsm == nil {
		return nil
	}
	payload := ev.Payload.Reflect
	if payload == nil {
		return fmt.Errorf("reflect event %s has no reflect payload", ev.ID)
	}

	tc := fsm.Context
	tc.Reflections = append(tc.Reflections, payload.Reflection)
	tc.Iteration++

	if payload.Reflection.Continue {
		if tc.Iteration >= l.maxIterations {
			l.log.Warn("cognitive iteration cap reached, forcing completion",
				"task_id", fsm.ID, "iterations", tc.Iteration)
			l.complete(ev, fsm, fmt.Sprintf("completed after reaching the iteration cap (%d)", l.maxIterations))
			return nil
		}
		if err := fsm.Transition(task.StatusReasoning); err != nil {
			l.emitFailure(ev, fsm.ID, err)
			return nil
		}
		l.startThinking(ev, fsm)
		return nil
	}

	l.complete(ev, fsm, "")
	return nil
}

func (l *Loop) onTaskCancelled(ev models.Event) error {
	if ev.TaskID == "" {
		return nil
	}
	fsm, err := l.tasks.Get(ev.TaskID)
	if err != nil {
		return nil
	}
	if fsm.Cancel() {
		l.log.Info("task cancelled", "task_id", fsm.ID)
	}
	return nil
}

// complete drives the task to COMPLETED and publishes the final result.
func (l *Loop) complete(ev models.Event, fsm *task.FSM, warning string) {
	tc := fsm.Context
	final := models.FinalResult{
		TaskID:  fsm.ID,
		Text:    finalText(tc),
		Warning: warning,
	}
	tc.FinalResult = &final
	if err := fsm.Transition(task.StatusCompleted); err != nil {
		l.emitFailure(ev, fsm.ID, err)
		return
	}
	l.bus.Emit(models.Derive(ev, models.EventTaskCompleted, models.Payload{
		Task: &models.TaskPayload{TaskID: fsm.ID, Final: &final},
	}))
}

// finalText selects the user-facing result text: the latest non-empty
// reasoning response, else the last successful respond step's output.
func finalText(tc *task.Context) string {
	if tc.Reasoning != nil && tc.Reasoning.Response != "" {
		return tc.Reasoning.Response
	}
	for i := len(tc.ActionsDone) - 1; i >= 0; i-- {
		r := tc.ActionsDone[i]
		if r.ActionType == models.ActionRespond && r.Success && r.Result != "" {
			return r.Result
		}
	}
	return ""
}

// emitFailure drives the task to FAILED and publishes TASK_FAILED. Safe to
// call from worker goroutines.
func (l *Loop) emitFailure(parent models.Event, taskID string, cause error) {
	if fsm, err := l.tasks.Get(taskID); err == nil {
		fsm.Fail(cause)
	}
	failed := models.Derive(parent, models.EventTaskFailed, models.Payload{
		Task: &models.TaskPayload{
			TaskID:    taskID,
			ErrorKind: errorKind(cause),
			Message:   cause.Error(),
		},
	})
	failed.TaskID = taskID
	l.bus.Emit(failed)
}

// errorKind classifies a failure cause for the event history.
func errorKind(err error) string {
	var llmErr *llm.LLMError
	var rateLimited *llm.RateLimitError
	var timedOut *llm.TimeoutError
	var transition *task.InvalidStateTransition
	switch {
	case errors.As(err, &llmErr), errors.As(err, &rateLimited), errors.As(err, &timedOut):
		return "llm"
	case errors.As(err, &transition):
		return "invalid_transition"
	case errors.Is(err, task.ErrTooManyTasks):
		return "capacity"
	default:
		return "internal"
	}
}
