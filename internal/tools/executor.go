package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/prismbot/prism/internal/bus"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/pkg/models"
)

// ExecutorConfig bounds tool execution.
type ExecutorConfig struct {
	// Timeout bounds each tool invocation.
	Timeout time.Duration

	// MaxConcurrent bounds inflight tool executions across all tasks.
	MaxConcurrent int
}

// Executor validates arguments, invokes tools under a timeout and a global
// concurrency bound, maintains call stats, and emits tool lifecycle events.
type Executor struct {
	registry *Registry
	bus      *bus.Bus
	sem      chan struct{}
	timeout  time.Duration
	log      *observability.Logger
}

// NewExecutor creates a tool executor.
func NewExecutor(registry *Registry, b *bus.Bus, cfg ExecutorConfig, log *observability.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if log == nil {
		log = observability.NewTestLogger()
	}
	return &Executor{
		registry: registry,
		bus:      b,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		timeout:  cfg.Timeout,
		log:      log,
	}
}

// Attach subscribes the executor to TOOL_CALL_REQUESTED. Execution runs on a
// worker goroutine; completion posts TOOL_CALL_COMPLETED or
// TOOL_CALL_FAILED carrying the step result, linked by the tool call id.
func (e *Executor) Attach() {
	e.bus.Subscribe(models.EventToolCallRequested, e.onToolCallRequested)
}

func (e *Executor) onToolCallRequested(ev models.Event) error {
	payload := ev.Payload.Tool
	if payload == nil {
		return fmt.Errorf("tool call event %s has no tool payload", ev.ID)
	}
	go func() {
		result := e.Execute(context.Background(), payload.Call, payload.StepIndex, ExecContext{
			TaskID:  ev.TaskID,
			Channel: payload.Channel,
		})
		completed := models.EventToolCallCompleted
		if !result.Success {
			completed = models.EventToolCallFailed
		}
		e.bus.Emit(models.Derive(ev, completed, models.Payload{
			Tool: &models.ToolPayload{
				Call:      payload.Call,
				StepIndex: payload.StepIndex,
				Result:    result,
			},
		}))
	}()
	return nil
}

// Execute runs one tool call synchronously and returns its completed step
// result. Unknown tools, invalid arguments, timeouts, and raised errors all
// surface as failed results; a tool-returned failure passes through.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall, stepIndex int, ec ExecContext) *models.StepResult {
	result := &models.StepResult{
		StepIndex:   stepIndex,
		ActionType:  models.ActionToolCall,
		ActionInput: string(call.Arguments),
		StartedAt:   time.Now(),
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		result.Complete(false, "", fmt.Sprintf("tool %s not found", call.Name))
		return result
	}

	if err := validateArgs(tool.Schema(), call.Arguments); err != nil {
		result.Complete(false, "", err.Error())
		e.registry.UpdateCallStats(call.Name, time.Since(result.StartedAt), false)
		return result
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Complete(false, "", ctx.Err().Error())
		return result
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.invoke(toolCtx, tool, call.Arguments, ec)
	duration := time.Since(result.StartedAt)

	switch {
	case toolCtx.Err() == context.DeadlineExceeded:
		result.Complete(false, "", fmt.Sprintf("tool %s timed out after %dms", call.Name, e.timeout.Milliseconds()))
	case err != nil:
		result.Complete(false, "", err.Error())
	case res != nil && res.IsError:
		result.Complete(false, res.Content, res.Content)
	case res != nil:
		result.Complete(true, res.Content, "")
	default:
		result.Complete(true, "", "")
	}

	e.registry.UpdateCallStats(call.Name, duration, result.Success)
	return result
}

// invoke runs the tool on a goroutine so a hung tool cannot outlive the
// timeout, and contains panics.
func (e *Executor) invoke(ctx context.Context, tool Tool, args []byte, ec ExecContext) (res *Result, err error) {
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		r, e := tool.Execute(ctx, args, ec)
		done <- outcome{res: r, err: e}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
