package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prismbot/prism/internal/bus"
	"github.com/prismbot/prism/pkg/models"
)

func newTestExecutor(t *testing.T, timeout time.Duration) (*Executor, *Registry, *bus.Bus) {
	t.Helper()
	reg := NewRegistry()
	b := bus.New(bus.Options{})
	exec := NewExecutor(reg, b, ExecutorConfig{Timeout: timeout, MaxConcurrent: 2}, nil)
	return exec, reg, b
}

func TestExecuteSuccess(t *testing.T) {
	exec, reg, _ := newTestExecutor(t, time.Second)
	if err := reg.Register(NewEchoTool()); err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{TaskID: "t1"})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Result != "hi" {
		t.Fatalf("result content = %q", result.Result)
	}
	if result.Pending() {
		t.Fatal("completed result still pending")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	exec, _, _ := newTestExecutor(t, time.Second)

	call := models.ToolCall{ID: "c1", Name: "nope", Arguments: json.RawMessage(`{}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{})

	if result.Success {
		t.Fatal("unknown tool reported success")
	}
	if !strings.Contains(result.Error, "not found") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestExecuteRejectsInvalidArguments(t *testing.T) {
	exec, reg, _ := newTestExecutor(t, time.Second)
	if err := reg.Register(NewEchoTool()); err != nil {
		t.Fatal(err)
	}

	// echo requires "text"; hand it the wrong type.
	call := models.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":42}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{})

	if result.Success {
		t.Fatal("invalid arguments accepted")
	}
}

func TestExecuteTimeout(t *testing.T) {
	exec, reg, _ := newTestExecutor(t, 30*time.Millisecond)
	err := reg.Register(&FuncTool{
		ToolName:        "sleepy",
		ToolDescription: "never returns in time",
		ToolCategory:    CategoryBuiltin,
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			select {
			case <-time.After(5 * time.Second):
				return &Result{Content: "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "c1", Name: "sleepy", Arguments: json.RawMessage(`{}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{})

	if result.Success {
		t.Fatal("timed-out tool reported success")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Fatalf("error = %q, want timeout message", result.Error)
	}
}

func TestExecuteContainsPanic(t *testing.T) {
	exec, reg, _ := newTestExecutor(t, time.Second)
	err := reg.Register(&FuncTool{
		ToolName:        "bomb",
		ToolDescription: "panics",
		ToolCategory:    CategoryBuiltin,
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			panic("kaboom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "c1", Name: "bomb", Arguments: json.RawMessage(`{}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{})

	if result.Success {
		t.Fatal("panicking tool reported success")
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestToolLevelErrorPassesThrough(t *testing.T) {
	exec, reg, _ := newTestExecutor(t, time.Second)
	err := reg.Register(&FuncTool{
		ToolName:        "failing",
		ToolDescription: "reports a tool-level failure",
		ToolCategory:    CategoryBuiltin,
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			return &Result{Content: "backend unavailable", IsError: true}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "c1", Name: "failing", Arguments: json.RawMessage(`{}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{})

	if result.Success {
		t.Fatal("tool-level failure reported success")
	}
	if result.Error != "backend unavailable" {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestRaisedErrorBecomesFailedResult(t *testing.T) {
	exec, reg, _ := newTestExecutor(t, time.Second)
	err := reg.Register(&FuncTool{
		ToolName:        "raiser",
		ToolDescription: "returns an error",
		ToolCategory:    CategoryBuiltin,
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			return nil, errors.New("connection refused")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "c1", Name: "raiser", Arguments: json.RawMessage(`{}`)}
	result := exec.Execute(context.Background(), call, 0, ExecContext{})

	if result.Success || !strings.Contains(result.Error, "connection refused") {
		t.Fatalf("result = %+v", result)
	}
}

// The attached executor must answer TOOL_CALL_REQUESTED with a completion
// event carrying the step result and the original call id.
func TestAttachedExecutorEmitsLifecycleEvents(t *testing.T) {
	exec, reg, b := newTestExecutor(t, time.Second)
	if err := reg.Register(NewEchoTool()); err != nil {
		t.Fatal(err)
	}
	exec.Attach()

	var mu sync.Mutex
	var completed []models.Event
	b.Subscribe(models.EventToolCallCompleted, func(ev models.Event) error {
		mu.Lock()
		completed = append(completed, ev)
		mu.Unlock()
		return nil
	})

	b.Start()
	defer b.Stop()

	request := models.NewEvent(models.EventToolCallRequested, "cli", "t1", models.Payload{
		Tool: &models.ToolPayload{
			Call:      models.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"hello"}`)},
			StepIndex: 2,
		},
	})
	b.Emit(request)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(completed)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no TOOL_CALL_COMPLETED observed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	ev := completed[0]
	if ev.TaskID != "t1" {
		t.Fatalf("task id = %q", ev.TaskID)
	}
	payload := ev.Payload.Tool
	if payload == nil || payload.Result == nil {
		t.Fatalf("payload = %+v", ev.Payload)
	}
	if payload.Call.ID != "c1" || payload.StepIndex != 2 {
		t.Fatalf("correlation lost: %+v", payload)
	}
	if !payload.Result.Success || payload.Result.Result != "hello" {
		t.Fatalf("result = %+v", payload.Result)
	}
}
