package loop

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/prismbot/prism/internal/llm"
	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/pkg/models"
)

// scriptedHandle replays canned results and records every request.
type scriptedHandle struct {
	mu       sync.Mutex
	script   []*llm.GenerateResult
	requests []*llm.GenerateRequest
}

func (h *scriptedHandle) Provider() string { return "fake" }
func (h *scriptedHandle) ModelID() string  { return "fake-model" }

func (h *scriptedHandle) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if len(h.script) == 0 {
		return &llm.GenerateResult{Text: "default reply"}, nil
	}
	next := h.script[0]
	if len(h.script) > 1 {
		h.script = h.script[1:]
	}
	return next, nil
}

type fakeResolver struct {
	handle llm.Handle
	err    error
}

func (r *fakeResolver) Get(role string) (llm.Handle, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.handle, nil
}

func newContext(text string) *task.Context {
	return &task.Context{
		InputText: text,
		Channel:   models.ChannelCoordinate{Type: models.ChannelCLI, ChannelID: "main"},
	}
}

func TestThinkerAppendsInputOnce(t *testing.T) {
	handle := &scriptedHandle{}
	thinker := NewThinker(&fakeResolver{handle: handle})
	tc := newContext("Hello world")

	out, err := thinker.Run(context.Background(), tc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.AppendUser {
		t.Fatal("first pass should append the input text")
	}

	handle.mu.Lock()
	req := handle.requests[0]
	handle.mu.Unlock()
	if len(req.Messages) != 1 || req.Messages[0].Content != "Hello world" {
		t.Fatalf("outgoing messages = %+v", req.Messages)
	}

	// Once the conversation tail carries the input byte-exact, it must not
	// duplicate.
	tc.AppendMessage(models.ChatMessage{Role: models.RoleUser, Content: "Hello world"})
	tc.AppendMessage(models.ChatMessage{Role: models.RoleAssistant, Content: "Hi!"})
	tc.AppendMessage(models.ChatMessage{Role: models.RoleUser, Content: "Hello world"})

	out, err = thinker.Run(context.Background(), tc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.AppendUser {
		t.Fatal("input duplicated despite matching conversation tail")
	}

	handle.mu.Lock()
	req = handle.requests[1]
	handle.mu.Unlock()
	if len(req.Messages) != 3 {
		t.Fatalf("outgoing messages = %d, want 3", len(req.Messages))
	}
}

func TestThinkerClassifiesApproach(t *testing.T) {
	handle := &scriptedHandle{script: []*llm.GenerateResult{
		{Text: "", ToolCalls: []models.ToolCall{{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)}}},
	}}
	thinker := NewThinker(&fakeResolver{handle: handle})

	out, err := thinker.Run(context.Background(), newContext("do it"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Reasoning.Approach != models.ApproachToolUse {
		t.Fatalf("approach = %q", out.Reasoning.Approach)
	}
	if len(out.Reasoning.ToolCalls) != 1 {
		t.Fatalf("tool calls = %v", out.Reasoning.ToolCalls)
	}
}

func TestThinkerSurfacesMemoryIndex(t *testing.T) {
	handle := &scriptedHandle{}
	thinker := NewThinker(&fakeResolver{handle: handle})
	tc := newContext("hi")
	tc.MemoryIndex = []models.MemoryEntry{
		{Path: "facts/user.md", Summary: "Known user preferences"},
	}

	if _, err := thinker.Run(context.Background(), tc, nil); err != nil {
		t.Fatal(err)
	}

	handle.mu.Lock()
	system := handle.requests[0].System
	handle.mu.Unlock()
	if want := "Available memory:"; !strings.Contains(system, want) {
		t.Fatalf("system prompt lacks %q:\n%s", want, system)
	}
	if !strings.Contains(system, "facts/user.md: Known user preferences") {
		t.Fatalf("system prompt lacks memory line:\n%s", system)
	}
}

func TestPlannerBuildsToolSteps(t *testing.T) {
	planner := NewPlanner()
	tc := newContext("use tools")
	tc.Reasoning = &models.Reasoning{
		Approach: models.ApproachToolUse,
		ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"a"}`)},
			{ID: "c2", Name: "current_time", Arguments: json.RawMessage(`{}`)},
		},
	}

	plan := planner.Run(tc)
	if len(plan.Steps) != 2 {
		t.Fatalf("steps = %d", len(plan.Steps))
	}
	for i, step := range plan.Steps {
		if step.Index != i {
			t.Fatalf("step %d has index %d", i, step.Index)
		}
		if step.ActionType != models.ActionToolCall {
			t.Fatalf("step %d action = %q", i, step.ActionType)
		}
	}
	if plan.Steps[0].Params.ToolCallID != "c1" || plan.Steps[1].Params.ToolName != "current_time" {
		t.Fatalf("params = %+v", plan.Steps)
	}
}

func TestPlannerBuildsRespondStep(t *testing.T) {
	planner := NewPlanner()
	tc := newContext("just answer")
	tc.Reasoning = &models.Reasoning{Response: "Sure.", Approach: models.ApproachDirect}

	plan := planner.Run(tc)
	if plan.Goal != "Respond to the user" {
		t.Fatalf("goal = %q", plan.Goal)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].ActionType != models.ActionRespond {
		t.Fatalf("steps = %+v", plan.Steps)
	}
}

func TestActorRespond(t *testing.T) {
	actor := NewActor()
	tc := newContext("hi")
	tc.Reasoning = &models.Reasoning{Response: "Hello there."}
	tc.Plan = &models.Plan{Steps: []models.PlanStep{{Index: 0, ActionType: models.ActionRespond}}}

	outcome := actor.Run(tc, 0)
	if outcome.ToolCall != nil {
		t.Fatal("respond step produced a tool call")
	}
	if !outcome.Result.Success || outcome.Result.Result != "Hello there." {
		t.Fatalf("result = %+v", outcome.Result)
	}
	if outcome.Result.Pending() {
		t.Fatal("respond result should be complete")
	}
}

func TestActorToolCallIsPending(t *testing.T) {
	actor := NewActor()
	tc := newContext("hi")
	tc.Plan = &models.Plan{Steps: []models.PlanStep{{
		Index:      0,
		ActionType: models.ActionToolCall,
		Params: models.ActionParams{
			ToolCallID: "c1",
			ToolName:   "echo",
			ToolParams: json.RawMessage(`{"text":"x"}`),
		},
	}}}

	outcome := actor.Run(tc, 0)
	if outcome.ToolCall == nil || outcome.ToolCall.Name != "echo" {
		t.Fatalf("tool call = %+v", outcome.ToolCall)
	}
	if !outcome.Result.Pending() {
		t.Fatal("tool_call result should be pending")
	}

	// The assistant's request is recorded in the conversation.
	last, ok := tc.LastMessage()
	if !ok || last.Role != models.RoleAssistant || len(last.ToolCalls) != 1 {
		t.Fatalf("last message = %+v", last)
	}
}

func TestActorStubsUnknownActions(t *testing.T) {
	actor := NewActor()
	tc := newContext("hi")
	tc.Plan = &models.Plan{Steps: []models.PlanStep{{
		Index:       0,
		Description: "generate a poem",
		ActionType:  models.ActionGenerate,
	}}}

	outcome := actor.Run(tc, 0)
	if !outcome.Result.Success {
		t.Fatalf("result = %+v", outcome.Result)
	}
	if want := "[Stub] Completed step 0: generate a poem"; outcome.Result.Result != want {
		t.Fatalf("result = %q, want %q", outcome.Result.Result, want)
	}
}

func TestReflectorVerdicts(t *testing.T) {
	reflector := NewReflector()

	direct := newContext("hi")
	direct.Reasoning = &models.Reasoning{Response: "done", Approach: models.ApproachDirect}
	if verdict := reflector.Run(direct); verdict.Continue {
		t.Fatalf("direct answer should terminate: %+v", verdict)
	}

	toolUse := newContext("hi")
	toolUse.Reasoning = &models.Reasoning{Approach: models.ApproachToolUse}
	if verdict := reflector.Run(toolUse); !verdict.Continue {
		t.Fatal("tool-use iteration should loop for synthesis")
	}

	clarify := newContext("hi")
	clarify.Reasoning = &models.Reasoning{Approach: models.ApproachDirect, NeedsClarification: true}
	if verdict := reflector.Run(clarify); !verdict.Continue {
		t.Fatal("clarification should loop")
	}
}
