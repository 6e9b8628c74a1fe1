package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func stubTool(name string, category Category) Tool {
	return &FuncTool{
		ToolName:        name,
		ToolDescription: "stub " + name,
		ToolCategory:    category,
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			return &Result{Content: "ok"}, nil
		},
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(stubTool("search", CategoryBuiltin)); err != nil {
		t.Fatal(err)
	}
	err := reg.Register(stubTool("search", CategorySearch))
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("duplicate registration error = %v", err)
	}
	if got := len(reg.List()); got != 1 {
		t.Fatalf("registry holds %d tools, want 1", got)
	}
}

// A builtin and an imported server tool with the same underlying name must
// coexist under distinct registry names.
func TestServerPrefixPreventsCollision(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(stubTool("search", CategoryBuiltin)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(stubTool("ext__search", CategoryMCP)); err != nil {
		t.Fatal(err)
	}

	if !reg.Has("search") || !reg.Has("ext__search") {
		t.Fatal("both tools should be registered")
	}
	if got := len(reg.List()); got != 2 {
		t.Fatalf("registry holds %d tools, want 2", got)
	}

	builtin, _ := reg.Get("search")
	imported, _ := reg.Get("ext__search")
	if builtin.Category() == imported.Category() {
		t.Fatal("categories should differ")
	}
}

func TestToLLMToolsPassesSchemaVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	reg := NewRegistry()
	if err := reg.Register(&FuncTool{
		ToolName:        "lookup",
		ToolDescription: "lookup things",
		ToolCategory:    CategoryMCP,
		RawSchema:       raw,
	}); err != nil {
		t.Fatal(err)
	}

	specs := reg.ToLLMTools()
	if len(specs) != 1 {
		t.Fatalf("got %d specs", len(specs))
	}
	if string(specs[0].Parameters) != string(raw) {
		t.Fatalf("schema modified in transit: %s", specs[0].Parameters)
	}
}

func TestCallStatsRunningMean(t *testing.T) {
	reg := NewRegistry()
	reg.UpdateCallStats("echo", 100*time.Millisecond, true)
	reg.UpdateCallStats("echo", 300*time.Millisecond, false)

	stats := reg.Stats()
	cs, ok := stats.CallStats["echo"]
	if !ok {
		t.Fatal("no call stats recorded")
	}
	if cs.Count != 2 || cs.Failures != 1 {
		t.Fatalf("count=%d failures=%d", cs.Count, cs.Failures)
	}
	if cs.AvgDuration != 200*time.Millisecond {
		t.Fatalf("avg duration = %s, want 200ms", cs.AvgDuration)
	}
}

func TestStatsByCategory(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubTool("a", CategoryBuiltin))
	reg.Register(stubTool("b", CategoryBuiltin))
	reg.Register(stubTool("c", CategoryMCP))

	stats := reg.Stats()
	if stats.Total != 3 {
		t.Fatalf("total = %d", stats.Total)
	}
	if stats.ByCategory[CategoryBuiltin] != 2 || stats.ByCategory[CategoryMCP] != 1 {
		t.Fatalf("by category = %v", stats.ByCategory)
	}
}
