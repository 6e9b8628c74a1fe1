// Package tools implements the named tool catalog and the validating,
// timeout-bounded tool executor.
package tools

import (
	"context"
	"encoding/json"

	"github.com/prismbot/prism/pkg/models"
)

// Category groups tools for stats and catalog listings.
type Category string

const (
	CategoryBuiltin Category = "builtin"
	CategoryChannel Category = "channel"
	CategorySearch  Category = "search"
	CategoryMCP     Category = "MCP"
)

// ExecContext carries the task identity a tool executes on behalf of.
type ExecContext struct {
	TaskID  string
	Channel models.ChannelCoordinate
}

// Result is a tool's outcome. IsError marks tool-level failure; it is
// reported on the step result, never re-raised.
type Result struct {
	Content string
	IsError bool
}

// Tool is one executable capability. Schema returns the JSON Schema the
// executor validates arguments against before invocation.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error)
}

// FuncTool adapts a function and a pre-built schema into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolCategory    Category

	// RawSchema is used verbatim when set; tools with typed parameters
	// derive it via DeriveSchema instead.
	RawSchema json.RawMessage

	Handler func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error)
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.ToolDescription }
func (t *FuncTool) Category() Category  { return t.ToolCategory }

func (t *FuncTool) Schema() json.RawMessage {
	if len(t.RawSchema) > 0 {
		return t.RawSchema
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
	return t.Handler(ctx, args, ec)
}
