package tools

import (
	"context"
	"encoding/json"
	"time"
)

type echoParams struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo back"`
}

// NewEchoTool returns a trivial builtin that echoes its input. Used by the
// CLI smoke path and tests.
func NewEchoTool() Tool {
	return &FuncTool{
		ToolName:        "echo",
		ToolDescription: "Echo the given text back unchanged.",
		ToolCategory:    CategoryBuiltin,
		RawSchema:       MustDeriveSchema(&echoParams{}),
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			var params echoParams
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, err
			}
			return &Result{Content: params.Text}, nil
		},
	}
}

type timeParams struct {
	Format string `json:"format,omitempty" jsonschema:"description=Go time layout; RFC3339 when empty"`
}

// NewTimeTool returns a builtin reporting the current time.
func NewTimeTool() Tool {
	return &FuncTool{
		ToolName:        "current_time",
		ToolDescription: "Report the current time.",
		ToolCategory:    CategoryBuiltin,
		RawSchema:       MustDeriveSchema(&timeParams{}),
		Handler: func(ctx context.Context, args json.RawMessage, ec ExecContext) (*Result, error) {
			var params timeParams
			if len(args) > 0 {
				if err := json.Unmarshal(args, &params); err != nil {
					return nil, err
				}
			}
			layout := params.Format
			if layout == "" {
				layout = time.RFC3339
			}
			return &Result{Content: time.Now().Format(layout)}, nil
		},
	}
}
