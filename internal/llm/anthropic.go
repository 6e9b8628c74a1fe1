package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/prismbot/prism/pkg/models"
)

const defaultAnthropicMaxTokens = 4096

// anthropicHandle speaks the Anthropic messages API.
type anthropicHandle struct {
	client anthropic.Client
	model  string
}

func newAnthropicHandle(res Resolution) *anthropicHandle {
	options := []option.RequestOption{option.WithAPIKey(res.APIKey)}
	if res.BaseURL != "" {
		options = append(options, option.WithBaseURL(res.BaseURL))
	}
	return &anthropicHandle{
		client: anthropic.NewClient(options...),
		model:  res.Model,
	}
}

func (h *anthropicHandle) Provider() string { return "anthropic" }
func (h *anthropicHandle) ModelID() string  { return h.model }

func (h *anthropicHandle) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(h.model),
		Messages:  convertToAnthropicMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToAnthropicTools(req.Tools)
		if err != nil {
			return nil, &LLMError{Provider: "anthropic", Model: h.model, Message: err.Error(), Err: err}
		}
		params.Tools = tools
	}

	msg, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return nil, h.wrapError(err)
	}

	result := &GenerateResult{
		FinishReason: string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	return result, nil
}

func (h *anthropicHandle) wrapError(err error) error {
	base := LLMError{Provider: "anthropic", Model: h.model, Message: err.Error(), Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		base.Message = "call timed out"
		return &TimeoutError{base}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{base}
	}
	return &base
}

// convertToAnthropicMessages maps the neutral chat shape to Anthropic
// content blocks. Tool results become tool_result blocks on user messages;
// assistant tool calls become tool_use blocks.
func convertToAnthropicMessages(messages []models.ChatMessage) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			// System text travels in params.System, not the message list.
			continue
		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &input)
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				result = append(result, anthropic.NewAssistantMessage(content...))
			}
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

func convertToAnthropicTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}
