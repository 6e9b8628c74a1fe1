package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/prismbot/prism/pkg/models"
)

// openAIHandle speaks the OpenAI-compatible chat completions API. It serves
// the openai, codex, and copilot provider types, which differ only in
// endpoint and credentials.
type openAIHandle struct {
	client       *openai.Client
	providerType string
	model        string
}

func newOpenAIHandle(res Resolution) *openAIHandle {
	cfg := openai.DefaultConfig(res.APIKey)
	if res.BaseURL != "" {
		cfg.BaseURL = res.BaseURL
	}
	return &openAIHandle{
		client:       openai.NewClientWithConfig(cfg),
		providerType: res.ProviderType,
		model:        res.Model,
	}
}

func (h *openAIHandle) Provider() string { return h.providerType }
func (h *openAIHandle) ModelID() string  { return h.model }

func (h *openAIHandle) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    h.model,
		Messages: convertToOpenAIMessages(req.Messages, req.System),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	resp, err := h.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, h.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &LLMError{Provider: h.providerType, Model: h.model, Message: "empty response"}
	}

	choice := resp.Choices[0]
	result := &GenerateResult{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return result, nil
}

func (h *openAIHandle) wrapError(err error) error {
	base := LLMError{Provider: h.providerType, Model: h.model, Message: err.Error(), Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		base.Message = "call timed out"
		return &TimeoutError{base}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &RateLimitError{base}
	}
	return &base
}

func convertToOpenAIMessages(messages []models.ChatMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == models.RoleTool {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result
}
