// Package llm resolves role and tier model specs to cached model handles and
// owns provider credentials.
package llm

import (
	"context"
	"encoding/json"

	"github.com/prismbot/prism/pkg/models"
)

// ToolSpec is the wire shape of one tool advertised to a model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// GenerateRequest is one model call.
type GenerateRequest struct {
	System    string
	Messages  []models.ChatMessage
	Tools     []ToolSpec
	MaxTokens int
}

// GenerateResult is the model's reply.
type GenerateResult struct {
	Text         string
	ToolCalls    []models.ToolCall
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// Handle is a resolved, ready-to-call model. Handles are cached by the
// registry; two roles resolving to the same provider/model/apiType tuple
// share one handle.
type Handle interface {
	// Provider returns the resolved provider type the handle is keyed by.
	Provider() string

	// ModelID returns the model identifier used in API calls.
	ModelID() string

	// Generate performs one model call.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}
