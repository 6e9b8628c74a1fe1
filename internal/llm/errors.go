package llm

import (
	"fmt"
)

// LLMError indicates a model call failure. It surfaces on the step result as
// a failure and triggers reflection rather than aborting the task outright.
type LLMError struct {
	Provider string
	Model    string
	Message  string
	Err      error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s/%s: %s", e.Provider, e.Model, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Err }

// RateLimitError indicates the provider rejected the call for rate limiting.
type RateLimitError struct {
	LLMError
}

// TimeoutError indicates the model call exceeded its deadline.
type TimeoutError struct {
	LLMError
}
