package llm

import (
	"fmt"
	"strings"
)

// ResolvedSpec is a parsed "{provider}/{model}" selector.
type ResolvedSpec struct {
	Provider string
	Model    string
}

// ParseSpec splits a "{provider}/{model}" selector. The string must contain
// exactly one slash separating two non-empty segments.
func ParseSpec(spec string) (ResolvedSpec, error) {
	if strings.Count(spec, "/") != 1 {
		return ResolvedSpec{}, fmt.Errorf("invalid model spec %q", spec)
	}
	provider, model, _ := strings.Cut(spec, "/")
	if provider == "" || model == "" {
		return ResolvedSpec{}, fmt.Errorf("invalid model spec %q", spec)
	}
	return ResolvedSpec{Provider: provider, Model: model}, nil
}
