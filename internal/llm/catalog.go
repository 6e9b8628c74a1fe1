package llm

import "strings"

// defaultContextWindows maps model name prefixes to default context window
// sizes, used when neither the role nor the default spec carries an
// override. Longest prefix wins.
var defaultContextWindows = map[string]int{
	"claude-opus-4":    200000,
	"claude-sonnet-4":  200000,
	"claude-haiku-4":   200000,
	"claude-3":         200000,
	"gpt-5":            272000,
	"gpt-4o":           128000,
	"gpt-4-turbo":      128000,
	"gpt-4":            8192,
	"o1":               200000,
	"o3":               200000,
	"gemini-3":         1000000,
	"gemini-2":         1000000,
	"llama-3":          128000,
	"mistral-large":    128000,
	"deepseek":         64000,
}

// CatalogContextWindow returns the default context window for a model name,
// or 0 when the model is unknown.
func CatalogContextWindow(model string) int {
	best := 0
	bestLen := -1
	for prefix, window := range defaultContextWindows {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = window
			bestLen = len(prefix)
		}
	}
	return best
}
