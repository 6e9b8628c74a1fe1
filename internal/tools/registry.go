package tools

import (
	"fmt"
	"sync"
	"time"

	"github.com/prismbot/prism/internal/llm"
)

// CallStats tracks per-tool execution statistics with a running mean
// duration.
type CallStats struct {
	Count       int           `json:"count"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Stats is a snapshot of the registry's catalog and call statistics.
type Stats struct {
	Total      int                  `json:"total"`
	ByCategory map[Category]int     `json:"by_category"`
	CallStats  map[string]CallStats `json:"call_stats"`
}

// Registry is the named tool catalog. Tool names are unique; registering a
// duplicate name fails.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	stats map[string]*CallStats
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		stats: make(map[string]*CallStats),
	}
}

// Register adds a tool under its unique name.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ToLLMTools converts the catalog to the wire shape advertised to models.
// Pre-baked schemas pass through verbatim.
func (r *Registry) ToLLMTools() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		out = append(out, llm.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return out
}

// UpdateCallStats records one execution, maintaining a running mean
// duration.
func (r *Registry) UpdateCallStats(name string, duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats[name]
	if stats == nil {
		stats = &CallStats{}
		r.stats[name] = stats
	}
	stats.Count++
	if !success {
		stats.Failures++
	}
	stats.AvgDuration += (duration - stats.AvgDuration) / time.Duration(stats.Count)
}

// Stats returns a snapshot of catalog counts and call statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := Stats{
		Total:      len(r.tools),
		ByCategory: make(map[Category]int),
		CallStats:  make(map[string]CallStats, len(r.stats)),
	}
	for _, tool := range r.tools {
		snapshot.ByCategory[tool.Category()]++
	}
	for name, stats := range r.stats {
		snapshot.CallStats[name] = *stats
	}
	return snapshot
}
